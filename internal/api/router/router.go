package router

import (
	"time"

	"github.com/kunal123thakur/job-matching/internal/api/handler"
	"github.com/kunal123thakur/job-matching/internal/api/middleware"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/hertz-contrib/cors"
)

// DefaultCORSOrigin 前端开发服务器地址
const DefaultCORSOrigin = "http://localhost:5173"

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Matching *handler.MatchingHandler
	Catalog  *handler.CatalogHandler
}

// CORS 允许配置的来源并携带凭证，放行所有方法与请求头
func CORS(origins []string) app.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{DefaultCORSOrigin}
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// RegisterRoutes 注册中间件与全部路由
func RegisterRoutes(h *server.Hertz, handlers Handlers, corsOrigins []string) {
	h.Use(middleware.RequestID(), middleware.AccessLog(), CORS(corsOrigins))

	m := handlers.Matching
	h.GET("/", m.HandleRoot)
	h.GET("/health", m.HandleHealth)
	h.GET("/resume/skills", m.HandleResumeSkills)
	h.POST("/admin/internship", m.HandleAddInternship)
	h.POST("/applicant/resume", m.HandleAddApplicant)
	h.GET("/match/applicant/:applicant_id", m.HandleMatchApplicant)
	h.GET("/match/internship/:internship_id", m.HandleMatchInternship)

	if c := handlers.Catalog; c != nil {
		h.POST("/internships/", c.HandleCreateListing)
		h.GET("/internships/", c.HandleListListings)
		h.POST("/search/", c.HandleSearch)
		h.POST("/candidates/", c.HandleSubmitCandidate)
	}
}
