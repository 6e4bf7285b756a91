package handler

import (
	"errors"

	"github.com/kunal123thakur/job-matching/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// StatusForError 错误类别 → HTTP 状态码
func StatusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return consts.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return consts.StatusNotFound
	case errors.Is(err, types.ErrEmptyDocument):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, types.ErrMalformedModelOutput):
		return consts.StatusBadGateway
	case errors.Is(err, types.ErrStorageUnavailable):
		return consts.StatusServiceUnavailable
	case errors.Is(err, types.ErrTimeout):
		return consts.StatusGatewayTimeout
	default:
		return consts.StatusInternalServerError
	}
}

// writeError 统一错误响应 {"error": "..."}；notFoundMsg 非空时替换 404 的消息
func writeError(c *app.RequestContext, log zerolog.Logger, err error, notFoundMsg string) {
	status := StatusForError(err)
	msg := err.Error()
	if status == consts.StatusNotFound && notFoundMsg != "" {
		msg = notFoundMsg
	}
	if status >= consts.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Str("path", string(c.Path())).Msg("请求处理失败")
		if status == consts.StatusInternalServerError {
			msg = "internal server error"
		}
	} else {
		log.Warn().Err(err).Int("status", status).Str("path", string(c.Path())).Msg("请求被拒绝")
	}
	c.JSON(status, utils.H{"error": msg})
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, utils.H{"error": msg})
}
