package processor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// DefaultLoadLimit CSV 默认导入行数
const DefaultLoadLimit = 200

var (
	stipendNumberPattern = regexp.MustCompile(`\d[\d,]*`)
	integerPattern       = regexp.MustCompile(`\d+`)
)

// listingColumns 导入所需的 CSV 列
var listingColumns = []string{"internship_title", "company_name", "location", "duration", "stipend"}

// ParseStipend 从 "₹ 10,000-15,000 /month" 这类文本解析上下限
func ParseStipend(s string) (int, int) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(strings.ToLower(s), "unpaid") {
		return 0, 0
	}
	var nums []int
	for _, raw := range stipendNumberPattern.FindAllString(s, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			continue
		}
		nums = append(nums, n)
		if len(nums) == 2 {
			break
		}
	}
	switch len(nums) {
	case 0:
		return 0, 0
	case 1:
		return nums[0], nums[0]
	default:
		return nums[0], nums[1]
	}
}

// ParseDurationMonths 取字符串中的第一个整数，没有时返回 nil
func ParseDurationMonths(s string) *int {
	raw := integerPattern.FindString(s)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

// ReadListingsCSV 按表头读取前 limit 行岗位
func ReadListingsCSV(r io.Reader, limit int) ([]ListingInput, error) {
	if limit <= 0 {
		limit = DefaultLoadLimit
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	for _, col := range listingColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("CSV 缺少列 %q", col)
		}
	}

	field := func(row []string, col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []ListingInput
	for len(out) < limit {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 第 %d 行失败: %w", len(out)+2, err)
		}
		minStipend, maxStipend := ParseStipend(field(row, "stipend"))
		avg := float64(minStipend+maxStipend) / 2
		out = append(out, ListingInput{
			InternshipTitle: field(row, "internship_title"),
			CompanyName:     field(row, "company_name"),
			Location:        field(row, "location"),
			DurationMonths:  ParseDurationMonths(field(row, "duration")),
			StipendMin:      &minStipend,
			StipendMax:      &maxStipend,
			StipendAvg:      &avg,
		})
	}
	return out, nil
}

// LoadReport 导入结果统计
type LoadReport struct {
	Loaded int
	Failed int
	Errors []error
}

// LoadListings 逐条写入目录，单条失败不中断
func LoadListings(ctx context.Context, catalog *Catalog, listings []ListingInput) LoadReport {
	var report LoadReport
	for i, in := range listings {
		if err := ctx.Err(); err != nil {
			report.Failed += len(listings) - i
			report.Errors = append(report.Errors, err)
			break
		}
		if _, err := catalog.CreateListing(ctx, in); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("第 %d 条 %q: %w", i+1, in.InternshipTitle, err))
			catalog.pipeline.logger.Warn().Err(err).Int("row", i+1).Msg("岗位导入失败")
			continue
		}
		report.Loaded++
	}
	return report
}
