package api

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/ShortsHub/internal/aggregator"
	"github.com/LJTian/ShortsHub/internal/config"
	"github.com/LJTian/ShortsHub/internal/processor"
)

const maxYearsPerRequest = 10

var ErrInvalidRequest = errors.New("invalid request")

var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// NewsRequest 校验后的请求：聚合窗口 + 响应里回显的 year 字段
type NewsRequest struct {
	Window   aggregator.Window
	YearEcho any // int 或 string
}

// query 只暴露解析需要的方法，便于脱离 gin 复用
type query interface {
	GetQuery(key string) (string, bool)
}

type valuesQuery url.Values

func (v valuesQuery) GetQuery(key string) (string, bool) {
	vs, ok := v[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// ParseValues 供命令行等非 HTTP 入口复用同一套校验
func ParseValues(v url.Values, cfg *config.Config, now time.Time) (NewsRequest, error) {
	return parseNewsRequest(valuesQuery(v), cfg, now)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// parseNewsRequest 解析 category / year / limit / offset，任何非法值都在访问上游前拒绝
func parseNewsRequest(q query, cfg *config.Config, now time.Time) (NewsRequest, error) {
	var req NewsRequest

	category := "all"
	if v, ok := q.GetQuery("category"); ok && strings.TrimSpace(v) != "" {
		category = strings.ToLower(strings.TrimSpace(v))
		if !categoryPattern.MatchString(category) {
			return req, invalid("category %q is not valid", v)
		}
	}

	limit := cfg.DefaultLimit
	if v, ok := q.GetQuery("limit"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 || n > cfg.MaxLimit {
			return req, invalid("limit must be an integer between 1 and %d", cfg.MaxLimit)
		}
		limit = n
	}

	offset := 0
	if v, ok := q.GetQuery("offset"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return req, invalid("offset must be a non-negative integer")
		}
		offset = n
	}

	years, echo, err := parseYears(q, cfg, now)
	if err != nil {
		return req, err
	}

	req.Window = aggregator.Window{
		Category: category,
		Years:    years,
		Limit:    limit,
		Offset:   offset,
	}
	req.YearEcho = echo
	return req, nil
}

func parseYears(q query, cfg *config.Config, now time.Time) (processor.Years, any, error) {
	current := now.In(cfg.Location()).Year()

	v, ok := q.GetQuery("year")
	if !ok || strings.TrimSpace(v) == "" {
		if cfg.YearMode == config.YearModeCurrent {
			return processor.Years{current}, current, nil
		}
		years := processor.Years{current, current - 1, current - 2}
		return years, fmt.Sprintf("Last 3 years (%s)", years), nil
	}

	parts := strings.Split(v, ",")
	if len(parts) > maxYearsPerRequest {
		return nil, nil, invalid("at most %d years per request", maxYearsPerRequest)
	}

	years := make(processor.Years, 0, len(parts))
	for _, p := range parts {
		y, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || y < 1970 || y > 9999 {
			return nil, nil, invalid("year %q is not valid", strings.TrimSpace(p))
		}
		if !years.Contains(y) {
			years = append(years, y)
		}
	}

	if len(years) == 1 {
		return years, years[0], nil
	}
	return years, years.String(), nil
}
