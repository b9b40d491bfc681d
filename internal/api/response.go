package api

import (
	"github.com/LJTian/ShortsHub/internal/aggregator"
	"github.com/LJTian/ShortsHub/internal/processor"
)

const (
	MsgNoResults      = "No news found for selected year(s)"
	MsgUpstreamFailed = "Failed to fetch news data"
)

type NewsResponse struct {
	Success  bool                `json:"success"`
	Category string              `json:"category"`
	Year     any                 `json:"year"`
	Total    int                 `json:"total"`
	Showing  int                 `json:"showing"`
	Data     []processor.Article `json:"data"`
	Error    string              `json:"error,omitempty"`
}

// Assemble 把聚合结果包装成对外响应；没有数据时 success=false 并附带说明
func Assemble(req NewsRequest, res aggregator.Result) NewsResponse {
	data := res.Articles
	if data == nil {
		data = []processor.Article{}
	}
	resp := NewsResponse{
		Success:  len(data) > 0,
		Category: req.Window.Category,
		Year:     req.YearEcho,
		Total:    res.Total,
		Showing:  len(data),
		Data:     data,
	}
	if len(data) == 0 {
		resp.Error = MsgNoResults
	}
	return resp
}

// Failure 上游失败时的响应，不携带任何部分数据
func Failure(req NewsRequest, msg string) NewsResponse {
	return NewsResponse{
		Success:  false,
		Category: req.Window.Category,
		Year:     req.YearEcho,
		Data:     []processor.Article{},
		Error:    msg,
	}
}
