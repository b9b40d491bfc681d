package collector

import (
	"context"
	"errors"
)

// ErrUpstreamUnavailable 网络错误或上游返回非 2xx，由调用方决定是否中止整个请求
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// RawArticle 上游原始新闻记录，按收到的样子保存，不做任何修改
type RawArticle struct {
	Title     string
	ImageURL  string
	URL       string // 上游的 shortened_url
	Content   string
	Author    string
	CreatedAt int64 // 毫秒时间戳
	SourceURL string
}

// PageFetcher 抽象上游的一次分页请求
type PageFetcher interface {
	FetchPage(ctx context.Context, category string, batchSize, offset int) ([]RawArticle, error)
}
