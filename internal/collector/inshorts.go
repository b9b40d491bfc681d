package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/ShortsHub/internal/logger"
)

const (
	inshortsDefaultBaseURL   = "https://inshorts.com/api/en/news"
	inshortsCatchAll         = "all_news"
	inshortsMaxResponseBytes = 8 << 20 // 8MB，一页 100+ 条带正文的卡片也足够
	inshortsDefaultTimeout   = 10 * time.Second
	inshortsDefaultUA        = "Mozilla/5.0 (X11; Linux x86_64)"
)

// InshortsClient 通过 Inshorts 的 JSON 接口按 offset 拉取一页新闻
type InshortsClient struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	maxBody   int64
	client    *http.Client
}

func NewInshortsClient(baseURL, userAgent string, timeout time.Duration) *InshortsClient {
	if baseURL == "" {
		baseURL = inshortsDefaultBaseURL
	}
	if userAgent == "" {
		userAgent = inshortsDefaultUA
	}
	if timeout <= 0 {
		timeout = inshortsDefaultTimeout
	}
	return &InshortsClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		timeout:   timeout,
		maxBody:   inshortsMaxResponseBytes,
		// 超时由每次调用的 context 控制
		client: &http.Client{},
	}
}

type inshortsResponse struct {
	Data *struct {
		NewsList []struct {
			NewsObj json.RawMessage `json:"news_obj"`
		} `json:"news_list"`
	} `json:"data"`
}

type inshortsNews struct {
	Title        string  `json:"title"`
	ImageURL     string  `json:"image_url"`
	ShortenedURL string  `json:"shortened_url"`
	Content      string  `json:"content"`
	AuthorName   string  `json:"author_name"`
	CreatedAt    float64 `json:"created_at"`
	SourceURL    string  `json:"source_url"`
}

// UpstreamCategory 把对外的分类名映射为上游的分类 token，"all" 对应上游的全量分类
func UpstreamCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" || c == "all" {
		return inshortsCatchAll
	}
	return c
}

func (c *InshortsClient) pageURL(category string, batchSize, offset int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("inshorts: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("category", UpstreamCategory(category))
	q.Set("max_limit", strconv.Itoa(batchSize))
	q.Set("include_card_data", "true")
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage 拉取一页。网络错误/非 2xx 返回 ErrUpstreamUnavailable；
// 响应结构不符合预期时返回空切片，交由聚合循环当作“没有更多数据”处理
func (c *InshortsClient) FetchPage(ctx context.Context, category string, batchSize, offset int) ([]RawArticle, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("inshorts: batch size must be > 0, got %d", batchSize)
	}
	if offset < 0 {
		return nil, fmt.Errorf("inshorts: offset must be >= 0, got %d", offset)
	}

	pageURL, err := c.pageURL(category, batchSize, offset)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("inshorts: build request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", "https://inshorts.com/en/read")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inshorts: fetch offset %d: %w: %v", offset, ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inshorts: unexpected status %d: %w", resp.StatusCode, ErrUpstreamUnavailable)
	}

	// 多读 1 字节用来区分“刚好读满”和“被截断”
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("inshorts: read body: %w: %v", ErrUpstreamUnavailable, err)
	}
	if int64(len(body)) > c.maxBody {
		logger.L.Warnf("inshorts: response at offset=%d exceeds %d bytes, batch=%d", offset, c.maxBody, batchSize)
		return nil, fmt.Errorf("inshorts: response larger than %d bytes: %w", c.maxBody, ErrUpstreamUnavailable)
	}

	return decodePage(body), nil
}

// decodePage 尽力解析；整体结构不对返回 nil，单条坏数据直接跳过
func decodePage(body []byte) []RawArticle {
	var r inshortsResponse
	if err := json.Unmarshal(body, &r); err != nil || r.Data == nil {
		return nil
	}

	out := make([]RawArticle, 0, len(r.Data.NewsList))
	for _, entry := range r.Data.NewsList {
		if len(entry.NewsObj) == 0 || string(entry.NewsObj) == "null" {
			continue
		}
		var n inshortsNews
		if err := json.Unmarshal(entry.NewsObj, &n); err != nil {
			continue
		}
		out = append(out, RawArticle{
			Title:     n.Title,
			ImageURL:  n.ImageURL,
			URL:       n.ShortenedURL,
			Content:   n.Content,
			Author:    n.AuthorName,
			CreatedAt: int64(n.CreatedAt),
			SourceURL: n.SourceURL,
		})
	}
	return out
}
