package processor

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/ShortsHub/internal/collector"
	"github.com/google/uuid"
)

const (
	dateLayout = "Monday, 02 January 2006"
	timeLayout = "03:04 pm"
)

// Article 是返回给调用方的新闻结构
type Article struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ImageURL    string `json:"imageUrl"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	ReadMoreURL string `json:"readMoreUrl"`
}

// Normalized 带排序键的内部结构；SortKey 只用于排序，出核心前丢弃
type Normalized struct {
	Article Article
	SortKey float64 // 秒
}

// Years 目标年份集合
type Years []int

func (y Years) Contains(year int) bool {
	return slices.Contains(y, year)
}

// String 形如 "2026, 2025, 2024"
func (y Years) String() string {
	parts := make([]string, 0, len(y))
	for _, v := range y {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ", ")
}

// PageStats 单页处理统计，用于日志
type PageStats struct {
	Received   int
	OutOfRange int
	Duplicates int
	Accepted   int
}

// Normalizer 负责年份过滤、字段整理与 ID 生成
type Normalizer struct {
	loc   *time.Location
	newID func() string
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, newID: uuid.NewString}
}

// Year 按展示时区计算文章年份
func (n *Normalizer) Year(raw collector.RawArticle) int {
	return time.UnixMilli(raw.CreatedAt).In(n.loc).Year()
}

func (n *Normalizer) Normalize(raw collector.RawArticle) Normalized {
	ts := time.UnixMilli(raw.CreatedAt).In(n.loc)
	return Normalized{
		Article: Article{
			ID:          n.newID(),
			Title:       raw.Title,
			ImageURL:    raw.ImageURL,
			URL:         raw.URL,
			Content:     raw.Content,
			Author:      raw.Author,
			Date:        ts.Format(dateLayout),
			Time:        ts.Format(timeLayout),
			ReadMoreURL: raw.SourceURL,
		},
		SortKey: float64(raw.CreatedAt) / 1000,
	}
}

// Process 过滤不在目标年份的文章，其余规范化后按 (title, url) 去重；
// seen 由调用方按请求创建并在多页之间传递
func (n *Normalizer) Process(items []collector.RawArticle, years Years, seen SeenSet) ([]Normalized, PageStats) {
	stats := PageStats{Received: len(items)}
	out := make([]Normalized, 0, len(items))

	for _, it := range items {
		if !years.Contains(n.Year(it)) {
			stats.OutOfRange++
			continue
		}
		if !seen.Add(it.Title, it.URL) {
			stats.Duplicates++
			continue
		}
		out = append(out, n.Normalize(it))
	}

	stats.Accepted = len(out)
	return out, stats
}
