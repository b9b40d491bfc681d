package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/LJTian/ShortsHub/internal/collector"
	"github.com/LJTian/ShortsHub/internal/processor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeUpstream 按 offset/batch 从内存列表切页，并记录调用
type fakeUpstream struct {
	page  func(call, batch, offset int) ([]collector.RawArticle, error)
	calls []fakeCall
}

type fakeCall struct {
	category string
	batch    int
	offset   int
}

func (f *fakeUpstream) FetchPage(_ context.Context, category string, batch, offset int) ([]collector.RawArticle, error) {
	f.calls = append(f.calls, fakeCall{category: category, batch: batch, offset: offset})
	return f.page(len(f.calls), batch, offset)
}

// stableUpstream 模拟一个不漂移的上游：按 offset 切片
func stableUpstream(all []collector.RawArticle) *fakeUpstream {
	return &fakeUpstream{page: func(_, batch, offset int) ([]collector.RawArticle, error) {
		if offset >= len(all) {
			return nil, nil
		}
		end := min(offset+batch, len(all))
		return all[offset:end], nil
	}}
}

func ts(year int, minute int) int64 {
	return time.Date(year, 6, 1, 12, minute, 0, 0, time.UTC).UnixMilli()
}

// articles 生成 n 条不重复、按时间倒序的文章
func articles(prefix string, year, n int) []collector.RawArticle {
	out := make([]collector.RawArticle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, collector.RawArticle{
			Title:     fmt.Sprintf("%s-%d", prefix, i),
			URL:       fmt.Sprintf("https://shrts.in/%s%d", prefix, i),
			CreatedAt: ts(year, 59-i%60) - int64(i/60)*3600_000,
		})
	}
	return out
}

func newAggregator(f collector.PageFetcher, floor, maxCalls int) *Aggregator {
	return New(f, Options{
		BatchFloor: floor,
		MaxCalls:   maxCalls,
		Normalizer: processor.NewNormalizer(time.UTC),
	})
}

func titles(as []processor.Article) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Title)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBatchSize(t *testing.T) {
	a := newAggregator(stableUpstream(nil), 25, 10)
	if got := a.BatchSize(5); got != 25 {
		t.Fatalf("BatchSize(5) = %d, want floor 25", got)
	}
	if got := a.BatchSize(10); got != 30 {
		t.Fatalf("BatchSize(10) = %d, want 30", got)
	}
	if got := New(nil, Options{}).BatchSize(1); got != defaultBatchFloor {
		t.Fatalf("default floor = %d, want %d", got, defaultBatchFloor)
	}
}

func TestStopsAfterFirstPageWhenWindowFilled(t *testing.T) {
	// 上游共 3 页，每页 20 条，全部为目标年份
	all := articles("p", 2025, 60)
	f := &fakeUpstream{page: func(call, _, _ int) ([]collector.RawArticle, error) {
		if call > 3 {
			return nil, nil
		}
		return all[(call-1)*20 : call*20], nil
	}}

	res, err := newAggregator(f, 20, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 10})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected exactly 1 upstream call, got %d", len(f.calls))
	}
	if res.Stop != StopWindowFilled {
		t.Fatalf("Stop = %s, want %s", res.Stop, StopWindowFilled)
	}
	if res.Total != 20 || res.Showing != 10 {
		t.Fatalf("Total/Showing = %d/%d, want 20/10", res.Total, res.Showing)
	}
	want := titles(toArticles(all[:10]))
	if got := titles(res.Articles); !equalStrings(got, want) {
		t.Fatalf("expected 10 most recent, got %v", got)
	}
}

func TestShortPageStopsAfterOneCall(t *testing.T) {
	f := stableUpstream(articles("s", 2025, 3))
	res, err := newAggregator(f, 25, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 10})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(f.calls))
	}
	if res.Stop != StopShortPage || res.Showing != 3 {
		t.Fatalf("Stop=%s Showing=%d, want short_page/3", res.Stop, res.Showing)
	}
}

func TestEmptyFirstPage(t *testing.T) {
	f := stableUpstream(nil)
	res, err := newAggregator(f, 25, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 5})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if res.Stop != StopEmptyPage || res.Total != 0 || len(res.Articles) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Articles == nil {
		t.Fatalf("Articles should be an empty slice, not nil")
	}
}

func TestPagesAdvanceByBatch(t *testing.T) {
	f := stableUpstream(articles("x", 2025, 100))
	_, err := newAggregator(f, 25, 10).Aggregate(context.Background(), Window{Category: "sports", Years: processor.Years{2025}, Limit: 10, Offset: 50})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	// batch=30，需要 60 条 -> offset 0, 30
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(f.calls))
	}
	for i, c := range f.calls {
		if c.batch != 30 || c.offset != i*30 || c.category != "sports" {
			t.Fatalf("call %d = %+v", i, c)
		}
	}
}

func TestDuplicateWithinPageKeepsFirst(t *testing.T) {
	page := []collector.RawArticle{
		{Title: "Same", URL: "https://s", Content: "first", CreatedAt: ts(2025, 10)},
		{Title: "Same", URL: "https://s", Content: "second", CreatedAt: ts(2025, 20)},
		{Title: "Other", URL: "https://o", CreatedAt: ts(2025, 5)},
	}
	f := stableUpstream(page)
	res, err := newAggregator(f, 25, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 10})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("Total = %d, want 2", res.Total)
	}
	if res.Articles[0].Content != "first" {
		t.Fatalf("first encountered duplicate should be kept, got %q", res.Articles[0].Content)
	}
}

func TestDriftingUpstreamIsDeduplicatedAndSorted(t *testing.T) {
	// 第二页与第一页重叠（新文章插入导致分页整体后移）
	all := articles("d", 2025, 40)
	fresh := collector.RawArticle{Title: "fresh", URL: "https://fresh", CreatedAt: ts(2025, 59) + 60_000}
	f := &fakeUpstream{page: func(call, batch, _ int) ([]collector.RawArticle, error) {
		switch call {
		case 1:
			return all[:batch], nil
		case 2:
			shifted := append([]collector.RawArticle{fresh}, all...)
			return shifted[batch : 2*batch], nil
		default:
			return nil, nil
		}
	}}

	// batch=10，需要 15 条 -> 两页
	res, err := newAggregator(f, 10, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 3, Offset: 12})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	assertInvariants(t, res, processor.Years{2025}, 3)
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(f.calls))
	}
	// 第二页的第一条与第一页最后一条重复
	if res.Total != 2*10-1 {
		t.Fatalf("Total = %d, want 19 after dedupe", res.Total)
	}
}

func TestYearFilterAndSortAcrossYears(t *testing.T) {
	raw := []collector.RawArticle{
		{Title: "2023", URL: "u1", CreatedAt: ts(2023, 1)},
		{Title: "2025", URL: "u2", CreatedAt: ts(2025, 1)},
		{Title: "2019", URL: "u3", CreatedAt: ts(2019, 1)},
		{Title: "2024", URL: "u4", CreatedAt: ts(2024, 1)},
	}
	res, err := newAggregator(stableUpstream(raw), 25, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025, 2024, 2023}, Limit: 10})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if got := titles(res.Articles); !equalStrings(got, []string{"2025", "2024", "2023"}) {
		t.Fatalf("titles = %v", got)
	}
	assertInvariants(t, res, processor.Years{2025, 2024, 2023}, 10)
}

func TestTiesKeepUpstreamOrder(t *testing.T) {
	same := ts(2025, 30)
	raw := []collector.RawArticle{
		{Title: "a", URL: "a", CreatedAt: same},
		{Title: "b", URL: "b", CreatedAt: same},
		{Title: "c", URL: "c", CreatedAt: same},
	}
	res, err := newAggregator(stableUpstream(raw), 25, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 3})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if got := titles(res.Articles); !equalStrings(got, []string{"a", "b", "c"}) {
		t.Fatalf("ties should keep upstream order, got %v", got)
	}
}

func TestUpstreamFailureOnSecondCallReturnsNoData(t *testing.T) {
	all := articles("f", 2025, 30)
	f := &fakeUpstream{page: func(call, batch, offset int) ([]collector.RawArticle, error) {
		if call == 2 {
			return nil, fmt.Errorf("boom: %w", collector.ErrUpstreamUnavailable)
		}
		return all[offset : offset+batch], nil
	}}

	res, err := newAggregator(f, 10, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 3, Offset: 12})
	if !errors.Is(err, collector.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if len(res.Articles) != 0 || res.Total != 0 {
		t.Fatalf("failure must not carry partial data: %+v", res)
	}
	if res.Calls != 2 {
		t.Fatalf("Calls = %d, want 2", res.Calls)
	}
}

func TestCallCeilingWhenFilterMatchesNothing(t *testing.T) {
	full := articles("old", 2001, 25)
	f := &fakeUpstream{page: func(_, _, _ int) ([]collector.RawArticle, error) {
		return full, nil // 永远返回满页
	}}

	res, err := newAggregator(f, 25, 4).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 5})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if len(f.calls) != 4 || res.Stop != StopCallLimit {
		t.Fatalf("calls=%d stop=%s, want 4/call_limit", len(f.calls), res.Stop)
	}
	if res.Total != 0 || len(res.Articles) != 0 {
		t.Fatalf("no article should match: %+v", res)
	}
}

func TestWindowingConcatenation(t *testing.T) {
	all := articles("w", 2025, 80)
	agg := newAggregator(stableUpstream(all), 25, 10)
	ctx := context.Background()
	years := processor.Years{2025}

	first, err := agg.Aggregate(ctx, Window{Category: "all", Years: years, Limit: 5, Offset: 0})
	if err != nil {
		t.Fatalf("first window: %v", err)
	}
	second, err := agg.Aggregate(ctx, Window{Category: "all", Years: years, Limit: 5, Offset: 5})
	if err != nil {
		t.Fatalf("second window: %v", err)
	}
	both, err := agg.Aggregate(ctx, Window{Category: "all", Years: years, Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("combined window: %v", err)
	}

	got := append(titles(first.Articles), titles(second.Articles)...)
	if want := titles(both.Articles); !equalStrings(got, want) {
		t.Fatalf("concatenation mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestIdenticalRequestsAreIdempotent(t *testing.T) {
	all := articles("i", 2025, 50)
	agg := newAggregator(stableUpstream(all), 25, 10)
	w := Window{Category: "all", Years: processor.Years{2025}, Limit: 7, Offset: 3}

	r1, err := agg.Aggregate(context.Background(), w)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	r2, err := agg.Aggregate(context.Background(), w)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(r1.Articles) != len(r2.Articles) {
		t.Fatalf("length differs: %d vs %d", len(r1.Articles), len(r2.Articles))
	}
	for i := range r1.Articles {
		a, b := r1.Articles[i], r2.Articles[i]
		a.ID, b.ID = "", ""
		if a != b {
			t.Fatalf("article %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestOffsetBeyondTotal(t *testing.T) {
	res, err := newAggregator(stableUpstream(articles("o", 2025, 4)), 25, 10).Aggregate(context.Background(), Window{Category: "all", Years: processor.Years{2025}, Limit: 5, Offset: 10})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if res.Total != 4 || res.Showing != 0 || len(res.Articles) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestInvalidWindow(t *testing.T) {
	f := stableUpstream(articles("v", 2025, 5))
	agg := newAggregator(f, 25, 10)
	bad := []Window{
		{Years: processor.Years{2025}, Limit: -1},
		{Years: processor.Years{2025}, Limit: 1, Offset: -1},
		{Limit: 1},
	}
	for _, w := range bad {
		if _, err := agg.Aggregate(context.Background(), w); !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("window %+v: expected ErrInvalidWindow, got %v", w, err)
		}
	}
	if len(f.calls) != 0 {
		t.Fatalf("invalid windows must not reach upstream")
	}

	res, err := agg.Aggregate(context.Background(), Window{Years: processor.Years{2025}, Limit: 0})
	if err != nil || len(res.Articles) != 0 || len(f.calls) != 0 {
		t.Fatalf("limit 0 should return empty without calls: res=%+v err=%v calls=%d", res, err, len(f.calls))
	}
}

func TestCanceledContextStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	all := articles("c", 2001, 25)
	f := &fakeUpstream{page: func(call, _, _ int) ([]collector.RawArticle, error) {
		if call == 1 {
			cancel()
		}
		return all, nil
	}}

	_, err := newAggregator(f, 25, 10).Aggregate(ctx, Window{Category: "all", Years: processor.Years{2025}, Limit: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("loop should stop after cancellation, calls=%d", len(f.calls))
	}
}

// assertInvariants 检查长度、年份、去重与排序
func assertInvariants(t *testing.T, res Result, years processor.Years, limit int) {
	t.Helper()
	if len(res.Articles) > limit {
		t.Fatalf("returned %d articles, limit %d", len(res.Articles), limit)
	}
	seen := processor.NewSeenSet()
	var prev time.Time
	for i, a := range res.Articles {
		if !seen.Add(a.Title, a.URL) {
			t.Fatalf("duplicate (title, url) in data: %q %q", a.Title, a.URL)
		}
		when, err := time.Parse("Monday, 02 January 2006 03:04 pm", a.Date+" "+a.Time)
		if err != nil {
			t.Fatalf("unparseable date/time %q %q: %v", a.Date, a.Time, err)
		}
		if !years.Contains(when.Year()) {
			t.Fatalf("article year %d not in %v", when.Year(), years)
		}
		if i > 0 && when.After(prev) {
			t.Fatalf("data not sorted descending at %d", i)
		}
		prev = when
	}
}

func toArticles(raw []collector.RawArticle) []processor.Article {
	out := make([]processor.Article, 0, len(raw))
	for _, r := range raw {
		out = append(out, processor.Article{Title: r.Title, URL: r.URL})
	}
	return out
}

func TestHugeOffsetDoesNotOverflow(t *testing.T) {
	// offset+limit 溢出时窗口视为永远填不满：一直拉到上游耗尽，然后返回空窗口
	f := stableUpstream(articles("h", 2025, 45))

	res, err := newAggregator(f, 20, 10).Aggregate(context.Background(), Window{Years: processor.Years{2025}, Limit: 10, Offset: math.MaxInt})
	if err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	if res.Stop != StopShortPage {
		t.Fatalf("Stop = %s, want %s", res.Stop, StopShortPage)
	}
	if res.Total != 45 || res.Showing != 0 || len(res.Articles) != 0 {
		t.Fatalf("Total=%d Showing=%d len=%d, want 45/0/0", res.Total, res.Showing, len(res.Articles))
	}
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", len(f.calls))
	}
}

func TestWindowEndSaturates(t *testing.T) {
	if got := windowEnd(5, 10); got != 15 {
		t.Fatalf("windowEnd(5, 10) = %d, want 15", got)
	}
	if got := windowEnd(math.MaxInt-3, 10); got != math.MaxInt {
		t.Fatalf("windowEnd near MaxInt = %d, want MaxInt", got)
	}
}

func TestWindowNearBoundary(t *testing.T) {
	acc := make([]processor.Normalized, 5)
	for i := range acc {
		acc[i].Article.Title = fmt.Sprintf("t%d", i)
	}
	if got := titles(window(acc, 3, math.MaxInt)); !equalStrings(got, []string{"t3", "t4"}) {
		t.Fatalf("window(3, MaxInt) = %v", got)
	}
	if got := window(acc, math.MaxInt, math.MaxInt); len(got) != 0 {
		t.Fatalf("window(MaxInt, MaxInt) = %v, want empty", got)
	}
}

func TestUsesInjectedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := New(stableUpstream(articles("l", 2025, 5)), Options{
		BatchFloor: 10,
		Normalizer: processor.NewNormalizer(time.UTC),
		Logger:     zap.New(core).Sugar(),
	})

	if _, err := a.Aggregate(context.Background(), Window{Years: processor.Years{2025}, Limit: 3}); err != nil {
		t.Fatalf("Aggregate error: %v", err)
	}
	summary := logs.FilterLevelExact(zapcore.InfoLevel).All()
	if len(summary) != 1 {
		t.Fatalf("expected 1 info summary entry, got %d", len(summary))
	}
	if msg := summary[0].Message; !strings.Contains(msg, "stop=window_filled") {
		t.Fatalf("summary = %q, want stop reason", msg)
	}
}
