package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/LJTian/ShortsHub/internal/collector"
	"github.com/LJTian/ShortsHub/internal/logger"
	"github.com/LJTian/ShortsHub/internal/processor"
	"go.uber.org/zap"
)

const (
	defaultBatchFloor = 25
	defaultMaxCalls   = 10
	batchMultiplier   = 3
)

var ErrInvalidWindow = errors.New("invalid request window")

// StopReason 记录分页循环为什么结束
type StopReason string

const (
	StopNone         StopReason = ""
	StopWindowFilled StopReason = "window_filled"
	StopShortPage    StopReason = "short_page"
	StopEmptyPage    StopReason = "empty_page"
	StopCallLimit    StopReason = "call_limit"
)

// Window 调用方请求的窗口，已由边界层校验
type Window struct {
	Category string
	Years    processor.Years
	Limit    int
	Offset   int
}

type Result struct {
	Articles []processor.Article
	Total    int // 窗口切片前累计的去重文章数
	Showing  int
	Calls    int
	Stop     StopReason
}

type Options struct {
	BatchFloor int
	MaxCalls   int // 单个请求最多调用上游的次数，保证循环一定结束
	Normalizer *processor.Normalizer
	Logger     *zap.SugaredLogger // 为空时使用全局 logger.L
}

// Aggregator 无共享可变状态，可被多个请求并发使用
type Aggregator struct {
	fetcher    collector.PageFetcher
	batchFloor int
	maxCalls   int
	normalizer *processor.Normalizer
	log        *zap.SugaredLogger
}

func New(fetcher collector.PageFetcher, opts Options) *Aggregator {
	a := &Aggregator{
		fetcher:    fetcher,
		batchFloor: opts.BatchFloor,
		maxCalls:   opts.MaxCalls,
		normalizer: opts.Normalizer,
		log:        opts.Logger,
	}
	if a.batchFloor <= 0 {
		a.batchFloor = defaultBatchFloor
	}
	if a.maxCalls <= 0 {
		a.maxCalls = defaultMaxCalls
	}
	if a.normalizer == nil {
		a.normalizer = processor.NewNormalizer(time.UTC)
	}
	if a.log == nil {
		a.log = logger.L
	}
	return a
}

// BatchSize 上游每页的条数：至少 batchFloor，并且不少于 limit 的 3 倍，以减少往返
func (a *Aggregator) BatchSize(limit int) int {
	return max(a.batchFloor, batchMultiplier*limit)
}

// state 单次请求的聚合状态，请求结束即丢弃
type state struct {
	acc         []processor.Normalized
	seen        processor.SeenSet
	fetchOffset int
	calls       int
}

// Aggregate 反复拉取上游分页，累积、去重、按时间倒序排序后切出 [offset, offset+limit)。
// 任一页上游失败都会放弃已累积的数据并返回错误
func (a *Aggregator) Aggregate(ctx context.Context, w Window) (Result, error) {
	if w.Limit < 0 || w.Offset < 0 {
		return Result{}, fmt.Errorf("aggregator: limit=%d offset=%d: %w", w.Limit, w.Offset, ErrInvalidWindow)
	}
	if len(w.Years) == 0 {
		return Result{}, fmt.Errorf("aggregator: no target years: %w", ErrInvalidWindow)
	}
	if w.Limit == 0 {
		return Result{Articles: []processor.Article{}}, nil
	}

	batch := a.BatchSize(w.Limit)
	need := windowEnd(w.Offset, w.Limit)
	st := &state{seen: processor.NewSeenSet()}
	stop := StopNone

	for st.calls < a.maxCalls {
		if err := ctx.Err(); err != nil {
			return Result{Calls: st.calls}, fmt.Errorf("aggregator: %w", err)
		}

		page, err := a.fetcher.FetchPage(ctx, w.Category, batch, st.fetchOffset)
		st.calls++
		if err != nil {
			a.log.Warnf("aggregator: upstream failed at offset=%d after %d calls: %v", st.fetchOffset, st.calls, err)
			return Result{Calls: st.calls}, fmt.Errorf("aggregator: page at offset %d: %w", st.fetchOffset, err)
		}

		if len(page) == 0 {
			stop = StopEmptyPage
			break
		}

		accepted, stats := a.normalizer.Process(page, w.Years, st.seen)
		st.acc = append(st.acc, accepted...)
		// 上游分页在两次调用之间可能漂移，每页之后都做一次全局稳定排序
		sort.SliceStable(st.acc, func(i, j int) bool {
			return st.acc[i].SortKey > st.acc[j].SortKey
		})

		a.log.Debugf("aggregator: category=%s offset=%d batch=%d received=%d accepted=%d out_of_range=%d dup=%d total=%d",
			w.Category, st.fetchOffset, batch, stats.Received, stats.Accepted, stats.OutOfRange, stats.Duplicates, len(st.acc))

		if len(st.acc) >= need {
			stop = StopWindowFilled
			break
		}
		if len(page) < batch {
			stop = StopShortPage
			break
		}
		st.fetchOffset += batch
	}
	if stop == StopNone {
		stop = StopCallLimit
	}

	articles := window(st.acc, w.Offset, w.Limit)
	res := Result{
		Articles: articles,
		Total:    len(st.acc),
		Showing:  len(articles),
		Calls:    st.calls,
		Stop:     stop,
	}

	a.log.Infof("aggregator: category=%s years=%s limit=%d offset=%d calls=%d total=%d showing=%d stop=%s",
		w.Category, w.Years, w.Limit, w.Offset, res.Calls, res.Total, res.Showing, res.Stop)
	return res, nil
}

// windowEnd 返回 offset+limit，溢出时饱和到 math.MaxInt（窗口永远填不满）
func windowEnd(offset, limit int) int {
	if offset > math.MaxInt-limit {
		return math.MaxInt
	}
	return offset + limit
}

// window 切出 [offset, offset+limit) 并丢弃排序键
func window(acc []processor.Normalized, offset, limit int) []processor.Article {
	start := min(offset, len(acc))
	end := start + min(limit, len(acc)-start)

	out := make([]processor.Article, 0, end-start)
	for _, n := range acc[start:end] {
		out = append(out, n.Article)
	}
	return out
}
