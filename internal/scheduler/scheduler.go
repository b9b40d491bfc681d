package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/ShortsHub/internal/collector"
	"github.com/LJTian/ShortsHub/internal/logger"
	"github.com/robfig/cron/v3"
)

const probeTimeout = 15 * time.Second

// ProbeStatus 最近一次上游探活结果
type ProbeStatus struct {
	OK        bool      `json:"ok"`
	CheckedAt time.Time `json:"checkedAt"`
	LatencyMS int64     `json:"latencyMs"`
	Error     string    `json:"error,omitempty"`
}

// Prober 按 cron 周期用最小分页请求上游，只记录可用性，不缓存任何文章
type Prober struct {
	cron    *cron.Cron
	fetcher collector.PageFetcher

	mu     sync.RWMutex
	status ProbeStatus
	ran    bool
}

func New(spec string, fetcher collector.PageFetcher) (*Prober, error) {
	c := cron.New()

	p := &Prober{
		cron:    c,
		fetcher: fetcher,
	}

	if _, err := c.AddFunc(spec, p.runOnce); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Prober) Start() {
	p.cron.Start()
	// 启动后先探一次，/health 不必等到第一个 cron 周期
	go p.runOnce()
}

// Stop 停止调度并等待正在执行的探活结束
func (p *Prober) Stop() {
	<-p.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发
func (p *Prober) RunOnce() ProbeStatus {
	p.runOnce()
	st, _ := p.Status()
	return st
}

// Status 第二个返回值为 false 表示还没有探活过
func (p *Prober) Status() (ProbeStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status, p.ran
}

func (p *Prober) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	start := time.Now()
	_, err := p.fetcher.FetchPage(ctx, "all", 1, 0)
	st := ProbeStatus{
		OK:        err == nil,
		CheckedAt: start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		st.Error = err.Error()
		logger.L.Warnf("probe: upstream check failed: %v", err)
	} else {
		logger.L.Debugf("probe: upstream ok in %dms", st.LatencyMS)
	}

	p.mu.Lock()
	p.status = st
	p.ran = true
	p.mu.Unlock()
}
