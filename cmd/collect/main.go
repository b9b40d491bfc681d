package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/LJTian/ShortsHub/internal/aggregator"
	"github.com/LJTian/ShortsHub/internal/api"
	"github.com/LJTian/ShortsHub/internal/collector"
	"github.com/LJTian/ShortsHub/internal/config"
	"github.com/LJTian/ShortsHub/internal/logger"
	"github.com/LJTian/ShortsHub/internal/processor"
	"github.com/spf13/cobra"
)

type options struct {
	category string
	year     string
	limit    int
	offset   int
	timeout  time.Duration
}

// 一个仅执行一次聚合的命令行入口：适合手动排查上游数据
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "collect",
		Short:         "Run a single news aggregation and print the response as JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.LoggerConfig()); err != nil {
				return err
			}
			defer logger.Sync()

			client := collector.NewInshortsClient(cfg.UpstreamBaseURL, cfg.UpstreamUserAgent, cfg.UpstreamTimeout)
			if err := run(cmd.Context(), client, cfg, opts, cmd.Flags().Changed, cmd.OutOrStdout()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "collect:", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "all", "news category (all = every category)")
	cmd.Flags().StringVar(&opts.year, "year", "", "target year or comma separated years (default: configured window)")
	cmd.Flags().IntVar(&opts.limit, "limit", 10, "number of articles to return")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "start position in the sorted result stream")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "overall deadline for the aggregation")
	return cmd
}

// run 复用 HTTP 接口的校验与响应结构；上游失败时输出失败响应并返回错误
func run(ctx context.Context, fetcher collector.PageFetcher, cfg *config.Config, opts *options, changed func(string) bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	v := url.Values{}
	v.Set("category", opts.category)
	if opts.year != "" {
		v.Set("year", opts.year)
	}
	if changed("limit") {
		v.Set("limit", strconv.Itoa(opts.limit))
	}
	if changed("offset") {
		v.Set("offset", strconv.Itoa(opts.offset))
	}

	req, err := api.ParseValues(v, cfg, config.Now())
	if err != nil {
		return err
	}

	agg := aggregator.New(fetcher, aggregator.Options{
		BatchFloor: cfg.BatchFloor,
		MaxCalls:   cfg.MaxUpstreamCalls,
		Normalizer: processor.NewNormalizer(cfg.Location()),
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	res, err := agg.Aggregate(ctx, req.Window)
	if err != nil {
		_ = enc.Encode(api.Failure(req, api.MsgUpstreamFailed))
		return err
	}
	return enc.Encode(api.Assemble(req, res))
}
