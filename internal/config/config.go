package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/ShortsHub/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	YearModeRolling = "rolling" // 当前年 + 前两年
	YearModeCurrent = "current" // 仅当前年
)

type Config struct {
	AppPort string `yaml:"app_port"`

	UpstreamBaseURL   string        `yaml:"upstream_base_url"`
	UpstreamTimeout   time.Duration `yaml:"upstream_timeout"`
	UpstreamUserAgent string        `yaml:"upstream_user_agent"`

	BatchFloor       int `yaml:"batch_floor"`
	MaxUpstreamCalls int `yaml:"max_upstream_calls"`
	MaxLimit         int `yaml:"max_limit"`
	DefaultLimit     int `yaml:"default_limit"`

	YearMode string `yaml:"year_mode"`
	Timezone string `yaml:"timezone"`

	ProbeCron       string `yaml:"probe_cron"`
	CORSAllowOrigin string `yaml:"cors_allow_origin"`

	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogMaxSize    int    `yaml:"log_max_size"` // MB
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAge     int    `yaml:"log_max_age"` // 天
}

func defaults() *Config {
	return &Config{
		AppPort:           "9000",
		UpstreamBaseURL:   "https://inshorts.com/api/en/news",
		UpstreamTimeout:   10 * time.Second,
		UpstreamUserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		BatchFloor:        25,
		MaxUpstreamCalls:  10,
		MaxLimit:          100,
		DefaultLimit:      10,
		YearMode:          YearModeRolling,
		Timezone:          "Asia/Kolkata",
		ProbeCron:         "*/10 * * * *",
		CORSAllowOrigin:   "*",
		LogLevel:          "info",
		LogMaxSize:        64,
		LogMaxBackups:     3,
		LogMaxAge:         7,
	}
}

// Load 依次叠加：内置默认值 -> CONFIG_FILE 指定的 YAML -> 环境变量（含 .env）
func Load() (*Config, error) {
	// 本地开发用 .env，容器内直接注入环境变量，文件不存在时忽略
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.AppPort = getEnv("APP_PORT", cfg.AppPort)
	cfg.UpstreamBaseURL = getEnv("UPSTREAM_BASE_URL", cfg.UpstreamBaseURL)
	cfg.UpstreamTimeout = getDurationEnv("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	cfg.UpstreamUserAgent = getEnv("UPSTREAM_USER_AGENT", cfg.UpstreamUserAgent)
	cfg.BatchFloor = getIntEnv("BATCH_FLOOR", cfg.BatchFloor)
	cfg.MaxUpstreamCalls = getIntEnv("MAX_UPSTREAM_CALLS", cfg.MaxUpstreamCalls)
	cfg.MaxLimit = getIntEnv("MAX_LIMIT", cfg.MaxLimit)
	cfg.DefaultLimit = getIntEnv("DEFAULT_LIMIT", cfg.DefaultLimit)
	cfg.YearMode = strings.ToLower(getEnv("YEAR_MODE", cfg.YearMode))
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.CORSAllowOrigin = getEnv("CORS_ALLOW_ORIGIN", cfg.CORSAllowOrigin)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSize = getIntEnv("LOG_MAX_SIZE", cfg.LogMaxSize)
	cfg.LogMaxBackups = getIntEnv("LOG_MAX_BACKUPS", cfg.LogMaxBackups)
	cfg.LogMaxAge = getIntEnv("LOG_MAX_AGE", cfg.LogMaxAge)
	// PROBE_CRON 允许显式设为空以关闭探活，因此用 LookupEnv
	if v, ok := os.LookupEnv("PROBE_CRON"); ok {
		cfg.ProbeCron = strings.TrimSpace(v)
	}

	cfg.normalize()
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// normalize 把非法取值拉回默认值
func (c *Config) normalize() {
	d := defaults()
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = d.UpstreamTimeout
	}
	if c.BatchFloor <= 0 {
		c.BatchFloor = d.BatchFloor
	}
	if c.MaxUpstreamCalls <= 0 {
		c.MaxUpstreamCalls = d.MaxUpstreamCalls
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = d.MaxLimit
	}
	if c.DefaultLimit <= 0 || c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = min(d.DefaultLimit, c.MaxLimit)
	}
	if c.YearMode != YearModeCurrent {
		c.YearMode = YearModeRolling
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
}

// Location 返回日期/时间展示与年份判断使用的时区
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	// 容器里可能没有 tzdata
	return time.FixedZone("IST", 5*3600+1800)
}

// LoggerConfig 把日志相关配置转换为 logger.Init 的参数
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
