package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v2"
)

const (
	ProvisionContainer = "container"
	ProvisionExternal  = "external"
)

// Config 运行配置
//
// 先读 CRUDBENCH_CONFIG 指定的 yaml 文件, 再用环境变量覆盖, 当前目录下的 .env 会被加载
type Config struct {
	Sizes       []int    `yaml:"sizes"`
	Iterations  int      `yaml:"iterations"`
	Seed        int64    `yaml:"seed"`
	FixtureDir  string   `yaml:"fixture_dir"`
	Stores      []string `yaml:"stores"`
	Cases       []string `yaml:"cases"`
	SearchName  string   `yaml:"search_name"`
	Concurrency int      `yaml:"concurrency"`

	Provision     string `yaml:"provision"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisURL      string `yaml:"redis_url"`
	PostgresImage string `yaml:"postgres_image"`
	RedisImage    string `yaml:"redis_image"`

	Pragma   Pragma `yaml:"pragma"`
	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Sizes:         []int{1, 10, 100, 1000},
		Iterations:    16,
		Seed:          1,
		Stores:        []string{string(StoreSQLite), string(StorePostgres), string(StoreRedis)},
		SearchName:    "Laura",
		Concurrency:   64,
		Provision:     ProvisionContainer,
		PostgresDSN:   defaultPGSQLDSN,
		RedisURL:      "redis://localhost:6379/0",
		PostgresImage: "postgres:16-alpine",
		RedisImage:    "redis/redis-stack-server:latest",
		Pragma:        defaultPragma,
		LogLevel:      "info",
	}
}

// LoadConfig 默认值 <- yaml 文件 <- 环境变量
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env, %w", err)
	}

	cfg := DefaultConfig()
	if path := os.Getenv("CRUDBENCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config, %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s, %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CRUDBENCH_SIZES"); v != "" {
		sizes, err := parseInts(v)
		if err != nil {
			return fmt.Errorf("CRUDBENCH_SIZES, %w", err)
		}
		c.Sizes = sizes
	}
	if v := os.Getenv("CRUDBENCH_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRUDBENCH_ITERATIONS, %w", err)
		}
		c.Iterations = n
	}
	if v := os.Getenv("CRUDBENCH_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CRUDBENCH_SEED, %w", err)
		}
		c.Seed = n
	}
	if v := os.Getenv("CRUDBENCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRUDBENCH_CONCURRENCY, %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("CRUDBENCH_STORES"); v != "" {
		c.Stores = splitList(v)
	}
	if v := os.Getenv("CRUDBENCH_CASES"); v != "" {
		c.Cases = splitList(v)
	}
	if v, ok := os.LookupEnv("CRUDBENCH_FIXTURES"); ok {
		c.FixtureDir = v
	}
	if v := os.Getenv("CRUDBENCH_PROVISION"); v != "" {
		c.Provision = v
	}
	if v := os.Getenv("CRUDBENCH_SEARCH_NAME"); v != "" {
		c.SearchName = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate 检查配置
func (c Config) Validate() error {
	if len(c.Sizes) == 0 {
		return errors.New("no sizes configured")
	}
	for _, n := range c.Sizes {
		if n <= 0 {
			return fmt.Errorf("size must be positive, got %d", n)
		}
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if _, err := c.StoreList(); err != nil {
		return err
	}
	if c.Provision != ProvisionContainer && c.Provision != ProvisionExternal {
		return fmt.Errorf("unknown provision mode %q", c.Provision)
	}

	known := map[string]bool{}
	for _, name := range CaseNames() {
		known[name] = true
	}
	for _, name := range c.Cases {
		if !known[name] {
			return fmt.Errorf("unknown case %q", name)
		}
	}
	return nil
}

// StoreList 解析后的存储列表
func (c Config) StoreList() ([]Store, error) {
	stores := make([]Store, 0, len(c.Stores))
	for _, v := range c.Stores {
		s, err := parseStore(v)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, nil
}

// Level 日志级别
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func splitList(v string) []string {
	var result []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

func parseInts(v string) ([]int, error) {
	var result []int
	for _, s := range splitList(v) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, nil
}
