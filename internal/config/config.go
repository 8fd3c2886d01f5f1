package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent 浏览器风格的 UA，很多站点会拒绝默认的 Go-http-client 标识。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config 是 feedstream 的顶层配置结构。
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Cache      CacheConfig      `yaml:"cache"`
	HTTP       HTTPConfig       `yaml:"http"`
	LLM        LLMConfig        `yaml:"llm"`
	Auth       AuthConfig       `yaml:"auth"`
	Recommend  RecommendConfig  `yaml:"recommend"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// MaxBatch 单次 /stream-noticias 请求允许的最大 URL 数。
	MaxBatch    int      `yaml:"max_batch"`
	CORSOrigins []string `yaml:"cors_origins"`
	// MaxInFlight 同时处理的请求上限，0 表示不限制。
	MaxInFlight     int           `yaml:"max_in_flight"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AggregatorConfig 聚合引擎配置。
type AggregatorConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	BatchDeadline  time.Duration `yaml:"batch_deadline"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ItemsPerSource int           `yaml:"items_per_source"`
	SummaryMax     int           `yaml:"summary_max_chars"`
	// ReportAbandoned 为 true 时，截止时间到达后为未完成的源输出 error 记录。
	ReportAbandoned *bool `yaml:"report_abandoned"`
	// ParseWorkers 同时解析 Feed 文档的上限，0 表示 GOMAXPROCS。
	ParseWorkers int   `yaml:"parse_workers"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// CacheConfig 两级缓存的容量与过期时间。
type CacheConfig struct {
	LocationCapacity int           `yaml:"location_capacity"`
	LocationTTL      time.Duration `yaml:"location_ttl"`
	ItemsCapacity    int           `yaml:"items_capacity"`
	ItemsTTL         time.Duration `yaml:"items_ttl"`
}

// HTTPConfig 出站抓取客户端配置。
type HTTPConfig struct {
	UserAgent string `yaml:"user_agent"`
	// InsecureSkipVerify 跳过 TLS 证书校验，为兼容部分源站的部署取舍。
	InsecureSkipVerify *bool `yaml:"insecure_skip_verify"`
	MaxRedirects       int   `yaml:"max_redirects"`
}

// LLMConfig 大模型配置。Fallbacks 在主模型不可用时依次尝试。
type LLMConfig struct {
	APIURL    string        `yaml:"api_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Fallbacks []ModelConfig `yaml:"fallbacks"`
}

// ModelConfig 单个备用模型。
type ModelConfig struct {
	Name   string `yaml:"name"`
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AuthConfig 身份服务配置。
type AuthConfig struct {
	URL         string   `yaml:"url"`
	Key         string   `yaml:"key"`
	AdminEmails []string `yaml:"admin_emails"`
	// InsecureDev 身份服务未配置时放行所有请求，只能用于本地开发。
	InsecureDev bool `yaml:"insecure_dev"`
}

// RecommendConfig 来源推荐配置。
type RecommendConfig struct {
	DBPath    string `yaml:"db_path"`
	MinCached int    `yaml:"min_cached"`
	MaxIgnore int    `yaml:"max_ignore"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回不依赖配置文件的默认配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Validate 检查无法通过默认值修正的配置错误。
func (c *Config) Validate() error {
	if c.Aggregator.Concurrency < 0 {
		return fmt.Errorf("aggregator.concurrency 不能为负数: %d", c.Aggregator.Concurrency)
	}
	if c.Cache.LocationCapacity < 0 || c.Cache.ItemsCapacity < 0 {
		return fmt.Errorf("cache 容量不能为负数")
	}
	if c.Server.MaxBatch < 0 {
		return fmt.Errorf("server.max_batch 不能为负数: %d", c.Server.MaxBatch)
	}
	return nil
}

// ReportAbandonedEnabled 返回 report_abandoned 的实际取值。
func (a AggregatorConfig) ReportAbandonedEnabled() bool {
	return a.ReportAbandoned == nil || *a.ReportAbandoned
}

// InsecureEnabled 返回 insecure_skip_verify 的实际取值。
func (h HTTPConfig) InsecureEnabled() bool {
	return h.InsecureSkipVerify == nil || *h.InsecureSkipVerify
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxBatch == 0 {
		cfg.Server.MaxBatch = 100
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Aggregator.Concurrency == 0 {
		cfg.Aggregator.Concurrency = 5
	}
	if cfg.Aggregator.BatchDeadline == 0 {
		cfg.Aggregator.BatchDeadline = 5 * time.Second
	}
	if cfg.Aggregator.ProbeTimeout == 0 {
		cfg.Aggregator.ProbeTimeout = 3 * time.Second
	}
	if cfg.Aggregator.FetchTimeout == 0 {
		cfg.Aggregator.FetchTimeout = 6 * time.Second
	}
	if cfg.Aggregator.ItemsPerSource == 0 {
		cfg.Aggregator.ItemsPerSource = 5
	}
	if cfg.Aggregator.SummaryMax == 0 {
		cfg.Aggregator.SummaryMax = 350
	}
	if cfg.Aggregator.MaxBodyBytes == 0 {
		cfg.Aggregator.MaxBodyBytes = 5 << 20
	}

	if cfg.Cache.LocationCapacity == 0 {
		cfg.Cache.LocationCapacity = 200
	}
	if cfg.Cache.LocationTTL == 0 {
		cfg.Cache.LocationTTL = time.Hour
	}
	if cfg.Cache.ItemsCapacity == 0 {
		cfg.Cache.ItemsCapacity = 500
	}
	if cfg.Cache.ItemsTTL == 0 {
		cfg.Cache.ItemsTTL = 15 * time.Minute
	}

	if cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = DefaultUserAgent
	}
	if cfg.HTTP.MaxRedirects == 0 {
		cfg.HTTP.MaxRedirects = 10
	}

	if cfg.LLM.APIURL == "" {
		cfg.LLM.APIURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-3.5-turbo"
	}

	if cfg.Recommend.DBPath == "" {
		cfg.Recommend.DBPath = "./data/feedstream.db"
	}
	if cfg.Recommend.MinCached == 0 {
		cfg.Recommend.MinCached = 2
	}
	if cfg.Recommend.MaxIgnore == 0 {
		cfg.Recommend.MaxIgnore = 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// 环境变量展开后两端常带空白
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	cfg.Auth.Key = strings.TrimSpace(cfg.Auth.Key)
	cfg.Auth.URL = strings.TrimRight(strings.TrimSpace(cfg.Auth.URL), "/")
	for i := range cfg.LLM.Fallbacks {
		cfg.LLM.Fallbacks[i].APIKey = strings.TrimSpace(cfg.LLM.Fallbacks[i].APIKey)
	}
}
