package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"X402-Registry/internal/accumulator"
	"X402-Registry/internal/auth"
	"X402-Registry/internal/observability/alerting"
	"X402-Registry/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "REGISTRY_CONFIG"

// DefaultConfigPath 是未设置环境变量时使用的配置文件。
var DefaultConfigPath = filepath.Join("configs", "registry.json")

// Config 描述注册中心在启动阶段需要加载的核心配置。
type Config struct {
	Server      ServerConfig       `json:"server"`
	Auth        auth.Config        `json:"auth"`
	Storage     StorageConfig      `json:"storage"`
	Accumulator accumulator.Config `json:"accumulator"`
	Queue       QueueConfig        `json:"queue"`
	Web3        Web3Config         `json:"web3"`
	Governance  GovernanceConfig   `json:"governance"`
	Multisig    MultisigConfig     `json:"multisig"`
	Logging     logger.Config      `json:"logging"`
	Alerting    alerting.Config    `json:"alerting"`
	Metrics     MetricsConfig      `json:"metrics"`
	Registry    RegistryConfig     `json:"registry"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address             string `json:"address"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// ReadTimeout 返回读超时。
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout 返回写超时。
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// StorageConfig 描述持久化后端，driver 为 memory 或 mysql。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// QueueConfig 描述提案执行命令队列。
type QueueConfig struct {
	Driver      string         `json:"driver"`
	Workers     int            `json:"workers"`
	Buffer      int            `json:"buffer"`
	MaxAttempts int            `json:"max_attempts"`
	Redis       RedisQueue     `json:"redis"`
	RabbitMQ    RabbitMQConfig `json:"rabbitmq"`
}

// RedisQueue 描述 Redis 队列参数。
type RedisQueue struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// Web3Config 包含链定义文件与默认链。
type Web3Config struct {
	ChainConfig             string `json:"chain_config"`
	DefaultChain            string `json:"default_chain"`
	RPCURL                  string `json:"rpc_url"`
	BroadcastTimeoutSeconds int    `json:"broadcast_timeout_seconds"`
}

// BroadcastTimeout 返回多签广播超时。
func (w Web3Config) BroadcastTimeout() time.Duration {
	return time.Duration(w.BroadcastTimeoutSeconds) * time.Second
}

// GovernanceConfig 描述治理引擎的可调参数。
type GovernanceConfig struct {
	SweepIntervalSeconds    int  `json:"sweep_interval_seconds"`
	MinProposerReputation   int  `json:"min_proposer_reputation"`
	MinArbitratorReputation int  `json:"min_arbitrator_reputation"`
	ArbitrationVotingHours  int  `json:"arbitration_voting_hours"`
	VerifyVotingPower       bool `json:"verify_voting_power"`
	AsyncExecution          bool `json:"async_execution"`
}

// SweepInterval 返回提案关闭扫描间隔。
func (g GovernanceConfig) SweepInterval() time.Duration {
	return time.Duration(g.SweepIntervalSeconds) * time.Second
}

// ArbitrationVotingPeriod 返回仲裁提案的投票时长。
func (g GovernanceConfig) ArbitrationVotingPeriod() time.Duration {
	return time.Duration(g.ArbitrationVotingHours) * time.Hour
}

// MultisigConfig 描述多签服务的可选行为。
type MultisigConfig struct {
	RequireKeyBinding bool `json:"require_key_binding"`
}

// MetricsConfig 控制独立的指标端口，为空时只在 API 上暴露 /metrics。
type MetricsConfig struct {
	Address string `json:"address"`
}

// RegistryConfig 描述外部注册表数据的种子文件。
type RegistryConfig struct {
	SeedFile string `json:"seed_file"`
}

// PathFromEnv 返回环境变量指定的配置路径或默认路径。
func PathFromEnv() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查驱动取值等无法通过默认值修正的字段。
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("mysql 存储需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}
	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if c.Queue.Redis.Address == "" {
			return errors.New("redis 队列需要配置 address")
		}
	case "rabbitmq":
		if c.Queue.RabbitMQ.URL == "" {
			return errors.New("rabbitmq 队列需要配置 url")
		}
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver)
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		// 多签签名可能同步等待链上确认。
		c.Server.WriteTimeoutSeconds = 90
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.MaxOpenConns <= 0 {
		c.Storage.MaxOpenConns = 20
	}
	if c.Storage.MaxIdleConns <= 0 {
		c.Storage.MaxIdleConns = 10
	}
	if c.Storage.ConnMaxLifetimeSeconds <= 0 {
		c.Storage.ConnMaxLifetimeSeconds = 300
	}

	if c.Accumulator.Driver == "" {
		c.Accumulator.Driver = "memory"
	}
	if c.Accumulator.KeyPrefix == "" {
		c.Accumulator.KeyPrefix = accumulator.DefaultKeyPrefix
	}

	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 1024
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 5
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}
	if c.Web3.BroadcastTimeoutSeconds <= 0 {
		c.Web3.BroadcastTimeoutSeconds = 60
	}

	if c.Governance.SweepIntervalSeconds <= 0 {
		c.Governance.SweepIntervalSeconds = 60
	}
	if c.Governance.MinProposerReputation <= 0 {
		c.Governance.MinProposerReputation = 7000
	}
	if c.Governance.MinArbitratorReputation <= 0 {
		c.Governance.MinArbitratorReputation = 8000
	}
	if c.Governance.ArbitrationVotingHours <= 0 {
		c.Governance.ArbitrationVotingHours = 72
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	if c.Registry.SeedFile != "" && !filepath.IsAbs(c.Registry.SeedFile) {
		c.Registry.SeedFile = filepath.Join(baseDir, c.Registry.SeedFile)
	}
}
