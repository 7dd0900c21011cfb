// Package config 加载撮合 worker 的配置：YAML 文件打底，环境变量覆盖。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"neighborly/internal/service/matching/application"
)

type Config struct {
	Service  string         `yaml:"service"`
	HTTPPort int            `yaml:"httpPort"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Jaeger   JaegerConfig   `yaml:"jaeger"`
	Channels ChannelsConfig `yaml:"channels"`
	Matching MatchingConfig `yaml:"matching"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	RuleTTL  time.Duration `yaml:"ruleTTL"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	WorkTopic         string   `yaml:"workTopic"`
	NotificationTopic string   `yaml:"notificationTopic"`
	DeadLetterTopic   string   `yaml:"deadLetterTopic"`
	GroupID           string   `yaml:"groupId"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type ChannelsConfig struct {
	BaseURL string `yaml:"baseUrl"`
}

// MatchingConfig 对应 application.Config，外加调度与消费参数
type MatchingConfig struct {
	EligibilityThreshold float64          `yaml:"eligibilityThreshold"`
	PairFlagThreshold    int              `yaml:"pairFlagThreshold"`
	PairWindowDays       int              `yaml:"pairWindowDays"`
	MaxCandidates        int              `yaml:"maxCandidates"`
	ProcessingTimeout    time.Duration    `yaml:"processingTimeout"`
	RewardFallbacks      map[string]int64 `yaml:"rewardFallbacks"`
	SweepInterval        time.Duration    `yaml:"sweepInterval"`
	RetryMaxDelay        time.Duration    `yaml:"retryMaxDelay"`
}

// Default 返回本地开发用的默认配置。
func Default() *Config {
	app := application.DefaultConfig()
	return &Config{
		Service:  "match-worker",
		HTTPPort: 8090,
		MySQL: MySQLConfig{
			DSN:          "root:root@tcp(localhost:3306)/neighborly?charset=utf8mb4&parseTime=true&loc=UTC",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{Addr: "localhost:6379", RuleTTL: 5 * time.Minute},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			WorkTopic:         "matching-work",
			NotificationTopic: "notifications",
			DeadLetterTopic:   "matching-work-dlt",
			GroupID:           "match-worker",
		},
		Jaeger:   JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
		Channels: ChannelsConfig{BaseURL: "http://localhost:8081"},
		Matching: MatchingConfig{
			EligibilityThreshold: app.EligibilityThreshold,
			PairFlagThreshold:    app.PairFlagThreshold,
			PairWindowDays:       app.PairWindowDays,
			MaxCandidates:        app.MaxCandidates,
			ProcessingTimeout:    app.ProcessingTimeout,
			RewardFallbacks:      app.RewardFallbacks,
			SweepInterval:        time.Minute,
			RetryMaxDelay:        10 * time.Second,
		},
	}
}

// Load 读取 path 指向的 YAML（为空则只用默认值），再应用环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.MySQL.DSN = getEnv("MYSQL_DSN", c.MySQL.DSN)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Jaeger.Endpoint)
	c.Channels.BaseURL = getEnv("CHANNEL_SERVICE_URL", c.Channels.BaseURL)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return errors.Wrap(err, "HTTP_PORT")
		}
		c.HTTPPort = p
	}
	if threshold := os.Getenv("MATCH_THRESHOLD"); threshold != "" {
		v, err := strconv.ParseFloat(threshold, 64)
		if err != nil {
			return errors.Wrap(err, "MATCH_THRESHOLD")
		}
		c.Matching.EligibilityThreshold = v
	}
	return nil
}

func (c *Config) validate() error {
	dsn, err := mysql.ParseDSN(c.MySQL.DSN)
	if err != nil {
		return errors.Wrap(err, "invalid mysql dsn")
	}
	// 模型里有 time.Time 字段，必须开启 parseTime
	dsn.ParseTime = true
	c.MySQL.DSN = dsn.FormatDSN()

	if len(c.Kafka.Brokers) == 0 || c.Kafka.WorkTopic == "" {
		return errors.New("kafka brokers and work topic are required")
	}
	if t := c.Matching.EligibilityThreshold; t < 0 || t > 1 {
		return errors.Errorf("eligibility threshold %v out of [0,1]", t)
	}
	if c.Matching.PairFlagThreshold <= 0 || c.Matching.PairWindowDays <= 0 {
		return errors.New("pair flag threshold and window must be positive")
	}
	if c.Matching.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	return nil
}

// AppConfig 转换为应用层配置。
func (c *Config) AppConfig() application.Config {
	return application.Config{
		EligibilityThreshold: c.Matching.EligibilityThreshold,
		PairFlagThreshold:    c.Matching.PairFlagThreshold,
		PairWindowDays:       c.Matching.PairWindowDays,
		MaxCandidates:        c.Matching.MaxCandidates,
		ProcessingTimeout:    c.Matching.ProcessingTimeout,
		RewardFallbacks:      c.Matching.RewardFallbacks,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
