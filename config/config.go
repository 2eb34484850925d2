package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Journal backends
const (
	JournalMemory = "memory"
	JournalRedis  = "redis"
	JournalPebble = "pebble"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`

	Engine struct {
		Symbols           []string `yaml:"symbols"`
		Journal           string   `yaml:"journal"`
		SettlementWorkers int      `yaml:"settlement_workers"`
		SettlementBuffer  int      `yaml:"settlement_buffer"`
	} `yaml:"engine"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Pebble struct {
		Dir  string `yaml:"dir"`
		Sync bool   `yaml:"sync"`
	} `yaml:"pebble"`

	Kafka struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers"`
		EventsTopic     string   `yaml:"events_topic"`
		SettlementTopic string   `yaml:"settlement_topic"`
		// SettlementReplay rebuilds the ledger from the settlement topic on start
		SettlementReplay bool `yaml:"settlement_replay"`
		// TailGroup, when set, logs the events topic under this consumer group
		TailGroup string `yaml:"tail_group"`
	} `yaml:"kafka"`

	Telemetry struct {
		Enabled        bool          `yaml:"enabled"`
		ServiceName    string        `yaml:"service_name"`
		Endpoint       string        `yaml:"endpoint"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		RuntimeMetrics bool          `yaml:"runtime_metrics"`
	} `yaml:"telemetry"`
}

// Default returns the configuration used when nothing else is given
func Default() *Config {
	cfg := &Config{}
	cfg.Server.LogLevel = "info"
	cfg.Server.LogFormat = "pretty"
	cfg.Engine.Symbols = []string{"ABC"}
	cfg.Engine.Journal = JournalMemory
	cfg.Engine.SettlementWorkers = 4
	cfg.Engine.SettlementBuffer = 1024
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Prefix = "exchange"
	cfg.Pebble.Dir = "data/journal"
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.EventsTopic = "exchange-events"
	cfg.Kafka.SettlementTopic = "exchange-settlements"
	cfg.Telemetry.ServiceName = "exchange"
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.ConnectTimeout = 5 * time.Second
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file named by
// -config, command line flags and finally EXCHANGE_* environment variables
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("exchange", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to config file (YAML)")
	logLevel := fs.String("log_level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log_format", "", "Log format: json, pretty")
	journal := fs.String("journal", "", "Journal backend: memory, redis, pebble")
	symbols := fs.String("symbols", "", "Comma separated symbols to register")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.Server.LogFormat = *logFormat
	}
	if *journal != "" {
		cfg.Engine.Journal = *journal
	}
	if *symbols != "" {
		cfg.Engine.Symbols = splitList(*symbols)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from EXCHANGE_<SECTION>_<KEY> variables
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	list := func(key string, dst *[]string) {
		if v.IsSet(key) {
			*dst = splitList(v.GetString(key))
		}
	}

	str("server.log_level", &cfg.Server.LogLevel)
	str("server.log_format", &cfg.Server.LogFormat)
	list("engine.symbols", &cfg.Engine.Symbols)
	str("engine.journal", &cfg.Engine.Journal)
	num("engine.settlement_workers", &cfg.Engine.SettlementWorkers)
	num("engine.settlement_buffer", &cfg.Engine.SettlementBuffer)
	str("redis.addr", &cfg.Redis.Addr)
	str("redis.password", &cfg.Redis.Password)
	num("redis.db", &cfg.Redis.DB)
	str("redis.prefix", &cfg.Redis.Prefix)
	str("pebble.dir", &cfg.Pebble.Dir)
	boolean("pebble.sync", &cfg.Pebble.Sync)
	boolean("kafka.enabled", &cfg.Kafka.Enabled)
	list("kafka.brokers", &cfg.Kafka.Brokers)
	str("kafka.events_topic", &cfg.Kafka.EventsTopic)
	str("kafka.settlement_topic", &cfg.Kafka.SettlementTopic)
	boolean("kafka.settlement_replay", &cfg.Kafka.SettlementReplay)
	str("kafka.tail_group", &cfg.Kafka.TailGroup)
	boolean("telemetry.enabled", &cfg.Telemetry.Enabled)
	str("telemetry.service_name", &cfg.Telemetry.ServiceName)
	str("telemetry.endpoint", &cfg.Telemetry.Endpoint)
	boolean("telemetry.runtime_metrics", &cfg.Telemetry.RuntimeMetrics)
	if v.IsSet("telemetry.connect_timeout") {
		cfg.Telemetry.ConnectTimeout = v.GetDuration("telemetry.connect_timeout")
	}
}

// Validate rejects configurations the process cannot start with
func (c *Config) Validate() error {
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("engine.symbols must not be empty")
	}
	for _, s := range c.Engine.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("engine.symbols contains a blank symbol")
		}
	}

	switch c.Engine.Journal {
	case JournalMemory:
	case JournalRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis journal")
		}
	case JournalPebble:
		if c.Pebble.Dir == "" {
			return fmt.Errorf("pebble.dir is required for the pebble journal")
		}
	default:
		return fmt.Errorf("unknown journal backend %q", c.Engine.Journal)
	}

	switch c.Server.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("unknown log format %q", c.Server.LogFormat)
	}

	if c.Engine.SettlementWorkers <= 0 || c.Engine.SettlementBuffer <= 0 {
		return fmt.Errorf("engine.settlement_workers and engine.settlement_buffer must be positive")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers must not be empty when kafka is enabled")
		}
		if c.Kafka.EventsTopic == "" || c.Kafka.SettlementTopic == "" {
			return fmt.Errorf("kafka topics must not be empty when kafka is enabled")
		}
	}

	if c.Kafka.SettlementReplay {
		if !c.Kafka.Enabled {
			return fmt.Errorf("kafka.settlement_replay needs kafka enabled")
		}
		// sequences restart on every run without a durable journal, and the
		// ledger would take new fills for replayed ones
		if c.Engine.Journal == JournalMemory {
			return fmt.Errorf("kafka.settlement_replay needs a durable journal")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
