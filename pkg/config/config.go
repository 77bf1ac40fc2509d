package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Backend struct {
		// Where dispatched alerts are archived/published besides the
		// notifier: "kafka", "clickhouse", or "none".
		Type string `yaml:"type" default:"none" validate:"oneof=kafka clickhouse none"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"liq.alerts"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"500ms"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"liqpulse"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		AsyncInsert  bool          `yaml:"async_insert" default:"true"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Binance struct {
		WebSocketURL       string        `yaml:"websocket_url" default:"wss://fstream.binance.com/ws" validate:"required"`
		RestURL            string        `yaml:"rest_url" default:"https://fapi.binance.com"`
		ReconnectDelay     time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval       time.Duration `yaml:"ping_interval" default:"3m"`
		ContractMultiplier float64       `yaml:"contract_multiplier" default:"1"`
	} `yaml:"binance"`
	Eligibility struct {
		MinTurnover24hUSD  float64       `yaml:"min_turnover_24h_usd" default:"50000000"`
		MinOpenInterestUSD float64       `yaml:"min_open_interest_usd" default:"10000000"`
		RefreshInterval    time.Duration `yaml:"refresh_interval" default:"15m"`
		CacheTTL           time.Duration `yaml:"cache_ttl" default:"30m"`
		Allow              []string      `yaml:"allow"` // bypass the volume/OI floors
		Deny               []string      `yaml:"deny"`  // never eligible
	} `yaml:"eligibility"`
	Window struct {
		Duration time.Duration `yaml:"duration" default:"120s" validate:"gt=0"`
	} `yaml:"window"`
	Detector struct {
		MinVolumeUSD       float64       `yaml:"min_volume_usd" default:"1000000" validate:"gt=0"`
		MinDominancePct    float64       `yaml:"min_dominance_pct" default:"80" validate:"gte=50,lte=100"`
		MinPriceChangePct  float64       `yaml:"min_price_change_pct" default:"3" validate:"gt=0"`
		MaxPriceChangePct  float64       `yaml:"max_price_change_pct" default:"25" validate:"gte=0"`
		MinEventCount      int           `yaml:"min_event_count" default:"5" validate:"gte=2"`
		MinDuration        time.Duration `yaml:"min_duration" default:"5s"`
		SignatureBucketUSD float64       `yaml:"signature_bucket_usd" default:"250000" validate:"gt=0"`
	} `yaml:"detector"`
	Suppressor struct {
		Cooldown         time.Duration `yaml:"cooldown" default:"5m" validate:"gt=0"`
		DedupWindow      time.Duration `yaml:"dedup_window" default:"10m" validate:"gt=0"`
		EscalationFactor float64       `yaml:"escalation_factor" default:"1.5" validate:"gt=1"`
		GCInterval       time.Duration `yaml:"gc_interval" default:"1m" validate:"gt=0"`
	} `yaml:"suppressor"`
	Pipeline struct {
		Mode          string        `yaml:"mode" default:"per-event" validate:"oneof=per-event sweep"`
		SweepInterval time.Duration `yaml:"sweep_interval" default:"15s" validate:"gt=0"`
		IngestBuffer  int           `yaml:"ingest_buffer" default:"2000" validate:"gt=0"`
	} `yaml:"pipeline"`
	Telegram struct {
		Token          string  `yaml:"token"`
		ChatID         int64   `yaml:"chat_id"`
		SendsPerSecond float64 `yaml:"sends_per_second" default:"1"`
		BurstCapacity  float64 `yaml:"burst_capacity" default:"5"`
	} `yaml:"telegram"`
}

var validate = validator.New()

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults go on first so an explicit zero in the file (for example
	// detector.max_price_change_pct: 0 to disable the cap) is kept rather
	// than overwritten as an unset field.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets and deployment
// wiring with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("BINANCE_WS_URL"); v != "" {
		c.Binance.WebSocketURL = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Eligibility.Allow = strings.Split(v, ",")
	}

	return c, c.Validate()
}

// Validate checks structural rules plus the cross-field ones tags can't say.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when backend.type is kafka")
	}
	if c.Backend.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host required when backend.type is clickhouse")
	}
	if c.Detector.MaxPriceChangePct > 0 && c.Detector.MaxPriceChangePct <= c.Detector.MinPriceChangePct {
		return fmt.Errorf("detector.max_price_change_pct must exceed min_price_change_pct")
	}
	if c.Suppressor.DedupWindow < c.Suppressor.Cooldown {
		return fmt.Errorf("suppressor.dedup_window must be at least the cooldown")
	}
	return nil
}
