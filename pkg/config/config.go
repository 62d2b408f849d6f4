package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		Topic         string   `yaml:"topic"`
		ForecastTopic string   `yaml:"forecast_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	MarketData struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		RESTURL        string        `yaml:"rest_url"`   // quote polling fallback
		Indicators     []string      `yaml:"indicators"` // e.g. VIX, IG_OAS
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"market_data"`
	Forecast struct {
		ModelVersion    string        `yaml:"model_version"`
		Quantiles       []float64     `yaml:"quantiles"`
		MinTrainingRows int           `yaml:"min_training_rows"`
		HorizonDays     int           `yaml:"horizon_days"`
		Thresholds      struct {
			VIXElevated    float64 `yaml:"vix_elevated"`
			VIXCrisis      float64 `yaml:"vix_crisis"`
			SpreadElevated float64 `yaml:"spread_elevated"`
			SpreadCrisis   float64 `yaml:"spread_crisis"`
		} `yaml:"thresholds"`
		CacheTTL struct {
			Forecast time.Duration `yaml:"forecast"`
			Regime   time.Duration `yaml:"regime"`
		} `yaml:"cache_ttl"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"forecast"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("INDICATORS"); v != "" {
		c.MarketData.Indicators = strings.Split(v, ",")
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Forecast.Redis.Addr = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Forecast.ModelVersion == "" {
		c.Forecast.ModelVersion = "1.0"
	}
	if len(c.Forecast.Quantiles) == 0 {
		c.Forecast.Quantiles = []float64{0.05, 0.50, 0.95}
	}
	if c.Forecast.MinTrainingRows <= 0 {
		c.Forecast.MinTrainingRows = 30
	}
	if c.Forecast.HorizonDays <= 0 {
		c.Forecast.HorizonDays = 1
	}
	t := &c.Forecast.Thresholds
	if t.VIXElevated == 0 {
		t.VIXElevated = 25.0
	}
	if t.VIXCrisis == 0 {
		t.VIXCrisis = 40.0
	}
	if t.SpreadElevated == 0 {
		t.SpreadElevated = 150.0
	}
	if t.SpreadCrisis == 0 {
		t.SpreadCrisis = 200.0
	}
	if c.Forecast.CacheTTL.Forecast == 0 {
		c.Forecast.CacheTTL.Forecast = time.Hour
	}
	if c.Forecast.CacheTTL.Regime == 0 {
		c.Forecast.CacheTTL.Regime = 5 * time.Minute
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	t := c.Forecast.Thresholds
	if t.VIXCrisis <= t.VIXElevated {
		return fmt.Errorf("forecast.thresholds: vix_crisis must exceed vix_elevated")
	}
	if t.SpreadCrisis <= t.SpreadElevated {
		return fmt.Errorf("forecast.thresholds: spread_crisis must exceed spread_elevated")
	}
	for _, q := range c.Forecast.Quantiles {
		if q <= 0 || q >= 1 {
			return fmt.Errorf("forecast.quantiles: %v out of (0,1)", q)
		}
	}
	// blend weight tables are code-level but sanity check horizon here
	if c.Forecast.HorizonDays > 30 {
		return fmt.Errorf("forecast.horizon_days must be <= 30")
	}
	if math.IsNaN(t.VIXElevated) || math.IsNaN(t.SpreadElevated) {
		return fmt.Errorf("forecast.thresholds: NaN threshold")
	}
	return nil
}
