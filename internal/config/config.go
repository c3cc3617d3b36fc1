package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	MetricsPort int
	LogLevel    string
	LogFormat   string

	DBDriver       string // pgx | postgres | memory
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSslMode      string
	DBMaxOpenConns int
	AutoMigrate    bool

	LayoutFile        string
	TotalSlots        int
	Layout            *Layout
	ReconcileInterval time.Duration
	StaleSessionAfter time.Duration

	SensorSource     string // none | redis | sqs
	SensorStaleAfter time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisSensorKey   string
	RedisHeartbeat   string

	AWSRegion        string
	SQSEventQueueURL string
	IoTMQTTEndpoint  string
	IoTTopicPrefix   string

	PriceShortRate     float64
	PriceLongRate      float64
	PriceFreeMinutes   int
	PriceLongStayAfter int
	PriceCurrency      string
	PriceClamp         bool

	ChargeStartMin     int
	ChargeStartMax     int
	ChargeRateKW       float64
	BatteryCapacityKWh float64

	JWTSecret          string
	JWTExpirationHours time.Duration
}

// Load reads the environment, after merging a .env file if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		MetricsPort: p.int("METRICS_PORT", 9090),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),

		DBDriver:       getEnv("DB_DRIVER", "pgx"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         p.int("DB_PORT", 5432),
		DBUser:         getEnv("DB_USER", "parkaro"),
		DBPassword:     getEnv("DB_PASSWORD", "parkaro"),
		DBName:         getEnv("DB_NAME", "parkaro"),
		DBSslMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: p.int("DB_MAX_OPEN_CONNS", 10),
		AutoMigrate:    p.bool("AUTO_MIGRATE", true),

		LayoutFile:        getEnv("PARKING_LAYOUT_FILE", ""),
		TotalSlots:        p.int("PARKING_TOTAL_SLOTS", 4),
		ReconcileInterval: p.duration("RECONCILE_INTERVAL", 3*time.Second),
		StaleSessionAfter: p.duration("STALE_SESSION_AFTER", 24*time.Hour),

		SensorSource:     getEnv("SENSOR_SOURCE", "none"),
		SensorStaleAfter: p.duration("SENSOR_STALE_AFTER", 30*time.Second),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          p.int("REDIS_DB", 0),
		RedisSensorKey:   getEnv("REDIS_SENSOR_KEY", "parkaro:occupied"),
		RedisHeartbeat:   getEnv("REDIS_HEARTBEAT_KEY", "parkaro:detector:heartbeat"),

		AWSRegion:        getEnv("AWS_REGION", "ap-south-1"),
		SQSEventQueueURL: getEnv("SQS_EVENT_QUEUE_URL", ""),
		IoTMQTTEndpoint:  getEnv("IOT_MQTT_ENDPOINT", ""),
		IoTTopicPrefix:   getEnv("IOT_TOPIC_PREFIX", "parkaro"),

		PriceShortRate:     p.float("PRICE_SHORT_RATE", 1.25),
		PriceLongRate:      p.float("PRICE_LONG_RATE", 1.05),
		PriceFreeMinutes:   p.int("PRICE_FREE_MINUTES", 5),
		PriceLongStayAfter: p.int("PRICE_LONG_STAY_AFTER", 60),
		PriceCurrency:      getEnv("PRICE_CURRENCY", "₹"),
		PriceClamp:         p.bool("PRICE_CLAMP_NON_POSITIVE", true),

		ChargeStartMin:     p.int("CHARGE_START_MIN", 10),
		ChargeStartMax:     p.int("CHARGE_START_MAX", 45),
		ChargeRateKW:       p.float("CHARGE_RATE_KW", 7.4),
		BatteryCapacityKWh: p.float("BATTERY_CAPACITY_KWH", 40),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTExpirationHours: time.Duration(p.int("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	if cfg.LayoutFile != "" {
		layout, err := LoadLayout(cfg.LayoutFile)
		if err != nil {
			return nil, err
		}
		cfg.Layout = layout
		cfg.TotalSlots = len(layout.Slots)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Persistent reports whether the configured store outlives the process.
func (c *Config) Persistent() bool {
	return c.DBDriver != "memory"
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.TotalSlots < 1 {
		errs = append(errs, errors.New("at least one parking slot must be configured"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	if c.PriceShortRate <= 0 || c.PriceLongRate <= 0 {
		errs = append(errs, errors.New("pricing rates must be positive"))
	}
	if c.PriceLongRate >= c.PriceShortRate {
		errs = append(errs, errors.New("PRICE_LONG_RATE must be lower than PRICE_SHORT_RATE"))
	}
	if c.ChargeStartMin < 0 || c.ChargeStartMax > 100 || c.ChargeStartMin > c.ChargeStartMax {
		errs = append(errs, errors.New("CHARGE_START_MIN/MAX must satisfy 0 <= min <= max <= 100"))
	}
	switch c.DBDriver {
	case "pgx", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	switch c.SensorSource {
	case "none", "redis":
	case "sqs":
		if c.SQSEventQueueURL == "" {
			errs = append(errs, errors.New("SENSOR_SOURCE=sqs requires SQS_EVENT_QUEUE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported SENSOR_SOURCE %q", c.SensorSource))
	}
	return errors.Join(errs...)
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
