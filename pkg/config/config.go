package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slotkeeper/pkg/client"
	"slotkeeper/pkg/logger"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	StoreDriver string

	PostgresURL string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	AvailabilityCacheTTL time.Duration

	KafkaEnabled       bool
	KafkaBookingTopic  string
	KafkaPaymentTopic  string
	KafkaPaymentGroup  string
	KafkaPaymentDLQ    string
	KafkaPaymentSecret string

	Port string

	HoldTTL        time.Duration
	MaxHoldTTL     time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	PaymentTimeout time.Duration

	PaymentWebhookSecret  string
	EnvelopeWebhookSecret string
	DefaultCurrency       string

	SessionHashKey  []byte
	SessionBlockKey []byte
	AdminTokenHash  string

	RateLimitRequests        int
	RateLimitAddressRequests int
	RateLimitWindow          time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the configuration from the environment and exits the process
// when it is invalid.
func Load(serviceName string) *Config {
	cfg, err := LoadFromEnv(serviceName)
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// LoadFromEnv is Load without the exit; the returned config always carries
// a usable logger, even alongside a validation error.
func LoadFromEnv(serviceName string) (*Config, error) {
	cfg := &Config{
		StoreDriver: strings.ToLower(getEnvStr(EnvStoreDriver, DefaultStoreDriver)),

		PostgresURL: getEnvStr(EnvPostgresURL, DefaultPostgresURL),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:            getEnvStr(EnvRedisAddr, ""),
		RedisPassword:        getEnvStr(EnvRedisPassword, ""),
		RedisDB:              getEnvNum(EnvRedisDB, DefaultRedisDB),
		AvailabilityCacheTTL: getEnvDuration(EnvAvailabilityCacheTTL, DefaultAvailabilityCacheTTL),

		KafkaEnabled:       getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaBookingTopic:  getEnvStr(EnvKafkaBookingTopic, DefaultKafkaBookingTopic),
		KafkaPaymentTopic:  getEnvStr(EnvKafkaPaymentTopic, DefaultKafkaPaymentTopic),
		KafkaPaymentGroup:  getEnvStr(EnvKafkaPaymentGroup, DefaultKafkaPaymentGroup),
		KafkaPaymentDLQ:    getEnvStr(EnvKafkaPaymentDLQ, DefaultKafkaPaymentDLQ),
		KafkaPaymentSecret: getEnvStr(EnvKafkaPaymentSecret, ""),

		Port: getEnvStr(EnvPort, DefaultPort),

		HoldTTL:        getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		MaxHoldTTL:     getEnvDuration(EnvMaxHoldTTL, DefaultMaxHoldTTL),
		SweepInterval:  getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatchSize: getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),
		PaymentTimeout: getEnvDuration(EnvPaymentTimeout, DefaultPaymentTimeout),

		PaymentWebhookSecret:  getEnvStr(EnvPaymentWebhookSecret, ""),
		EnvelopeWebhookSecret: getEnvStr(EnvEnvelopeWebhookSecret, ""),
		DefaultCurrency:       strings.ToUpper(getEnvStr(EnvDefaultCurrency, DefaultCurrency)),

		SessionHashKey:  []byte(getEnvStr(EnvSessionHashKey, "")),
		SessionBlockKey: []byte(getEnvStr(EnvSessionBlockKey, "")),
		AdminTokenHash:  getEnvStr(EnvAdminTokenHash, ""),

		RateLimitRequests:        getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitAddressRequests: getEnvNum(EnvRateLimitAddressRequests, DefaultRateLimitAddressRequests),
		RateLimitWindow:          getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    getEnvStr(EnvLogFormat, DefaultLogFormat),
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	return cfg, cfg.Validate()
}

// Connect opens the connections the selected store driver and optional
// integrations need.
func (cfg *Config) Connect(ctx context.Context) error {
	switch cfg.StoreDriver {
	case StorePostgres:
		if err := cfg.Client.SetPostgres(ctx, cfg.Log, cfg.PostgresURL); err != nil {
			return err
		}
	case StoreMongo:
		if err := cfg.Client.SetMongo(ctx, cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout); err != nil {
			return err
		}
	}

	if cfg.RedisAddr != "" {
		if err := cfg.Client.SetRedis(ctx, cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresURL) {
			errors = append(errors, fmt.Sprintf("PostgresURL must start with 'postgres://' or 'postgresql://', got: %s", redactURL(cfg.PostgresURL)))
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURL(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of [memory, postgres, mongo], got: %s", cfg.StoreDriver))
	}

	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	if cfg.AvailabilityCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("AvailabilityCacheTTL cannot be negative, got: %s", cfg.AvailabilityCacheTTL))
	}

	if cfg.KafkaEnabled {
		if cfg.KafkaBookingTopic == "" {
			errors = append(errors, "KafkaBookingTopic cannot be empty when Kafka is enabled")
		}
		if cfg.KafkaPaymentTopic != "" && cfg.KafkaPaymentGroup == "" {
			errors = append(errors, "KafkaPaymentGroup cannot be empty when a payment topic is set")
		}
	}

	if cfg.HoldTTL <= 0 {
		errors = append(errors, fmt.Sprintf("HoldTTL must be positive, got: %s", cfg.HoldTTL))
	}
	if cfg.MaxHoldTTL < cfg.HoldTTL {
		errors = append(errors, fmt.Sprintf("MaxHoldTTL (%s) must be >= HoldTTL (%s)", cfg.MaxHoldTTL, cfg.HoldTTL))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}
	if cfg.PaymentTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("PaymentTimeout must be positive, got: %s", cfg.PaymentTimeout))
	}

	if !regexp.MustCompile(`^[A-Z]{3}$`).MatchString(cfg.DefaultCurrency) {
		errors = append(errors, fmt.Sprintf("DefaultCurrency must be a 3-letter ISO 4217 code, got: %s", cfg.DefaultCurrency))
	}

	if n := len(cfg.SessionHashKey); n != 0 && n < 32 {
		errors = append(errors, fmt.Sprintf("SessionHashKey must be at least 32 bytes, got: %d", n))
	}
	if n := len(cfg.SessionBlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		errors = append(errors, fmt.Sprintf("SessionBlockKey must be 16, 24 or 32 bytes, got: %d", n))
	}
	if cfg.AdminTokenHash != "" && !strings.HasPrefix(cfg.AdminTokenHash, "$2") {
		errors = append(errors, "AdminTokenHash must be a bcrypt hash")
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitAddressRequests < cfg.RateLimitRequests {
		errors = append(errors, fmt.Sprintf("RateLimitAddressRequests must be at least RateLimitRequests (%d), got: %d", cfg.RateLimitRequests, cfg.RateLimitAddressRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_driver", cfg.StoreDriver,
		"postgres_url", redactURL(cfg.PostgresURL),
		"mongo_uri", redactURL(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"availability_cache_ttl", cfg.AvailabilityCacheTTL,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_booking_topic", cfg.KafkaBookingTopic,
		"kafka_payment_topic", cfg.KafkaPaymentTopic,
		"kafka_payment_secret_set", cfg.KafkaPaymentSecret != "",
		"port", cfg.Port,
		"hold_ttl", cfg.HoldTTL,
		"max_hold_ttl", cfg.MaxHoldTTL,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch_size", cfg.SweepBatchSize,
		"payment_timeout", cfg.PaymentTimeout,
		"payment_webhook_secret_set", cfg.PaymentWebhookSecret != "",
		"envelope_webhook_secret_set", cfg.EnvelopeWebhookSecret != "",
		"default_currency", cfg.DefaultCurrency,
		"session_keys_set", len(cfg.SessionHashKey) > 0,
		"admin_token_set", cfg.AdminTokenHash != "",
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_address_requests", cfg.RateLimitAddressRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

var credentialRegex = regexp.MustCompile(`^([a-z+]+://)[^:@/]+:[^@]+@`)

func redactURL(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown(ctx context.Context) {
	cfg.Client.GracefulShutdown(ctx, cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 20
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
