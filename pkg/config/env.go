package config

const (
	EnvStoreDriver = "STORE_DRIVER"

	EnvPostgresURL = "POSTGRES_URL"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr            = "REDIS_ADDR"
	EnvRedisPassword        = "REDIS_PASSWORD"
	EnvRedisDB              = "REDIS_DB"
	EnvAvailabilityCacheTTL = "AVAILABILITY_CACHE_TTL"

	EnvKafkaEnabled       = "KAFKA_ENABLED"
	EnvKafkaBookingTopic  = "KAFKA_BOOKING_TOPIC"
	EnvKafkaPaymentTopic  = "KAFKA_PAYMENT_TOPIC"
	EnvKafkaPaymentGroup  = "KAFKA_PAYMENT_GROUP"
	EnvKafkaPaymentDLQ    = "KAFKA_PAYMENT_DLQ_TOPIC"
	EnvKafkaPaymentSecret = "KAFKA_PAYMENT_SECRET"

	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvHoldTTL        = "HOLD_TTL"
	EnvMaxHoldTTL     = "MAX_HOLD_TTL"
	EnvSweepInterval  = "SWEEP_INTERVAL"
	EnvSweepBatchSize = "SWEEP_BATCH_SIZE"
	EnvPaymentTimeout = "PAYMENT_TIMEOUT"

	EnvPaymentWebhookSecret  = "PAYMENT_WEBHOOK_SECRET"
	EnvEnvelopeWebhookSecret = "ENVELOPE_WEBHOOK_SECRET"
	EnvDefaultCurrency       = "DEFAULT_CURRENCY"

	EnvSessionHashKey  = "SESSION_HASH_KEY"
	EnvSessionBlockKey = "SESSION_BLOCK_KEY"
	EnvAdminTokenHash  = "ADMIN_TOKEN_HASH"

	EnvRateLimitRequests        = "RATE_LIMIT_REQUESTS"
	EnvRateLimitAddressRequests = "RATE_LIMIT_ADDRESS_REQUESTS"
	EnvRateLimitWindow          = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
