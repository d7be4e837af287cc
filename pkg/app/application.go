package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	bookingshandler "slotkeeper/internal/bookings/handler"
	bookingsservice "slotkeeper/internal/bookings/service"
	"slotkeeper/internal/events"
	groupshandler "slotkeeper/internal/groups/handler"
	groupsservice "slotkeeper/internal/groups/service"
	holdshandler "slotkeeper/internal/holds/handler"
	holdsservice "slotkeeper/internal/holds/service"
	"slotkeeper/internal/payments/consumer"
	paymentshandler "slotkeeper/internal/payments/handler"
	"slotkeeper/internal/payments/provider"
	paymentsservice "slotkeeper/internal/payments/service"
	slotshandler "slotkeeper/internal/slots/handler"
	slotsservice "slotkeeper/internal/slots/service"
	"slotkeeper/internal/storage"
	"slotkeeper/internal/storage/memory"
	mongostore "slotkeeper/internal/storage/mongo"
	pgstore "slotkeeper/internal/storage/postgres"
	"slotkeeper/internal/sweeper"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/contracts"
	"slotkeeper/pkg/kafka"
	kafka_config "slotkeeper/pkg/kafka/config"
	kafka_middleware "slotkeeper/pkg/kafka/middleware"
	"slotkeeper/pkg/middleware"
	"slotkeeper/pkg/session"
	"slotkeeper/pkg/validation"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
)

// Services groups the domain services so the CLI can run single operations
// (such as one sweep) without starting the HTTP server.
type Services struct {
	Slots      slotsservice.SlotService
	Holds      holdsservice.HoldService
	Bookings   bookingsservice.BookingService
	Groups     groupsservice.GroupService
	Reconciler paymentsservice.Reconciler
	Sweeper    *sweeper.Sweeper
}

type Application struct {
	cfg      *config.Config
	clock    clock.Clock
	store    storage.Store
	services *Services

	kafkaCfg *kafka_config.Config
	producer *kafka.Producer
	consumer *kafka.Consumer
	metrics  *kafka_middleware.Metrics

	idempotencyStore middleware.IdempotencyStore
	rateLimiter      middleware.RateLimiter
	handler          http.Handler
	server           *http.Server
}

type Option func(*Application)

// WithStore replaces the store selected by StoreDriver.
func WithStore(store storage.Store) Option {
	return func(a *Application) { a.store = store }
}

func WithClock(clk clock.Clock) Option {
	return func(a *Application) { a.clock = clk }
}

// New wires the application. Connections named by cfg must already be open
// (see config.Connect) unless WithStore is given.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	a := &Application{cfg: cfg, clock: clock.Real()}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		store, err := OpenStore(cfg, a.clock)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	publisher, err := a.setProducer()
	if err != nil {
		return nil, err
	}
	a.setServices(publisher)
	if err := a.setConsumer(); err != nil {
		a.closeKafka()
		return nil, err
	}
	a.setHandler()
	a.setServer()
	return a, nil
}

// OpenStore builds the store for cfg.StoreDriver over the connections held
// in cfg.Client.
func OpenStore(cfg *config.Config, clk clock.Clock) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		cfg.Log.Warn("Using the in-memory store, data is lost on restart")
		return memory.New(clk), nil
	case config.StorePostgres:
		if cfg.Client.Postgres == nil {
			return nil, errors.New("postgres store selected but no pool is connected")
		}
		return pgstore.New(cfg.Client.Postgres, clk), nil
	case config.StoreMongo:
		if cfg.Client.Mongo == nil {
			return nil, errors.New("mongo store selected but no client is connected")
		}
		return mongostore.New(cfg.Client.Mongo, cfg.MongoDatabaseName, clk, cfg.MongoConnTimeout), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (a *Application) setProducer() (events.Publisher, error) {
	if !a.cfg.KafkaEnabled {
		return events.NewNopPublisher(), nil
	}

	kcfg, err := kafka_config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid kafka configuration: %w", err)
	}
	kcfg.LogConfiguration(a.cfg.Log)
	a.kafkaCfg = kcfg

	a.metrics = kafka_middleware.NewMetrics()
	producer, err := kafka.NewProducer(kcfg, a.cfg.KafkaBookingTopic, "", a.cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create booking event producer: %w", err)
	}
	if kcfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(a.cfg.Log.Component("booking-events")))
		producer.Use(a.metrics.ProducerMiddleware())
	}
	a.producer = producer
	a.cfg.Log.Info("Booking events will be published to Kafka", "topic", a.cfg.KafkaBookingTopic)
	return events.NewKafkaPublisher(producer, a.cfg.Log.Component("booking-events")), nil
}

func (a *Application) setServices(publisher events.Publisher) {
	cfg := a.cfg
	v := validation.New(cfg.Log)

	var cache slotsservice.AvailabilityCache
	if cfg.Client != nil && cfg.Client.Redis != nil {
		cache = slotsservice.NewRedisCache(cfg.Client.Redis, cfg.AvailabilityCacheTTL, cfg.Log.Component("availability-cache"))
	}

	slots := slotsservice.NewSlotService(a.store, cache, v, a.clock, cfg)
	holds := holdsservice.NewHoldService(a.store, slots, v, a.clock, cfg)
	bookings := bookingsservice.NewBookingService(a.store, holds, slots, publisher, v, a.clock, cfg)

	a.services = &Services{
		Slots:      slots,
		Holds:      holds,
		Bookings:   bookings,
		Groups:     groupsservice.NewGroupService(a.store, slots, holds, bookings, v, a.clock, cfg),
		Reconciler: paymentsservice.NewReconciler(a.store, bookings, a.clock, cfg),
		Sweeper:    sweeper.New(a.store, holds, bookings, a.clock, cfg),
	}
}

func (a *Application) setConsumer() error {
	if !a.cfg.KafkaEnabled || a.cfg.KafkaPaymentTopic == "" {
		return nil
	}
	if a.cfg.KafkaPaymentSecret == "" {
		a.cfg.Log.Error("No Kafka payment secret configured, payment events will be dead-lettered")
	}

	c, err := consumer.New(a.kafkaCfg, a.cfg, a.services.Reconciler, a.metrics)
	if err != nil {
		return err
	}
	a.consumer = c
	return nil
}

func (a *Application) setHandler() {
	cfg := a.cfg

	router := httprouter.New()
	router.NotFound = http.HandlerFunc(notFound)
	router.MethodNotAllowed = http.HandlerFunc(methodNotAllowed)

	slotHandler := slotshandler.NewSlotHandler(a.services.Slots, cfg.Log)
	bookingHandler := bookingshandler.NewBookingHandler(a.services.Bookings, cfg.Log)
	webhookHandler := paymentshandler.NewWebhookHandler(a.services.Reconciler, a.providers(), cfg.Log.Component("webhooks"))
	statsHandler := NewStatsHandler(a.store.Name(), a.services.Sweeper, a.metrics, a.consumer, cfg.Log)

	for _, h := range []contracts.Handler{
		NewHealthHandler(a.store, a.redisClientOrNil(), cfg.Log),
		slotHandler,
		holdshandler.NewHoldHandler(a.services.Holds, cfg.Log),
		bookingHandler,
		groupshandler.NewGroupHandler(a.services.Groups, cfg.Log),
		webhookHandler,
	} {
		h.RegisterRoutes(router)
	}

	guard := middleware.AdminAuth(cfg.AdminTokenHash, cfg.Log)
	for _, h := range []contracts.AdminHandler{slotHandler, bookingHandler, webhookHandler, statsHandler} {
		h.RegisterAdminRoutes(router, guard)
	}

	if cfg.Client != nil && cfg.Client.Redis != nil {
		a.idempotencyStore = middleware.NewRedisIdempotencyStore(cfg.Client.Redis, cfg.IdempotencyTTL, a.clock)
		cfg.Log.Info("Idempotency keys are stored in Redis")
	} else {
		a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL, a.clock)
	}
	if cfg.Client != nil && cfg.Client.Redis != nil {
		a.rateLimiter = middleware.NewRedisRateLimiter(cfg.Client.Redis, cfg.RateLimitWindow, a.clock)
	} else {
		a.rateLimiter = middleware.NewInMemoryRateLimiter(cfg.RateLimitWindow, a.clock)
	}
	limits := middleware.RateLimits{PerSession: cfg.RateLimitRequests, PerAddress: cfg.RateLimitAddressRequests}
	sessions := session.NewManager(cfg.SessionHashKey, cfg.SessionBlockKey, cfg.Log)

	// Health checks and provider webhooks skip the client session stack.
	var bare http.Handler = router
	bare = middleware.RequestTimeout(cfg.RequestTimeout)(bare)
	bare = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(bare)
	bare = middleware.RequestLogging(cfg.Log)(bare)
	bare = middleware.Recovery(cfg.Log)(bare)

	var full http.Handler = router
	full = middleware.Idempotency(a.idempotencyStore, middleware.DefaultIdempotencyHeader, cfg.Log)(full)
	full = middleware.RequestTimeout(cfg.RequestTimeout)(full)
	full = middleware.ClientRateLimit(a.rateLimiter, limits, isHoldCreation, cfg.Log)(full)
	full = sessions.Middleware(full)
	full = middleware.ContentTypeValidation(cfg.Log)(full)
	full = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(full)
	full = middleware.RequestLogging(cfg.Log)(full)
	full = middleware.Recovery(cfg.Log)(full)

	mux := http.NewServeMux()
	mux.Handle("/health", bare)
	mux.Handle("/ready", bare)
	mux.Handle("/webhooks/", bare)
	mux.Handle("/", full)
	a.handler = mux

	cfg.Log.Info("HTTP routes configured", "store", a.store.Name())
}

// isHoldCreation matches the requests that take capacity and so are rate
// limited per session and client address.
func isHoldCreation(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	p := r.URL.Path
	return p == "/holds" || p == "/groups" ||
		(strings.HasPrefix(p, "/groups/") && strings.HasSuffix(p, "/participants"))
}

func (a *Application) providers() *provider.Registry {
	if a.cfg.PaymentWebhookSecret == "" {
		a.cfg.Log.Error("No payment webhook secret configured, standard webhooks will be rejected")
	}
	if a.cfg.EnvelopeWebhookSecret == "" {
		a.cfg.Log.Warn("No envelope webhook secret configured, envelope webhooks will be rejected")
	}
	return provider.NewRegistry(
		provider.NewStandard(a.cfg.PaymentWebhookSecret),
		provider.NewEnvelope(a.cfg.EnvelopeWebhookSecret),
	)
}

func (a *Application) redisClientOrNil() *redis.Client {
	if a.cfg.Client == nil {
		return nil
	}
	return a.cfg.Client.Redis
}

func (a *Application) setServer() {
	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Handler() http.Handler { return a.handler }

func (a *Application) Services() *Services { return a.services }

func (a *Application) Store() storage.Store { return a.store }

// Run serves HTTP and runs the background workers until SIGINT/SIGTERM or
// ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	a.startWorkers(workersCtx, &workers)

	serverErrors := make(chan error, 1)
	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("HTTP server failed: %w", err)
			a.cfg.Log.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
		a.cfg.Log.Info("Shutdown signal received")
	}

	a.gracefulShutdown(cancelWorkers, &workers)
	return runErr
}

func (a *Application) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.services.Sweeper.Run(ctx)
	}()

	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.cfg.Log.Error("Payment consumer stopped", "error", err)
			}
		}()
	}
}

func (a *Application) gracefulShutdown(cancelWorkers context.CancelFunc, workers *sync.WaitGroup) {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	cancelWorkers()
	workers.Wait()
	a.Close()
	a.cfg.Log.Info("Background workers stopped")

	if a.cfg.Client != nil {
		a.cfg.Client.GracefulShutdown(ctx, a.cfg.Log)
	}
	a.cfg.Log.Info("Server stopped gracefully")
}

// Close releases the in-process workers and Kafka clients. It does not
// close cfg.Client connections.
func (a *Application) Close() {
	if a.idempotencyStore != nil {
		a.idempotencyStore.Stop()
	}
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	a.closeKafka()
}

func (a *Application) closeKafka() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.cfg.Log.Error("Failed to close payment consumer", "error", err)
		}
		a.consumer = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.cfg.Log.Error("Failed to close booking event producer", "error", err)
		}
		a.producer = nil
	}
}
