package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"selfsignup/internal/identity/lookup"
	"selfsignup/internal/identity/secrets"
	identitystore "selfsignup/internal/identity/store"
	"selfsignup/internal/platform/config"
	httpmetrics "selfsignup/internal/platform/metrics"
	"selfsignup/internal/platform/postgres"
	"selfsignup/internal/platform/redis"
	"selfsignup/internal/portal"
	"selfsignup/internal/portal/handler"
	ratelimitmw "selfsignup/internal/ratelimit/middleware"
	ratelimit "selfsignup/internal/ratelimit/models"
	"selfsignup/internal/ratelimit/store/bucket"
	signupmetrics "selfsignup/internal/signup/metrics"
	"selfsignup/internal/signup/models"
	"selfsignup/internal/signup/notify"
	"selfsignup/internal/signup/service"
	"selfsignup/internal/signup/store/registration"
	"selfsignup/migrations"
	audit "selfsignup/pkg/platform/audit"
	auditpublisher "selfsignup/pkg/platform/audit/publisher"
	auditmemory "selfsignup/pkg/platform/audit/store/memory"
	auditpostgres "selfsignup/pkg/platform/audit/store/postgres"
	"selfsignup/pkg/platform/circuit"
)

type app struct {
	service *service.Service
	handler *handler.Handler

	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client

	buckets *bucket.InMemoryBucketStore
}

func (a *app) redisCheck(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Health(ctx)
}

func (a *app) postgresCheck(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

func (a *app) close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// build connects the configured backends and assembles the sign-up stack.
// On error every client opened so far is closed.
func build(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.db, err = postgres.Open(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	if a.db != nil {
		n, err := postgres.Migrate(ctx, a.db, migrations.FS, log)
		if err != nil {
			return nil, err
		}
		log.Info("database ready", "migrations_applied", n)
	}
	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}

	hasher := secrets.NewHasher(cfg.Signup.BcryptCost)
	var identities interface {
		service.IdentityStore
		lookup.UserStore
	}
	if a.db != nil {
		identities = identitystore.NewPostgres(a.db, cfg.Signup.Domains, identitystore.WithHasher(hasher))
	} else {
		identities = identitystore.NewInMemory(cfg.Signup.Domains, identitystore.WithHasher(hasher))
	}

	var registrations service.RegistrationStore
	switch cfg.Signup.Store {
	case config.StoreRedis:
		registrations = registration.NewRedis(a.redis.Client)
	case config.StorePostgres:
		registrations = registration.NewPostgres(a.db)
	default:
		registrations = registration.NewInMemory()
	}

	notifier, err := a.notifier(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var trail audit.Store = auditmemory.NewInMemoryStore()
	if a.db != nil {
		trail = auditpostgres.New(a.db)
	}
	auditor := auditpublisher.New(trail,
		auditpublisher.WithLogger(log),
		auditpublisher.WithMetrics(auditpublisher.NewMetrics(reg)),
	)

	channel, err := models.ParseChannel(cfg.Signup.DefaultChannel)
	if err != nil {
		return nil, err
	}
	a.service = service.New(registrations, identities, notifier,
		service.WithLogger(log),
		service.WithMetrics(signupmetrics.New(reg)),
		service.WithAuditor(auditor),
		service.WithCodeTTL(cfg.Signup.CodeTTL),
		service.WithOperationTimeout(cfg.Signup.OperationTimeout),
		service.WithDefaultChannel(channel),
		service.WithDefaultDomain(cfg.Signup.DefaultDomain),
	)

	client := portal.NewClient(a.service, lookup.New(identities), portal.WithLogger(log))
	opts := []handler.Option{
		handler.WithMetrics(httpmetrics.New(reg)),
		handler.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.Server.AdminToken != "" {
		opts = append(opts, handler.WithAdmin(cfg.Server.AdminToken, a.service, cfg.Signup.PurgeRetention))
	}
	if cfg.Limits.Enabled {
		opts = append(opts, handler.WithRateLimiter(a.rateLimiter(cfg.Limits, log, reg)))
	}
	a.handler = handler.New(client, log, opts...)
	return a, nil
}

// rateLimiter shares windows through Redis when it is configured, with an
// in-process fallback while Redis is unreachable.
func (a *app) rateLimiter(cfg config.RateLimit, log *slog.Logger, reg prometheus.Registerer) *ratelimitmw.Middleware {
	local := bucket.NewInMemoryBucketStore()
	var primary ratelimitmw.BucketStore = local
	opts := []ratelimitmw.Option{
		ratelimitmw.WithMetrics(ratelimitmw.NewMetrics(reg)),
		ratelimitmw.WithLimit(ratelimit.ClassRegister, ratelimit.Limit{Requests: cfg.Register, Window: cfg.Window}),
		ratelimitmw.WithLimit(ratelimit.ClassConfirm, ratelimit.Limit{Requests: cfg.Confirm, Window: cfg.Window}),
		ratelimitmw.WithLimit(ratelimit.ClassResend, ratelimit.Limit{Requests: cfg.Resend, Window: cfg.Window}),
	}
	if a.redis != nil {
		primary = bucket.NewRedisBucketStore(a.redis.Client)
		opts = append(opts, ratelimitmw.WithFallback(local))
	}
	a.buckets = local
	return ratelimitmw.New(primary, log, opts...)
}

// notifier routes EMAIL to SMTP when configured, failing over to the Kafka
// topic. Everything without a direct transport goes to the topic for
// downstream delivery.
func (a *app) notifier(ctx context.Context, cfg config.Config, log *slog.Logger) (*notify.Router, error) {
	var fallback notify.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		client, err := notify.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
		if err != nil {
			return nil, err
		}
		a.kafka = client
		if err := notify.EnsureTopic(ctx, client, cfg.Kafka.NotificationTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return nil, err
		}
		fallback = notify.NewEventNotifier(client, cfg.Kafka.NotificationTopic, log)
	}

	router := notify.NewRouter(log, fallback)
	if cfg.SMTP.Host != "" {
		dialer := notify.NewDialer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLSMode:  cfg.SMTP.TLSMode,
			Timeout:  cfg.SMTP.Timeout,
		})
		var email notify.Notifier = notify.NewEmailNotifier(dialer, cfg.SMTP.From, log)
		if fallback != nil {
			email = notify.NewFailover(email, fallback, log, notify.WithBreaker(circuit.New("smtp")))
		}
		router.Register(models.ChannelEmail, email)
	}
	if fallback == nil && cfg.SMTP.Host == "" {
		log.Warn("no notification transport configured; only the NONE channel can deliver codes")
	}
	return router, nil
}
