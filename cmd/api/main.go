package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/health"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/support"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-ticket-service/internal/api/http"
	"github.com/spec-kit/sla-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-ticket-service/internal/auth"
	"github.com/spec-kit/sla-ticket-service/internal/config"
	"github.com/spec-kit/sla-ticket-service/internal/events"
	"github.com/spec-kit/sla-ticket-service/internal/integration"
	"github.com/spec-kit/sla-ticket-service/internal/notify"
	"github.com/spec-kit/sla-ticket-service/internal/observability"
	"github.com/spec-kit/sla-ticket-service/internal/persistence"
	"github.com/spec-kit/sla-ticket-service/internal/repository"
	"github.com/spec-kit/sla-ticket-service/internal/repository/sqlitestore"
	"github.com/spec-kit/sla-ticket-service/internal/scheduler"
	"github.com/spec-kit/sla-ticket-service/internal/service"
	"github.com/spec-kit/sla-ticket-service/internal/sla"
	"github.com/spec-kit/sla-ticket-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// stores is the repository set for the selected backend.
type stores struct {
	tickets   repository.TicketRepository
	comments  repository.TicketCommentRepository
	policies  repository.SLAPolicyRepository
	customers repository.CustomerRepository
	history   repository.TicketHistoryRepository
	pinger    handlers.Pinger
	close     func()
}

// awsClients are the external systems, or integration.Disabled when AWS is off.
type awsClients struct {
	cases  service.CaseClient
	health service.HealthClient
	email  notify.EmailSender
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	clients, err := newAWSClients(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to load aws config", zap.Error(err))
	}

	dispatcher := events.NewAsyncDispatcher(cfg.Notification.QueueSize, cfg.Notification.Workers,
		cfg.Notification.Timeout(), logger, metrics)

	calculator := sla.NewCalculator(sla.DefaultPolicy(cfg.SLA))
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  st.tickets,
		CommentRepo: st.comments,
		HistoryRepo: st.history,
		Calculator:  calculator,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	slaService := service.NewSLAService(service.SLADependencies{
		TicketRepo: st.tickets,
		PolicyRepo: st.policies,
		Calculator: calculator,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err := slaService.LoadPolicy(ctx); err != nil {
		logger.Fatal("failed to load sla policy", zap.Error(err))
	}
	caseService := service.NewSupportCaseService(service.SupportCaseDependencies{
		TicketRepo:    st.tickets,
		CommentRepo:   st.comments,
		TicketService: ticketService,
		Client:        clients.cases,
		Metrics:       metrics,
		Logger:        logger,
		Concurrency:   cfg.Reconcile.Concurrency,
	})
	healthService := service.NewHealthEventService(service.HealthEventDependencies{
		TicketRepo:        st.tickets,
		CustomerRepo:      st.customers,
		TicketService:     ticketService,
		Client:            clients.health,
		Dispatcher:        dispatcher,
		Metrics:           metrics,
		Logger:            logger,
		Concurrency:       cfg.Reconcile.Concurrency,
		MaxListedEntities: cfg.Reconcile.MaxListedEntities,
		DefaultCustomerID: cfg.Reconcile.DefaultCustomerID,
	})

	notificationService := service.NewNotificationService(dispatcher, newNotifier(cfg, clients, st, logger), metrics, logger)
	notificationWorker := worker.NewNotificationWorker(dispatcher, notificationService, logger)
	notificationWorker.Start()

	schedOpts := scheduler.Options{Timeout: cfg.Scheduler.JobTimeout, Metrics: metrics, Logger: logger}
	if cfg.Scheduler.LeaseEnabled {
		schedOpts.Locker = redis
	}
	jobScheduler := scheduler.New(schedOpts)
	if err := scheduler.RegisterDefaults(jobScheduler, cfg.Scheduler, scheduler.Reconcilers{
		SLA:    slaService,
		Cases:  caseService,
		Health: healthService,
	}); err != nil {
		logger.Fatal("failed to register jobs", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		jobScheduler.Start(ctx)
	} else {
		logger.Info("scheduler disabled; jobs run only on demand")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	readiness := map[string]handlers.Pinger{"store": st.pinger}
	if cfg.Scheduler.LeaseEnabled {
		readiness["redis"] = redis
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		SLA:            handlers.NewSLAHandler(slaService),
		Jobs:           handlers.NewJobsHandler(jobScheduler),
		Integrations:   handlers.NewIntegrationsHandler(caseService, healthService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	jobScheduler.Stop()
	_ = notificationWorker.Stop(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Store.Driver == "sqlite" {
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		s := sqlitestore.New(db.DB)
		return &stores{
			tickets:   s.Tickets,
			comments:  s.Comments,
			policies:  s.Policies,
			customers: s.Customers,
			history:   s.History,
			pinger:    db,
			close:     func() { _ = db.Close() },
		}, nil
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	pool := pg.PoolHandle()
	return &stores{
		tickets:   repository.NewTicketRepository(pool),
		comments:  repository.NewTicketCommentRepository(pool),
		policies:  repository.NewSLAPolicyRepository(pool),
		customers: repository.NewCustomerRepository(pool),
		history:   repository.NewTicketHistoryRepository(pool),
		pinger:    pg,
		close:     pg.Close,
	}, nil
}

func newAWSClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) (awsClients, error) {
	if !cfg.AWS.Enabled {
		logger.Warn("aws integration disabled; support and health calls will fail as unavailable")
		return awsClients{cases: integration.Disabled{}, health: integration.Disabled{}}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return awsClients{}, err
	}
	breaker := integration.BreakerSettings{RatePerSecond: cfg.AWS.RatePerSecond, Burst: 2}
	timeout := cfg.AWS.CallTimeout()

	supportAPI := support.NewFromConfig(awsCfg)
	healthAPI := health.NewFromConfig(awsCfg, func(o *health.Options) {
		if cfg.AWS.HealthRegion != "" {
			o.Region = cfg.AWS.HealthRegion
		}
	})
	sesAPI := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
		if cfg.AWS.SESRegion != "" {
			o.Region = cfg.AWS.SESRegion
		}
	})

	logger.Info("aws clients ready", zap.String("region", awsCfg.Region))
	return awsClients{
		cases:  integration.NewSupportClient(supportAPI, timeout, breaker, logger),
		health: integration.NewHealthClient(healthAPI, timeout, breaker, logger),
		email:  notify.NewSESSender(sesAPI, cfg.Notification.EmailFrom),
	}, nil
}

func newNotifier(cfg *config.Config, clients awsClients, st *stores, logger *zap.Logger) notify.Multi {
	var channels notify.Multi
	if clients.email != nil {
		channels = append(channels, notify.NewMailer(clients.email, st.customers, cfg.Notification.OpsEmail, logger))
	}
	if cfg.Notification.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Timeout()))
	}
	if len(channels) == 0 {
		logger.Warn("no notification channels configured; notifications are dropped")
	}
	return channels
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
