package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ladlehq/ladle/config"
	"github.com/ladlehq/ladle/internal/adapters/reaper"
	"github.com/ladlehq/ladle/internal/adapters/redishub"
	"github.com/ladlehq/ladle/internal/adapters/scheduler"
	"github.com/ladlehq/ladle/internal/adapters/workerpool"
	"github.com/ladlehq/ladle/internal/data"
	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/hub"
	"github.com/ladlehq/ladle/internal/notify"
	"github.com/ladlehq/ladle/internal/observability/statsd"
	"github.com/ladlehq/ladle/internal/service"
)

// ServiceDeps holds the external dependencies services are built from.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// ServiceContainer holds every constructed service and adapter for one
// process. Which of them actually run depends on the enabled service modes.
type ServiceContainer struct {
	Metrics statsd.Sink

	Jobs        *service.JobService
	Deduction   *service.DeductionService
	Scan        *service.ScanService
	Report      *service.ReportService
	OrderEvents *service.OrderEventsService

	Hub    *hub.Hub
	Fanout *redishub.FanoutPublisher

	Pools     []*workerpool.Pool
	Scheduler *scheduler.Runner
	Reaper    *reaper.Runner
	Bridge    *redishub.Bridge
}

// NewServices builds the full service graph from configuration.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	cfg := deps.Config
	logger := deps.Logger

	metrics := buildMetrics(cfg.Observability, logger)

	jobRepo := data.NewJobRepo(deps.DB, data.JobRepoConfig{Logger: logger})
	stockRepo := data.NewStockRepo(deps.DB, data.StockRepoConfig{Logger: logger})
	recipeRepo := data.NewRecipeRepo(deps.DB, data.RecipeRepoConfig{Logger: logger})
	lotRepo := data.NewLotRepo(deps.DB, data.LotRepoConfig{Logger: logger})

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         jobRepo,
		DefaultLease: cfg.Workers.Email.JobLease,
		BackoffBase:  cfg.Workers.BackoffBase,
		BackoffCap:   cfg.Workers.BackoffCap,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build job service: %w", err)
	}

	eventHub := hub.New(hub.Options{Logger: logger, Buffer: cfg.Hub.Buffer})
	fanout, err := redishub.NewFanoutPublisher(redishub.FanoutOptions{
		Hub:     eventHub,
		Client:  deps.RedisClient,
		Channel: cfg.Hub.RedisChannel,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build hub fanout: %w", err)
	}

	deduction, err := service.NewDeductionService(service.DeductionServiceOptions{
		Stock:   stockRepo,
		Recipes: recipeRepo,
		Events:  fanout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build deduction service: %w", err)
	}

	reaperSvc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    jobRepo,
		Config:  cfg.Reaper,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build reaper service: %w", err)
	}

	scan, err := service.NewScanService(service.ScanServiceOptions{
		Stock:         stockRepo,
		Lots:          lotRepo,
		Events:        fanout,
		Jobs:          jobs,
		Reaper:        reaperSvc,
		Logger:        logger,
		ExpiryWindow:  cfg.Inventory.ExpiryWindow(),
		OpsRecipients: cfg.Inventory.OpsRecipients,
	})
	if err != nil {
		return nil, fmt.Errorf("build scan service: %w", err)
	}

	report, err := service.NewReportService(service.ReportServiceOptions{
		Stock:      stockRepo,
		Jobs:       jobs,
		Logger:     logger,
		Recipients: cfg.Inventory.OpsRecipients,
	})
	if err != nil {
		return nil, fmt.Errorf("build report service: %w", err)
	}

	orderEvents, err := service.NewOrderEventsService(service.OrderEventsServiceOptions{
		Deduction: deduction,
		Jobs:      jobs,
		Events:    fanout,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order events service: %w", err)
	}

	container := &ServiceContainer{
		Metrics:     metrics,
		Jobs:        jobs,
		Deduction:   deduction,
		Scan:        scan,
		Report:      report,
		OrderEvents: orderEvents,
		Hub:         eventHub,
		Fanout:      fanout,
	}

	if cfg.IsWorkersEnabled() {
		senders := buildSenders(cfg.Notifications, logger)
		if err := buildPools(container, cfg, senders, logger, metrics); err != nil {
			return nil, err
		}
	}

	if cfg.IsSchedulerEnabled() {
		container.Scheduler, err = scheduler.NewRunner(scheduler.RunnerOptions{
			Jobs:    jobs,
			Config:  cfg.Scheduler,
			Logger:  logger,
			Metrics: metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("build scheduler: %w", err)
		}
	}

	if cfg.IsReaperEnabled() {
		container.Reaper, err = reaper.NewRunner(reaper.RunnerOptions{
			Repo:    jobRepo,
			Config:  cfg.Reaper,
			Logger:  logger,
			Metrics: metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("build reaper: %w", err)
		}
	}

	if cfg.IsHubBridgeEnabled() {
		if deps.RedisClient == nil {
			return nil, errors.New("hub-bridge service requires redis")
		}
		container.Bridge, err = redishub.NewBridge(redishub.FanoutOptions{
			Hub:     eventHub,
			Client:  deps.RedisClient,
			Channel: cfg.Hub.RedisChannel,
			Logger:  logger,
		}, fanout.InstanceID())
		if err != nil {
			return nil, fmt.Errorf("build hub bridge: %w", err)
		}
	}

	return container, nil
}

//nolint:ireturn // the nil sink must stay typed as the interface.
func buildMetrics(cfg config.ObservabilityConfig, logger *slog.Logger) statsd.Sink {
	if !cfg.Metrics.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  "ladle",
		Logger:  logger,
	})
	if err != nil {
		if logger != nil {
			logger.Warn("statsd client disabled", "error", err)
		}
		return nil
	}
	return client
}

// senderSet groups the notification gateways; a disabled provider is nil and
// its pool will fail the jobs it cannot deliver.
type senderSet struct {
	email    notify.Sender
	sms      notify.Sender
	whatsapp notify.Sender
}

func buildSenders(cfg config.NotificationsConfig, logger *slog.Logger) senderSet {
	var set senderSet

	if cfg.Email.Enabled {
		sender, err := notify.NewEmailSender(notify.EmailSenderConfig{
			Provider: cfg.Email,
			Timeout:  cfg.Timeout,
		})
		if err != nil && logger != nil {
			logger.Warn("email sender disabled", "error", err)
		} else {
			set.email = sender
		}
	}
	if cfg.SMS.Enabled {
		sender, err := notify.NewSMSSender(notify.SMSSenderConfig{
			Provider: cfg.SMS,
			Timeout:  cfg.Timeout,
		})
		if err != nil && logger != nil {
			logger.Warn("sms sender disabled", "error", err)
		} else {
			set.sms = sender
		}
	}
	if cfg.WhatsApp.Enabled {
		sender, err := notify.NewWhatsAppSender(notify.WhatsAppSenderConfig{
			Provider: cfg.WhatsApp,
			Timeout:  cfg.Timeout,
		})
		if err != nil && logger != nil {
			logger.Warn("whatsapp sender disabled", "error", err)
		} else {
			set.whatsapp = sender
		}
	}

	return set
}

func buildPools(
	container *ServiceContainer,
	cfg *config.AppConfig,
	senders senderSet,
	logger *slog.Logger,
	metrics statsd.Sink,
) error {
	for _, category := range model.JobCategories() {
		pool, err := workerpool.New(workerpool.Options{
			Category:  category,
			Pool:      cfg.Workers.Pool(category),
			Jobs:      container.Jobs,
			Deduction: container.Deduction,
			Scan:      container.Scan,
			Report:    container.Report,
			Email:     senders.email,
			SMS:       senders.sms,
			WhatsApp:  senders.whatsapp,
			Logger:    logger,
			Metrics:   metrics,
		})
		if err != nil {
			return fmt.Errorf("build %s worker pool: %w", category, err)
		}
		container.Pools = append(container.Pools, pool)
	}
	return nil
}

// RunServicesWithShutdown runs every enabled service until a shutdown signal
// arrives or one of them fails, then stops the rest gracefully.
func RunServicesWithShutdown(ctx context.Context, services *ServiceContainer, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer services.Jobs.StopAllListeners()
	if services.Fanout != nil {
		defer services.Fanout.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, pool := range services.Pools {
		g.Go(func() error { return pool.Run(ctx) })
	}
	if services.Scheduler != nil {
		g.Go(func() error { return services.Scheduler.Run(ctx) })
	}
	if services.Reaper != nil {
		g.Go(func() error { return services.Reaper.Run(ctx) })
	}
	if services.Bridge != nil {
		g.Go(func() error { return services.Bridge.Run(ctx) })
	}

	if logger != nil {
		logger.InfoContext(ctx, "services started",
			"pools", len(services.Pools),
			"scheduler", services.Scheduler != nil,
			"reaper", services.Reaper != nil,
			"hub_bridge", services.Bridge != nil,
		)
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
