package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/core/admission"
	"github.com/parleyhq/parley/internal/core/capacity"
	"github.com/parleyhq/parley/internal/core/classify"
	"github.com/parleyhq/parley/internal/core/dispatch"
	"github.com/parleyhq/parley/internal/core/engine"
	"github.com/parleyhq/parley/internal/core/store"
	errwrap "github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/observability"
	"github.com/parleyhq/parley/internal/server"
	"github.com/parleyhq/parley/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// logHandler is the default capability handler: it records the dispatch,
// leaving fulfillment to the downstream assistant runtime.
type logHandler struct {
	id string
}

func (h logHandler) Capability() string { return h.id }

func (h logHandler) Handle(ctx context.Context, req core.Request, decision core.DispatchDecision) error {
	observability.ServerLogger.Info("Dispatched turn",
		zap.String("capability", h.id),
		zap.String("caller", req.Caller),
		zap.String("action", string(decision.Action)),
		zap.Float64("confidence", decision.Confidence))
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admission and dispatch server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload quotas, classifier rules and the capability graph

The server will cleanly shut down the HTTP server and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration load failed")
		}
		if serverHost != "" {
			cfg.Server.Host = serverHost
		}
		if serverPort != 0 {
			cfg.Server.Port = serverPort
		}

		observability.InitServerLogger("parley", cfg.Logging.Level)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics("parley", cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		logger.Info("Initializing server",
			zap.String("service", "parley"),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", cfg.Metrics.Port),
			zap.Bool("redis", cfg.Redis.Enabled))

		// Capacity counters: shared Redis window when configured, with
		// in-process fallback. Memory only otherwise.
		var (
			capacityStore capacity.Store = capacity.NewMemoryStore()
			redisClient   *redis.Client
		)
		if cfg.Redis.Enabled {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			failover := capacity.NewFailover(
				capacity.NewRedisStore(redisClient, cfg.Redis.Timeout),
				capacity.NewMemoryStore(),
			)
			failover.ProbeInterval = cfg.Redis.ProbeInterval
			failover.OnOutage = func(err error) {
				metrics.RecordStoreFailover()
				logger.Warn("Capacity store unreachable, falling back to in-process counters",
					zap.Error(err))
			}
			failover.OnRecover = func() {
				logger.Info("Capacity store recovered, resuming shared counters")
			}
			capacityStore = failover
		}

		table, err := cfg.PolicyTable()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid quota policies")
		}
		controller := admission.NewController(capacityStore, table)

		classifier, err := buildClassifier(cmd.Context(), cfg)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid classifier configuration")
		}

		graph, err := cfg.Graph()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid capability graph")
		}

		var cache classify.Cache
		if redisClient != nil {
			cache = classify.NewRedisCache(redisClient, cfg.Redis.Timeout, cfg.Classifier.RevalidateBelow)
		} else {
			cache = classify.NewMemoryCache(cfg.Classifier.RevalidateBelow)
		}

		thresholds, err := cfg.Thresholds()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid dispatch thresholds")
		}
		policy := dispatch.NewPolicy(graph, thresholds, dispatch.NewPendingTurns(cfg.ClarifyTTL()))

		registry := dispatch.NewRegistry()
		for _, node := range graph.Nodes() {
			if err := registry.Register(logHandler{id: node.ID}); err != nil {
				return errwrap.WrapConfigInvalid(cmd.Context(), err, "handler registration failed")
			}
		}
		if err := registry.Validate(graph); err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "handler registry incomplete")
		}

		auditStore, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			logger.Error("Failed to open audit store", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "audit store initialization failed")
		}
		if err := auditStore.Migrate(cmd.Context()); err != nil {
			_ = auditStore.Close()
			return errwrap.WrapInternal(cmd.Context(), err, "audit store migration failed")
		}

		orchestrator := &engine.Orchestrator{
			Admission: controller,
			Cache:     cache,
			Policy:    policy,
			Registry:  registry,
			Audit:     auditStore,
			OnError: func(stage string, err error) {
				metrics.RecordStageFault(stage)
				logger.Warn("Pipeline stage fault absorbed",
					zap.String("stage", stage),
					zap.Error(err))
			},
		}
		orchestrator.SetClassifier(classifier)

		// Health manager
		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("audit_store", handlers.HealthCheckerFunc(func(ctx context.Context) error {
			return auditStore.DB.PingContext(ctx)
		}))
		if redisClient != nil {
			hm.RegisterChecker("capacity_store", handlers.HealthCheckerFunc(func(ctx context.Context) error {
				// Redis being down degrades to fail-open, it does not
				// make the service unready.
				if err := redisClient.Ping(ctx).Err(); err != nil {
					logger.Debug("Capacity store ping failed", zap.Error(err))
				}
				return nil
			}))
		}
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		// Reload rebuilds every config-derived table and swaps them
		// atomically; a rejected reload leaves the running state alone.
		reload := func() error {
			next, err := loadConfig()
			if err != nil {
				metrics.RecordConfigReload(false)
				logger.Error("Config reload rejected", zap.Error(err))
				return err
			}
			if err := applyConfig(next, controller, policy, registry, orchestrator); err != nil {
				metrics.RecordConfigReload(false)
				logger.Error("Config reload rejected", zap.Error(err))
				return err
			}
			metrics.RecordConfigReload(true)
			logger.Info("Configuration reloaded",
				zap.Int("quota_rules", len(next.Admission.Rules)),
				zap.Int("capabilities", len(next.Routing.Nodes)))
			return nil
		}

		srv := server.New(cfg.Server, server.Deps{
			Engine:      orchestrator,
			Health:      hm,
			Reload:      reload,
			ReloadToken: cfg.Admin.ReloadToken,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 30 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		// Handler 2: Close the audit store after in-flight writes drain
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Draining audit writes...")
			orchestrator.Drain()
			return auditStore.Close()
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		// SIGHUP triggers the same reload path as POST /admin/reload.
		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")
			return reload()
		})

		// Edits to the config file on disk reload without a signal.
		config.Watch(cfgFile, func() {
			logger.Info("Config file changed on disk: attempting reload")
			_ = reload()
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// buildClassifier assembles the scoring pipeline from config: keyword
// rules plus an embedding table built from capability descriptions.
func buildClassifier(ctx context.Context, cfg *config.Config) (*classify.Classifier, error) {
	rules, err := cfg.RuleTable()
	if err != nil {
		return nil, err
	}

	graph, err := cfg.Graph()
	if err != nil {
		return nil, err
	}

	embedder := classify.NewHashingEmbedder(cfg.Classifier.EmbeddingDim)
	embTable, err := classify.BuildEmbeddingTable(ctx, embedder, graph.Descriptions())
	if err != nil {
		return nil, err
	}

	return &classify.Classifier{
		Rules:            rules,
		Similarity:       classify.NewSimilarityScorer(embedder, embTable, cfg.Classifier.EmbedTimeout),
		LexicalWeight:    cfg.Classifier.LexicalWeight,
		SimilarityWeight: cfg.Classifier.SimilarityWeight,
		Floor:            cfg.Classifier.Floor,
		Epsilon:          cfg.Classifier.Epsilon,
		Priorities:       graph.Priorities(),
		ResultTTL:        cfg.Classifier.CacheTTL,
	}, nil
}

// applyConfig swaps the reloadable tables in place. Each piece is
// validated before anything is swapped, so a bad config never applies
// partially.
func applyConfig(cfg *config.Config, controller *admission.Controller, policy *dispatch.Policy, registry *dispatch.Registry, orchestrator *engine.Orchestrator) error {
	table, err := cfg.PolicyTable()
	if err != nil {
		return err
	}
	graph, err := cfg.Graph()
	if err != nil {
		return err
	}
	classifier, err := buildClassifier(context.Background(), cfg)
	if err != nil {
		return err
	}

	// Nodes added by the reload need handlers before the graph goes live.
	for _, node := range graph.Nodes() {
		if _, ok := registry.Resolve(node.ID); !ok {
			if err := registry.Register(logHandler{id: node.ID}); err != nil {
				return err
			}
		}
	}
	if err := registry.Validate(graph); err != nil {
		return err
	}

	controller.Swap(table)
	policy.SwapGraph(graph)
	orchestrator.SetClassifier(classifier)
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (overrides config)")
}
