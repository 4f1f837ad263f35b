package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbroker/adapter"
	"github.com/pithecene-io/docbroker/adapter/redis"
	"github.com/pithecene-io/docbroker/adapter/webhook"
	"github.com/pithecene-io/docbroker/auth"
	"github.com/pithecene-io/docbroker/broker"
	"github.com/pithecene-io/docbroker/cli/config"
	"github.com/pithecene-io/docbroker/engine"
	"github.com/pithecene-io/docbroker/iox"
	"github.com/pithecene-io/docbroker/ipc"
	"github.com/pithecene-io/docbroker/log"
	"github.com/pithecene-io/docbroker/merge"
	"github.com/pithecene-io/docbroker/metrics"
	"github.com/pithecene-io/docbroker/mirror"
	"github.com/pithecene-io/docbroker/server"
	"github.com/pithecene-io/docbroker/spool"
)

// Exit codes for serve.
const (
	exitServeError   = 1
	exitInvalidSetup = 2
)

// ServeCommand returns the serve command, the only command that accepts
// conversion requests.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON-RPC conversion API",
		Flags: []cli.Flag{
			ConfigFlag,
			SpoolDirFlag,
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "HTTP listen address (overrides server.listen)",
				EnvVars: []string{"DOCBROKER_LISTEN"},
			},
			&cli.StringFlag{
				Name:    "engine-host",
				Usage:   "Conversion engine host (overrides engine.host)",
				EnvVars: []string{"DOCBROKER_ENGINE_HOST"},
			},
			&cli.IntFlag{
				Name:    "engine-port",
				Usage:   "Conversion engine port (overrides engine.port)",
				EnvVars: []string{"DOCBROKER_ENGINE_PORT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error",
				EnvVars: []string{"DOCBROKER_LOG_LEVEL"},
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitInvalidSetup)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidSetup)
	}
	defer func() {
		if err := st.Close(); err != nil {
			st.logger.Warn("shutdown incomplete", map[string]any{"error": err.Error()})
		}
	}()

	started := time.Now()
	st.logger.Info("docbroker starting", map[string]any{
		"listen":      cfg.Server.Listen,
		"engine_addr": cfg.Engine.Addr(),
		"spool_dir":   cfg.Spool.Dir,
		"auth":        cfg.Auth.Type,
	})

	if err := st.server.Run(ctx, cfg.Server.Listen); err != nil {
		return cli.Exit(fmt.Sprintf("server: %v", err), exitServeError)
	}
	st.logger.Sugar().Infof("docbroker stopped after %s", time.Since(started).Round(time.Second))
	return nil
}

// stack is a fully wired broker process.
type stack struct {
	instanceID string
	logger     *log.Logger
	metrics    *metrics.Collector
	spool      *spool.Store
	engine     *engine.Client
	events     *adapter.Dispatcher
	service    *broker.Service
	server     *server.Server
}

// buildStack wires every component from cfg. Nothing contacts the engine
// yet; the first request does.
func buildStack(ctx context.Context, cfg *config.Config, logOut io.Writer) (*stack, error) {
	instanceID := uuid.NewString()
	logger := log.NewLogger(log.Options{
		Service:    "docbroker",
		InstanceID: instanceID,
		Level:      cfg.Log.Level,
		Writer:     logOut,
	})

	collector := metrics.NewCollector(instanceID, cfg.Engine.Addr())

	spoolOpts := []spool.Option{spool.WithLogger(logger), spool.WithMetrics(collector)}
	if cfg.Mirror.Path != "" {
		bucket, prefix := mirror.ParseS3Path(cfg.Mirror.Path)
		m, err := mirror.NewS3Mirror(ctx, mirror.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Mirror.Region,
			Endpoint:     cfg.Mirror.Endpoint,
			UsePathStyle: cfg.Mirror.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		spoolOpts = append(spoolOpts, spool.WithMirror(m))
	}
	store, err := spool.New(cfg.Spool.Dir, spoolOpts...)
	if err != nil {
		return nil, err
	}

	eng := engine.NewClient(
		ipc.Dialer(cfg.Engine.Addr(), cfg.Engine.DialTimeout.Duration),
		engine.Config{
			Attempts:   cfg.Engine.Attempts,
			RetryDelay: cfg.Engine.RetryDelay.Duration,
		},
		engine.WithLogger(logger),
		engine.WithMetrics(collector),
	)

	batcher := merge.NewBatcher(store,
		merge.WithBatchSize(cfg.Merge.BatchSize),
		merge.WithReadConcurrency(cfg.Merge.ReadConcurrency),
		merge.WithLogger(logger),
		merge.WithMetrics(collector),
	)

	users := make([]auth.User, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		users = append(users, auth.User{Username: u.Username, PasswordHash: u.PasswordHash})
	}
	authenticator, err := auth.New(cfg.Auth.Type, users)
	if err != nil {
		return nil, err
	}

	a, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	events := adapter.NewDispatcher(a, logger, collector)

	service := broker.NewService(authenticator, store, eng, batcher,
		broker.WithLogger(logger),
		broker.WithMetrics(collector),
		broker.WithEvents(events),
		broker.WithInstanceID(instanceID),
	)

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithHealth(func() map[string]any {
			return map[string]any{
				"instance_id": instanceID,
				"engine":      eng.State().String(),
			}
		}),
	}
	if cfg.MetricsEnabled() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewPrometheusCollector(collector))
		serverOpts = append(serverOpts, server.WithRegistry(reg))
	}

	return &stack{
		instanceID: instanceID,
		logger:     logger,
		metrics:    collector,
		spool:      store,
		engine:     eng,
		events:     events,
		service:    service,
		server:     server.New(service, serverOpts...),
	}, nil
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		wc := webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if cfg.Retries != nil {
			wc.Retries = *cfg.Retries
		}
		return webhook.New(wc)
	case "redis":
		rc := redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: redis.DefaultRetries,
		}
		if cfg.Retries != nil {
			rc.Retries = *cfg.Retries
		}
		return redis.New(rc)
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

// Close drains pending events, then drops the engine connection.
func (s *stack) Close() error {
	err := errors.Join(s.events.Close(), s.engine.Close())
	iox.DiscardErr(s.logger.Sync)
	return err
}
