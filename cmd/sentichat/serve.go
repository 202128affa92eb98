package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sentichat/sentichat/pkg/chat"
	"github.com/sentichat/sentichat/pkg/chatserver"
	"github.com/sentichat/sentichat/pkg/chatserver/metrics"
	"github.com/sentichat/sentichat/pkg/chatstore"
	"github.com/sentichat/sentichat/pkg/flags"
	"github.com/sentichat/sentichat/pkg/flags/configflags"
	"github.com/sentichat/sentichat/pkg/version"
)

const (
	shutdownTimeout       = 30 * time.Second
	healthRefreshInterval = time.Minute
)

type ServerFlags struct {
	APIFlags    *flags.APIFlags
	AIFlags     *flags.AIFlags
	CacheFlags  *flags.CacheFlags
	ConfigFlags *configflags.ConfigFlags
	DBFlags     *flags.PostgresFlags

	InitDatabase bool
}

func NewServerFlags() *ServerFlags {
	return &ServerFlags{
		APIFlags:    flags.NewAPIFlags(),
		AIFlags:     flags.NewAIFlags(),
		CacheFlags:  flags.NewCacheFlags(),
		ConfigFlags: configflags.NewConfigFlags(),
		DBFlags:     flags.NewPostgresDatabaseFlags(""),
	}
}

func (f *ServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.APIFlags.BindFlags(flagSet)
	f.AIFlags.BindFlags(flagSet)
	f.CacheFlags.BindFlags(flagSet)
	f.ConfigFlags.BindFlags(flagSet)
	f.DBFlags.BindFlags(flagSet)

	flagSet.BoolVar(&f.InitDatabase, "init-database", false, "Migrate the database schema before serving")
}

func (f *ServerFlags) Validate() error {
	return f.APIFlags.Validate()
}

func NewServeCommand() *cobra.Command {
	f := NewServerFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return errors.WithMessage(err, "error validating options")
			}
			log.WithField("commit", version.Get().GitCommit).Info("starting sentichat")

			var store chatstore.Store
			switch f.APIFlags.Storage {
			case flags.StorageMemory:
				log.Warn("using in-memory chat storage, history will be lost on restart")
				store = chatstore.NewMemoryStore()
			default:
				dbc, err := f.DBFlags.GetDBClient()
				if err != nil {
					return errors.WithMessage(err, "couldn't get DB client")
				}
				defer func() {
					if err := dbc.Close(); err != nil {
						log.WithError(err).Warn("error closing database")
					}
				}()
				if f.InitDatabase {
					if err := dbc.UpdateSchema(); err != nil {
						return errors.WithMessage(err, "could not migrate db")
					}
				}
				store = chatstore.NewPostgresStore(dbc)
			}

			cacheClient, err := f.CacheFlags.GetCacheClient()
			if err != nil {
				return errors.WithMessage(err, "couldn't get cache client")
			}
			if cacheClient != nil {
				defer func() {
					if err := cacheClient.Close(); err != nil {
						log.WithError(err).Warn("error closing cache")
					}
				}()
			}
			store = f.CacheFlags.WrapStore(store, cacheClient)

			config, err := f.ConfigFlags.GetConfig(f.AIFlags.GetChatConfig())
			if err != nil {
				return errors.WithMessage(err, "couldn't load AI profile")
			}
			svc := chat.NewService(config, f.AIFlags.GetLLMClient(config), store,
				chat.WithStateObserver(func(s chat.State) {
					log.WithField("state", s).Trace("exchange state")
				}))

			receiver, err := f.APIFlags.GetUploadReceiver()
			if err != nil {
				return errors.WithMessage(err, "couldn't prepare upload directory")
			}

			opts := []chatserver.Option{chatserver.WithHTTPMetrics(metrics.NewHTTPMiddleware(nil))}
			if cacheClient != nil {
				opts = append(opts, chatserver.WithCacheCheck(cacheClient))
			}
			server := chatserver.NewServer(f.APIFlags.ListenAddr, svc, receiver, opts...)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var metricsServer *http.Server
			if f.APIFlags.MetricsAddr != "" {
				metricsServer = serveMetrics(ctx, f.APIFlags.MetricsAddr, server)
			}

			log.WithFields(log.Fields{
				"model":     config.ModelID,
				"endpoint":  config.BaseURL,
				"storage":   f.APIFlags.Storage,
				"cache":     cacheClient != nil,
				"uploadDir": receiver.Dir(),
			}).Info("chat service configured")

			serveErr := make(chan error, 1)
			go func() {
				serveErr <- server.Serve()
			}()

			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					log.WithError(err).Warn("error shutting down metrics server")
				}
			}
			if err := server.Shutdown(shutdownCtx); err != nil {
				return errors.WithMessage(err, "error shutting down chat server")
			}
			return <-serveErr
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

// serveMetrics exposes prometheus metrics on addr and keeps the service health gauges current
// until ctx is done.
func serveMetrics(ctx context.Context, addr string, server *chatserver.Server) *http.Server {
	server.CheckHealth(ctx)
	go func() {
		ticker := time.NewTicker(healthRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				server.CheckHealth(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Serving metrics on %s", addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server exited")
		}
	}()
	return metricsServer
}
