package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/config"
	"github.com/echook/telemetry-manager-go/pkg/db/postgres"
	"github.com/echook/telemetry-manager-go/pkg/server/live"
	"github.com/echook/telemetry-manager-go/pkg/server/rest"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy/local"
	natsproxy "github.com/echook/telemetry-manager-go/pkg/server/util/proxy/nats"
	"github.com/echook/telemetry-manager-go/pkg/service"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

var appConfig config.Config // holds processed config values

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the telemetry server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			appConfig = config.Config{}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"addr",
		"a",
		"localhost:8080",
		"HTTP server listen address")
	cmd.Flags().StringVar(&config.TLSServerAddr,
		"tls-addr",
		"",
		"HTTPS server listen address (TLS is disabled when empty)")
	cmd.Flags().StringVar(&config.TLSCertFile,
		"tls-cert",
		"",
		"path to TLS certificate")
	cmd.Flags().StringVar(&config.TLSKeyFile,
		"tls-key",
		"",
		"path to TLS private key")
	cmd.Flags().StringVar(&config.TLSCAFile,
		"tls-ca",
		"",
		"path to TLS root CA used to verify client certs")
	cmd.Flags().StringVar(&config.TraefikCerts,
		"traefik-certs",
		"",
		"path to the traefik acme.json file")
	cmd.Flags().StringVar(&config.TraefikCertDomain,
		"traefik-cert-domain",
		"",
		"domain to look up within the traefik certs")

	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogConfig,
		"log-config",
		"",
		"file containing logger configs")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().BoolVar(&appConfig.PrintMessage,
		"print-message",
		false,
		"if true and log level is debug, the record payload will be printed")

	cmd.Flags().StringVar(&config.IngestToken,
		"ingest-token",
		"",
		"token required from data loggers on ingest (empty disables the check)")
	cmd.Flags().StringVar(&config.MinLoggerVersion,
		"min-logger-version",
		"",
		"oldest logger firmware version accepted on ingest")
	cmd.Flags().StringVar(&config.StaleDuration,
		"stale-duration",
		"1m",
		"channel is removed if no data was received for this duration")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"if set, records are relayed via this NATS server")
	cmd.Flags().IntVar(&config.MaxClientsPerChannel,
		"max-clients-per-channel",
		0,
		"max number of concurrent live clients per channel (0: unlimited)")
	cmd.Flags().IntVar(&config.PageSize,
		"page-size",
		0,
		"default page size for history queries (0: builtin default)")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

func setupLogger(levelArg string, defaultVal log.Level) *log.Logger {
	if config.LogConfig != "" {
		if cfg, err := log.LoadConfig(config.LogConfig); err == nil {
			logger, fErr := log.NewWithFilters(
				os.Stderr,
				parseLogLevel(levelArg, defaultVal),
				cfg.Rules(),
				log.WithCaller(true),
				log.AddCallerSkip(1))
			if fErr == nil {
				return logger
			}
			fmt.Fprintf(os.Stderr, "could not apply log filters: %v\n", fErr)
		} else {
			fmt.Fprintf(os.Stderr, "could not read log config %s: %v\n", config.LogConfig, err)
		}
	}
	switch config.LogFormat {
	case "json":
		return log.New(
			os.Stderr,
			parseLogLevel(levelArg, defaultVal),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		return log.DevLogger(
			os.Stderr,
			parseLogLevel(levelArg, defaultVal),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
}

//nolint:funlen,cyclop // by design
func startServer(ctx context.Context) error {
	var telemetry *config.Telemetry
	logger := setupLogger(config.LogLevel, log.InfoLevel)
	sqlLogger := setupLogger(config.SQLLogLevel, log.InfoLevel)
	log.ResetDefault(logger)

	log.Debug("Config:",
		log.String("addr", config.ServerAddr),
		log.String("db", config.DB),
		log.String("nats", config.NatsURL),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	pgTraceOption := postgres.WithTracer(sqlLogger, log.DebugLevel)
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(context.Background()); err == nil {
			pgTraceOption = postgres.WithOtlpTracer()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	log.Info("Starting server")
	pool := postgres.InitWithUrl(
		config.DB,
		pgTraceOption,
	)

	staleDuration, err := time.ParseDuration(config.StaleDuration)
	if err != nil {
		staleDuration = 1 * time.Minute
	}
	log.Debug("init with stale duration", log.Duration("duration", staleDuration))
	lookup := utils.NewChannelLookup(utils.WithStaleDuration(staleDuration))

	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()

	dataProxy, err := setupProxy(watchdogCtx, lookup)
	if err != nil {
		log.Error("could not setup data proxy", log.ErrorField(err))
		return err
	}
	defer dataProxy.Close()
	go lookup.RunWatchdog(watchdogCtx)

	hub := live.NewHub(
		service.InitIngestService(pool),
		dataProxy,
		lookup,
		live.WithMaxClientsPerChannel(config.MaxClientsPerChannel),
		live.WithPrintRecords(appConfig.PrintMessage))
	api := rest.NewServer(
		service.InitHistoryService(pool),
		hub,
		dataProxy,
		rest.WithIngestToken(config.IngestToken),
		rest.WithMinLoggerVersion(config.MinLoggerVersion),
		rest.WithPageSize(config.PageSize))
	handler := newCORS().Handler(otelhttp.NewHandler(api.Router(), "api"))

	errChan := make(chan error, 2)
	//nolint:gosec // by design
	server := &http.Server{
		Addr:    config.ServerAddr,
		Handler: handler,
	}
	go func() {
		log.Info("Starting HTTP server", log.String("addr", config.ServerAddr))
		errChan <- server.ListenAndServe()
	}()

	var tlsServer *http.Server
	if config.TLSServerAddr != "" {
		if tlsConfig := NewTlsConfigProvider(watchdogCtx); tlsConfig != nil {
			//nolint:gosec // by design
			tlsServer = &http.Server{
				Addr:      config.TLSServerAddr,
				Handler:   handler,
				TLSConfig: tlsConfig,
			}
			go func() {
				log.Info("Starting HTTPS server", log.String("addr", config.TLSServerAddr))
				errChan <- tlsServer.ListenAndServeTLS("", "")
			}()
		} else {
			log.Warn("No TLS certificates available, TLS listener stays disabled")
		}
	}

	log.Info("Server started")
	setupGoRoutinesDump()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err = <-errChan:
		log.Error("server could not be started", log.ErrorField(err))
		return err
	case v := <-sigChan:
		log.Debug("Got signal ", log.Any("signal", v))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Warn("could not shutdown HTTP server", log.ErrorField(err))
	}
	if tlsServer != nil {
		if err = tlsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("could not shutdown HTTPS server", log.ErrorField(err))
		}
	}
	if telemetry != nil {
		telemetry.Shutdown()
	}
	lookup.Clear()
	pool.Close()
	log.Info("Server terminated")
	return nil
}

// setupProxy picks the record distribution backend. Without NATS the records
// are fanned out within this process only.
//
//nolint:whitespace // can't make both editor and linter happy
func setupProxy(ctx context.Context, lookup *utils.ChannelLookup) (
	proxy.DataProxy, error,
) {
	if config.NatsURL == "" {
		p := local.NewLocalProxy(lookup)
		lookup.SetOnRemoveCB(p.DeleteChannelCallback)
		return p, nil
	}
	log.Info("Connecting NATS", log.String("url", config.NatsURL))
	conn, err := nats.Connect(config.NatsURL)
	if err != nil {
		return nil, err
	}
	p, err := natsproxy.NewNatsProxy(conn, natsproxy.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	// channels may get unregistered by other instances
	p.SetOnUnregisterCB(lookup.RemoveChannel)
	lookup.SetOnRemoveCB(p.DeleteChannelCallback)
	return p, nil
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func waitForRequiredServices() {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	wg := sync.WaitGroup{}
	checkTcp := func(addr string) {
		if err = utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
		wg.Done()
	}

	if postgresAddr := utils.ExtractFromDBURL(config.DB); postgresAddr != "" {
		wg.Add(1)
		go checkTcp(postgresAddr)
	}
	if config.NatsURL != "" {
		wg.Add(1)
		go checkTcp(strings.TrimPrefix(config.NatsURL, "nats://"))
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	log.Debug("Required services are available")
}

func newCORS() *cors.Cors {
	// The dashboards are served from other origins, we need a very
	// permissive CORS setup.
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			// Allow all origins, which effectively disables CORS.
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			// Content-Type is in the default safelist.
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
		},
		// Let browsers cache CORS information for longer, which reduces the number
		// of preflight requests. Any changes to ExposedHeaders won't take effect
		// until the cached data expires. FF caps this value at 24h, and modern
		// Chrome caps it at 2h.
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
