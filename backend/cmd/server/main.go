package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"plant-monitor/backend/internal/api"
	"plant-monitor/backend/internal/config"
	"plant-monitor/backend/internal/history"
	"plant-monitor/backend/internal/hub"
	"plant-monitor/backend/internal/ingest"
	"plant-monitor/backend/internal/poller"
	"plant-monitor/backend/internal/session"
	"plant-monitor/backend/internal/weather"
	"plant-monitor/backend/internal/ws"
	"plant-monitor/backend/pkg/apidoc"
	"plant-monitor/backend/pkg/mqtt"
	"plant-monitor/backend/pkg/router"
	"plant-monitor/backend/pkg/utils"
	"plant-monitor/web"
)

func main() {
	sigCtx, sigCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer sigCancel()

	cfg, err := config.New()
	if err != nil {
		fatalIfErr(slog.Default(), fmt.Errorf("failed to create config: %w", err))
	}

	defer func() {
		if err := cfg.Close(); err != nil {
			slog.Default().Error("failed to close config", utils.ErrAttr(err))
		}
	}()

	logger := getLogger(cfg)
	mqtt.SetLogger(logger)

	// Create collector for OpenAPI generation
	collector, err := getCollector(cfg, logger)
	fatalIfErr(logger, err)

	// Builders
	rb, err := router.NewRouteBuilder(logger, collector)
	fatalIfErr(logger, err)

	mb, err := mqtt.NewMQTTBuilder(logger, collector, mqtt.MQTTClientOptions{
		BrokerURL: cfg.MQTTBroker,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
	})
	fatalIfErr(logger, err)

	// Relay core
	store := history.NewStore(cfg.HistoryCapacity, history.DefaultChannels()...)
	broadcaster := hub.NewBroadcaster(logger)

	topics := make(map[history.Channel]string)
	for ch, feed := range cfg.Feeds() {
		topics[ch] = ingest.FeedTopic(cfg.FeedUser, feed)
	}

	ingestor, err := ingest.New(logger, store, broadcaster, topics)
	fatalIfErr(logger, err)
	fatalIfErr(logger, ingestor.Register(mb))

	if cfg.WeatherAPIKey == "" && !cfg.Generate {
		logger.Warn("OPENWEATHERMAP_KEY is not set, ambient temperature will be unavailable")
	}

	lookup := weather.NewClient(cfg.WeatherBaseURL, cfg.WeatherAPIKey, nil)
	sessions := session.NewManager(logger, broadcaster, lookup, cfg.PollInterval,
		poller.WithLookupTimeout(cfg.LookupTimeout))

	apiHandler := api.NewHandler(logger, store, mb, ingestor, sessions, ws.NewHandler(logger, sessions))
	registerHTTPHandlers(logger, rb, apiHandler)

	if cfg.Generate {
		// If generating, generate and exit
		if err := collector.Generate(); err != nil {
			fatalIfErr(logger, fmt.Errorf("failed to generate API documentation: %w", err))
		}

		return
	}

	// Embedded MQTT broker, started before the client so the first connect succeeds
	var broker *mqttbroker.Server
	if cfg.MQTTEmbeddedBroker {
		mqttAddr := fmt.Sprintf(":%d", cfg.MQTTBrokerPort)
		broker, err = getMQTTServer(logger, mqttAddr)
		fatalIfErr(logger, err)

		go func() {
			logger.Info("MQTT broker listening", slog.String("address", mqttAddr))

			if err := broker.Serve(); err != nil {
				logger.Error("MQTT broker failed", utils.ErrAttr(err))
				sigCancel()
			}
		}()
	}

	go func() {
		if err := mb.Connect(sigCtx); err != nil {
			logger.Error("Failed to connect to MQTT broker", utils.ErrAttr(err))
		}
	}()

	httpServer := api.NewHTTPServer(logger, fmt.Sprintf(":%d", cfg.Port), rb.Router())
	httpServer.StartOnBackground(sigCancel)

	// Wait for signal (either OS or some failure)
	<-sigCtx.Done()
	logger.Info("received signal, shutting down...")

	if err := httpServer.ShutdownWithDefaultTimeout(); err != nil {
		logger.Error("http server shutdown failed", utils.ErrAttr(err))
	}

	// stops every poller and closes the upgraded connections
	sessions.Shutdown()

	mb.Disconnect()

	if broker != nil {
		logger.Info("mqtt broker shutting down...")

		if err := broker.Close(); err != nil {
			logger.Error("mqtt broker shutdown failed", utils.ErrAttr(err))
		}
	}

	logger.Info("server exited gracefully")
}

func getMQTTServer(l *slog.Logger, addr string) (*mqttbroker.Server, error) {
	server := mqttbroker.New(&mqttbroker.Options{
		InlineClient: true,
		Logger:       l.With(slog.String("component", "mqtt-broker")),
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}

	if err := server.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})); err != nil {
		return nil, err
	}

	return server, nil
}

// registerHTTPHandlers registers all HTTP handlers.
func registerHTTPHandlers(l *slog.Logger, rb *router.RouteBuilder, h *api.Handler) {
	l.Info("Registering HTTP handlers...")

	h.RegisterRoutes(rb)

	webapp, err := web.DashboardApp()
	fatalIfErr(l, err)
	webapp.Register(rb.Router(), l)

	rb.Router().HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, webapp.URLBase(), http.StatusMovedPermanently)
	})

	l.Info("HTTP handlers registered successfully")
}

//nolint:ireturn // Returns MetadataCollector interface (OpenAPICollector or NoopCollector)
func getCollector(c *config.Config, l *slog.Logger) (apidoc.MetadataCollector, error) {
	if !c.Generate {
		return &apidoc.NoopCollector{}, nil
	}

	return apidoc.NewOpenAPICollector(l, apidoc.OpenAPICollectorOptions{
		GoTypesDirPath:        "backend/internal/types",
		OpenAPISpecOutputPath: "docs/openapi.yaml",
		TypeScriptOutputPath:  "web/app/types.ts",
		APIInfo: apidoc.APIInfo{
			Title:       "Plant Monitor API",
			Version:     utils.GetVersionShort(),
			Description: "Sensor history, health and the live event stream of the plant monitor relay",
			Servers: []apidoc.ServerInfo{
				{URL: fmt.Sprintf("http://localhost:%d", c.Port), Description: "Local server"},
			},
		},
	})
}

func getLogger(cfg *config.Config) *slog.Logger {
	logOptions := slog.HandlerOptions{
		Level:       cfg.LogLevel,
		ReplaceAttr: utils.SlogReplacer,
	}

	var logHandler slog.Handler = slog.NewJSONHandler(cfg.LogOutput, &logOptions)
	if cfg.Generate {
		logHandler = slog.NewTextHandler(cfg.LogOutput, &logOptions)
	}

	logger := slog.New(logHandler).With(slog.String("version", utils.GetVersionShort()))
	slog.SetDefault(logger)

	return logger
}

func fatalIfErr(l *slog.Logger, err error) {
	if err == nil {
		return
	}

	l.Error("error", utils.ErrAttr(err))
	os.Exit(1)
}
