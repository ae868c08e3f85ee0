package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luke-wagner/PlantCare-Monitor/config"
	"github.com/luke-wagner/PlantCare-Monitor/internal/api"
	"github.com/luke-wagner/PlantCare-Monitor/internal/collector"
	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/envfile"
	"github.com/luke-wagner/PlantCare-Monitor/internal/gemini"
	"github.com/luke-wagner/PlantCare-Monitor/internal/greg"
	"github.com/luke-wagner/PlantCare-Monitor/internal/logger"
	"github.com/luke-wagner/PlantCare-Monitor/internal/metrics"
	"github.com/luke-wagner/PlantCare-Monitor/internal/mqtt"
	"github.com/luke-wagner/PlantCare-Monitor/internal/realtime"
	"github.com/luke-wagner/PlantCare-Monitor/internal/version"
	"github.com/luke-wagner/PlantCare-Monitor/internal/workerpool"
	"github.com/luke-wagner/PlantCare-Monitor/utils"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("plantcare %s (%s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		return
	}

	envfile.Bootstrap()

	if err := logger.InitLogger(); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Close()
	logger.Info("starting plantcare hub %s", version.Version)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config %s: %v", cfg.Path(), err)
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn("log level: %v", err)
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		cfg.Auth.JWTSecret = utils.NewSecret()
		if err := cfg.Save(); err != nil {
			logger.Warn("persist jwt secret: %v", err)
		}
	}
	utils.SetJWTSecret(cfg.Auth.JWTSecret)
	if !cfg.Initialized {
		logger.Warn("hub not initialized: POST /api/v1/config/init to set the admin password")
	}

	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("open database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close database: %v", err)
		}
	}()

	m := metrics.New()
	hub := realtime.Default()

	gregClient := greg.NewClient(greg.Config{
		BaseURL:           cfg.Greg.BaseURL,
		Username:          cfg.Greg.Username,
		Timeout:           time.Duration(cfg.Greg.TimeoutSeconds) * time.Second,
		MaxPageBytes:      cfg.Greg.MaxPageBytes,
		RequestsPerSecond: cfg.Greg.RequestsPerSecond,
	})
	advisor := gemini.NewClient(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	})
	if !advisor.Enabled() {
		logger.Info("gemini api key not set, care tips disabled")
	}

	pool := workerpool.New(workerpool.Config{
		Name:       "collector",
		MaxWorkers: cfg.Collector.Workers,
		Logger:     logger.L(),
	})

	mqttClient := mqtt.NewClient(cfg.MQTT, store)
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.MQTT.ClientID)

	interval := time.Duration(cfg.Collector.IntervalSeconds) * time.Second
	coll := collector.New(collector.Options{
		Store:         store,
		Greg:          gregClient,
		Advisor:       advisor,
		Publisher:     mqtt.NewDisplayPublisher(mqttClient, topics, m),
		Hub:           hub,
		Metrics:       m,
		Pool:          pool,
		Interval:      interval,
		RetentionDays: cfg.Collector.RetentionDays,
		AutoInsights:  cfg.Collector.AutoInsights,
	})

	apiServer := api.NewServer(api.Deps{
		Config:    cfg,
		Store:     store,
		Collector: coll,
		MQTT:      mqttClient,
		Hub:       hub,
		Metrics:   m,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// collect?wait=true can hold a request for a full run
		WriteTimeout:   5 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 14,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if gregClient.Username() == "" {
		logger.Warn("greg username not set, collection waits for POST /api/v1/config/init")
	} else {
		logger.Info("collecting %s every %s", gregClient.ProfileURL(), interval)
	}
	g.Go(func() error {
		coll.Start(gctx)
		return nil
	})

	if cfg.MQTT.AutoConnect && strings.TrimSpace(cfg.MQTT.Server) != "" {
		g.Go(func() error {
			connectMQTT(gctx, mqttClient, topics, coll)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("%v", err)
	}

	if mqttClient.IsConnected() {
		if err := mqttClient.Disconnect(); err != nil {
			logger.Warn("mqtt disconnect: %v", err)
		}
	}
	if err := pool.Stop(10 * time.Second); err != nil {
		logger.Warn("stop worker pool: %v", err)
	}
	logger.Info("stopped")
}

// connectMQTT retries until the broker accepts the connection, then listens for collect commands
func connectMQTT(ctx context.Context, c mqtt.Client, topics mqtt.Topics, coll *collector.Collector) {
	backoff := 2 * time.Second
	for {
		err := c.Connect()
		if err == nil {
			break
		}
		logger.Warn("mqtt connect failed, retrying in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
	logger.Info("mqtt connected")

	err := c.Subscribe(topics.CollectCommand(), func(topic string, _ []byte) {
		if coll.Trigger() {
			logger.Info("collect requested via %s", topic)
		}
	})
	if err != nil {
		logger.Error("mqtt subscribe %s: %v", topics.CollectCommand(), err)
	}
}
