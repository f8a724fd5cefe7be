package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"molekule_bridge/internal/handlers"
	"molekule_bridge/internal/logger"
	"molekule_bridge/internal/metrics"
	"molekule_bridge/internal/molekule"
	"molekule_bridge/internal/mqtt"
	"molekule_bridge/internal/repository"
	"molekule_bridge/internal/server"
	"molekule_bridge/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

const defaultPollInterval = 300 * time.Second

func main() {
	// load config.yml first so the log level comes from it
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log_level"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// cloud client for the vendor API
	client, err := molekule.NewClient(molekule.Config{
		Email:    viper.GetString("molekule.email"),
		Password: viper.GetString("molekule.password"),
	})
	if err != nil {
		log.Fatalw("failed to build molekule client", "err", err)
	}

	// Prometheus collector for poll results
	recorder := metrics.NewRecorder()
	prometheus.MustRegister(recorder)

	// optional MQTT publisher with Home Assistant discovery
	publisher, closePublisher := buildPublisher(log.Named("mqtt"))
	defer closePublisher()

	// wire dependencies
	repos := repository.NewRepository(db)
	services := service.NewService(repos, client, service.Options{
		ForceQuietOnAuto: viper.GetBool("poll.force_quiet_on_auto"),
		SigningKey:       viper.GetString("auth.signing_key"),
	}, recorder, publisher)
	apiHandler := handlers.NewHandler(services, log.Named("http"))

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start the poll loop (via composed service)
	go services.Coordinator.Run(ctx, pollInterval())

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	// BRIDGE_MOLEKULE_PASSWORD etc. override the file, so credentials can
	// stay out of it
	viper.SetEnvPrefix("bridge")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "bridge.db")
		dbPath = "bridge.db"
	}
	return repository.InitDB(dbPath)
}

// pollInterval reads the cloud poll interval with the vendor's default.
func pollInterval() time.Duration {
	if s := viper.GetInt("poll.interval_seconds"); s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultPollInterval
}

// buildPublisher connects to the MQTT broker when one is configured.
// Returns a nil service.Publisher (MQTT disabled) and a no-op closer otherwise.
func buildPublisher(log *logger.Logger) (service.Publisher, func()) {
	if !viper.GetBool("mqtt.enabled") {
		return nil, func() {}
	}
	pub, err := mqtt.NewPublisher(mqtt.Config{
		Host:        viper.GetString("mqtt.host"),
		Port:        viper.GetInt("mqtt.port"),
		TLS:         viper.GetBool("mqtt.tls"),
		Username:    viper.GetString("mqtt.username"),
		Password:    viper.GetString("mqtt.password"),
		TopicPrefix: viper.GetString("mqtt.topic_prefix"),
	})
	if err != nil {
		log.Fatalw("failed to connect to mqtt broker", "err", err)
	}
	log.Infow("mqtt publisher connected", "host", viper.GetString("mqtt.host"))
	return pub, pub.Close
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
