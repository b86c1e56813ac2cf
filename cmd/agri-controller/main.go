// Smart irrigation controller
// Main entry point for the irrigation service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agsys/smart-irrigation/internal/engine"
)

// Config represents the configuration file structure
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	MQTT struct {
		BrokerURL string `yaml:"broker_url"`
		ClientID  string `yaml:"client_id"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		QoS       *byte  `yaml:"qos"`
		Namespace string `yaml:"namespace"`
		AckFilter string `yaml:"ack_filter"`
	} `yaml:"mqtt"`

	HTTP struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"http"`

	GRPC struct {
		HealthAddr string `yaml:"health_addr"`
	} `yaml:"grpc"`

	Redis engine.RedisConfig `yaml:"redis"`

	Weather struct {
		BaseURL           string  `yaml:"base_url"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		CacheMinutes      int     `yaml:"cache_minutes"`
	} `yaml:"weather"`

	Satellite struct {
		ProcessorURL   string `yaml:"processor_url"`
		APIKey         string `yaml:"api_key"`
		LookbackDays   int    `yaml:"lookback_days"`
		RefreshMinutes *int   `yaml:"refresh_minutes"`
	} `yaml:"satellite"`

	Timing struct {
		PublishTimeout int `yaml:"publish_timeout"`
		ConnectRetries int `yaml:"connect_retries"`
		HealthInterval int `yaml:"health_interval"`
	} `yaml:"timing"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

var (
	configFile string
	envFile    string
	rootCmd    = &cobra.Command{
		Use:   "agri-controller",
		Short: "Smart irrigation controller",
		Long:  "Irrigation controller for farm IoT deployments. Ingests MQTT telemetry, recommends irrigation and drives pump schedules.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the controller service",
		RunE:  runController,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Smart Irrigation Controller v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/agsys/irrigation.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file with secret overrides")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// applyEnv overlays secrets from the environment onto the file config
func applyEnv(cfg *Config) {
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		cfg.MQTT.BrokerURL = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SATELLITE_API_KEY"); v != "" {
		cfg.Satellite.APIKey = v
	}
}

// buildEngineConfig maps the file config onto engine defaults
func buildEngineConfig(cfg *Config) (engine.Config, error) {
	engineCfg := engine.DefaultConfig()

	if cfg.Database.Path != "" {
		engineCfg.DatabasePath = cfg.Database.Path
	}

	if cfg.MQTT.BrokerURL != "" {
		engineCfg.MQTT.BrokerURL = brokerURL(cfg.MQTT.BrokerURL)
	}
	if cfg.MQTT.ClientID != "" {
		engineCfg.MQTT.ClientID = cfg.MQTT.ClientID
	}
	engineCfg.MQTT.Username = cfg.MQTT.Username
	engineCfg.MQTT.Password = cfg.MQTT.Password
	if cfg.MQTT.QoS != nil {
		if *cfg.MQTT.QoS > 2 {
			return engineCfg, fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		engineCfg.MQTT.QoS = *cfg.MQTT.QoS
	}
	if cfg.MQTT.Namespace != "" {
		engineCfg.Topics.Namespace = cfg.MQTT.Namespace
	}
	if cfg.MQTT.AckFilter != "" {
		engineCfg.Topics.AckFilter = cfg.MQTT.AckFilter
	}

	if cfg.HTTP.ListenAddr != "" {
		engineCfg.HTTP.ListenAddr = cfg.HTTP.ListenAddr
	}
	if cfg.GRPC.HealthAddr != "" {
		engineCfg.GRPCAddr = cfg.GRPC.HealthAddr
	}
	engineCfg.Redis = cfg.Redis

	if cfg.Weather.BaseURL != "" {
		engineCfg.Weather.BaseURL = cfg.Weather.BaseURL
	}
	if cfg.Weather.RequestsPerSecond > 0 {
		engineCfg.Weather.RequestsPerSecond = cfg.Weather.RequestsPerSecond
	}
	if cfg.Weather.CacheMinutes > 0 {
		engineCfg.Weather.CurrentTTL = minutesToDuration(cfg.Weather.CacheMinutes)
		engineCfg.Weather.ForecastTTL = 3 * engineCfg.Weather.CurrentTTL
	}

	if cfg.Satellite.ProcessorURL != "" {
		engineCfg.Satellite.ProcessorURL = cfg.Satellite.ProcessorURL
	}
	engineCfg.Satellite.APIKey = cfg.Satellite.APIKey
	if cfg.Satellite.LookbackDays > 0 {
		engineCfg.Satellite.Lookback = time.Duration(cfg.Satellite.LookbackDays) * 24 * time.Hour
	}
	// 0 disables the periodic refresh
	if cfg.Satellite.RefreshMinutes != nil {
		engineCfg.Satellite.RefreshInterval = minutesToDuration(*cfg.Satellite.RefreshMinutes)
	}

	if cfg.Timing.PublishTimeout > 0 {
		engineCfg.MQTT.PublishTimeout = secondsToDuration(cfg.Timing.PublishTimeout)
	}
	if cfg.Timing.ConnectRetries > 0 {
		engineCfg.MQTT.ConnectRetries = cfg.Timing.ConnectRetries
	}
	if cfg.Timing.HealthInterval > 0 {
		engineCfg.HealthInterval = secondsToDuration(cfg.Timing.HealthInterval)
	}

	engineCfg.Debug = cfg.Logging.Level == "debug"
	return engineCfg, nil
}

func runController(cmd *cobra.Command, args []string) error {
	// Secrets may live in a dotenv file next to the service
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load %s: %v", envFile, err)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyEnv(cfg)

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	engineCfg, err := buildEngineConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if engineCfg.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}

	// Create engine
	eng, err := engine.New(engineCfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Starting irrigation controller (broker %s, topics %s)",
		engineCfg.MQTT.BrokerURL, engineCfg.Topics.Telemetry())
	if err := eng.Start(ctx); err != nil {
		eng.Stop()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Wait for shutdown signal
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)

	if err := eng.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// brokerURL defaults a bare host:port to plain TCP
func brokerURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "tcp://" + raw
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func minutesToDuration(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
