package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/spetersoncode/openagent/config"
	"github.com/spetersoncode/openagent/internal/logging"
	"github.com/spetersoncode/openagent/internal/observe"
)

// Version is set at build time.
var Version = "0.1.0"

// Global flags
var (
	configPath  string
	model       string
	baseURL     string
	provider    string
	logLevel    string
	metricsAddr string
)

// State shared by subcommands, set up in PersistentPreRunE.
var (
	cfg           config.Config
	log           zerolog.Logger
	metricsServer *http.Server
	shutdownOtel  func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "openagent",
	Short: "Streaming tool-calling client for local OpenAI-compatible servers",
	Long: `openagent streams chat completions from LM Studio, Ollama, llama.cpp,
vLLM or any other OpenAI-compatible endpoint, running tools the model asks for.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model name (overrides OPENAGENT_MODEL)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Server base URL (overrides the provider preset)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Provider preset (lmstudio|ollama|llamacpp|vllm)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(mcpServeCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load() // .env is optional

	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log = logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Output: os.Stderr,
		Pretty: cfg.Log.Pretty,
	})

	if metricsAddr != "" {
		if err := startMetrics(cmd.Context()); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig layers the config file, the environment and the flags.
func loadConfig() (config.Config, error) {
	c := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		c = loaded
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, err
	}
	if provider != "" {
		if err := c.UseProvider(provider); err != nil {
			return config.Config{}, err
		}
	}
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	if model != "" {
		c.Model = model
	}
	return c, nil
}

func startMetrics(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "openagent",
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	shutdownOtel = shutdown

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", metricsAddr).Msg("serving metrics")
	return nil
}

func teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if metricsServer != nil {
		errs = append(errs, metricsServer.Shutdown(ctx))
	}
	if shutdownOtel != nil {
		errs = append(errs, shutdownOtel(ctx))
	}
	return errors.Join(errs...)
}
