package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/journeys"
	"tidbyt.dev/journeys/config"
	"tidbyt.dev/journeys/downloader"
	"tidbyt.dev/journeys/storage"
)

var rootCmd = &cobra.Command{
	Use:          "journeys",
	Short:        "Tidbyt journey planner",
	Long:         "Imports transit networks and plans journeys over them",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

var (
	configPath string
	logLevel   string
	cacheDir   string
	cacheTTL   time.Duration
	headers    []string
	network    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&cacheDir, "cache-dir", "", "", "Directory to cache downloaded networks in")
	rootCmd.PersistentFlags().DurationVarP(&cacheTTL, "cache-ttl", "", 24*time.Hour, "How long cached downloads are reused")
	rootCmd.PersistentFlags().StringVarP(&network, "network", "n", "", "Network name (overrides config)")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header for network downloads",
	)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(changesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level '%s'", logLevel)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}
	if network != "" {
		cfg.Storage.Network = network
	}
	return cfg, nil
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		dir := cfg.Storage.Directory
		if dir == "" {
			dir = "."
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: dir})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.ConnStr, false)
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Storage.Backend)
}

func newManager(cfg *config.Config) (*journeys.Manager, error) {
	s, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	manager := journeys.NewManager(s)
	manager.Logger = slog.Default()
	if cacheDir != "" {
		d, err := downloader.NewDirectory(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		d.Logger = manager.Logger
		manager.Downloader = d
		manager.ImportCacheTTL = cacheTTL
	}

	return manager, nil
}

// Imports a network from a URL or a local file.
func importNetwork(ctx context.Context, manager *journeys.Manager, name string, source string) error {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		h, err := parseHeaders(headers)
		if err != nil {
			return fmt.Errorf("invalid header: %w", err)
		}
		_, err = manager.ImportNetworkURL(ctx, name, source, h)
		return err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}
	_, err = manager.ImportNetwork(name, data)
	return err
}
