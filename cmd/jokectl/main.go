package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"viola-joke/internal/config"
	"viola-joke/internal/moderation"
	"viola-joke/internal/ratelimit"
	"viola-joke/internal/service"
	"viola-joke/internal/store"
	"viola-joke/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	settings = viper.New()
)

// rootCmd is the operator's tool for the joke store
var rootCmd = &cobra.Command{
	Use:   "jokectl",
	Short: "Moderate and maintain the Viola Joke store",
	Long: `jokectl works directly against the joke store the web server uses.

Settings come from flags, JOKECTL_* environment variables or a config file,
in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initSettings(cmd)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("driver", config.DriverFile, "storage driver: file or postgres")
	flags.String("path", "data/jokes.json", "joke file for the file driver")
	flags.String("db-host", "localhost", "postgres host")
	flags.Int("db-port", 5432, "postgres port")
	flags.String("db-user", "violajoke", "postgres user")
	flags.String("db-password", "", "postgres password")
	flags.String("db-name", "violajoke", "postgres database")
	flags.String("base-url", "https://violajoke.com", "public site URL used in feeds and sitemaps")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")

	rootCmd.AddCommand(pendingCmd, approveCmd, deleteCmd, statsCmd, importCmd, sitemapCmd, feedCmd)
}

func initSettings(cmd *cobra.Command) error {
	settings.SetEnvPrefix("JOKECTL")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if cfgFile != "" {
		settings.SetConfigFile(cfgFile)
		if err := settings.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	logger.Init(settings.GetString("log-level"), os.Stderr)
	return nil
}

func storageConfig() (config.StorageConfig, config.DatabaseConfig) {
	return config.StorageConfig{
			Driver: settings.GetString("driver"),
			Path:   settings.GetString("path"),
		}, config.DatabaseConfig{
			Host:           settings.GetString("db-host"),
			Port:           settings.GetInt("db-port"),
			User:           settings.GetString("db-user"),
			Password:       settings.GetString("db-password"),
			Name:           settings.GetString("db-name"),
			MaxConnections: 2,
			MinConnections: 1,
		}
}

// openService opens the configured store behind a service. The caller must
// invoke the returned close func.
func openService(ctx context.Context) (*service.Service, func(), error) {
	storageCfg, dbCfg := storageConfig()

	jokes, err := store.Open(ctx, storageCfg, dbCfg)
	if err != nil {
		return nil, nil, err
	}

	// jokectl never submits, and moderation here is trusted, so the limiter
	// and gate are placeholders.
	svc := service.New(jokes,
		ratelimit.New(1, time.Hour),
		moderation.NewGate(""),
		service.WithBaseURL(settings.GetString("base-url")),
	)
	return svc, jokes.Close, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
