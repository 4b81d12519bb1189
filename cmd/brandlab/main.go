// Package main is the entry point for the brandlab CLI: the HTTP API
// (serve), an interactive terminal exploration (explore) and kind listing.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PabloGalante/brandlab/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "brandlab",
	Short: "AI-guided explorations of brand personas and assets",
	Long: `brandlab interviews a user about one brand item (a persona or a brand
asset), one dimension at a time, and synthesizes the transcript into an
insight report with field suggestions.

Settings come from BRANDLAB_* environment variables. An optional brandlab.yaml
and the flags below override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A local .env fills BRANDLAB_* variables that are not already set.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./brandlab.yaml or ~/.config/brandlab/config.yaml)")
	pf.String("storage", "", "storage backend: memory, sqlite or firestore")
	pf.String("sqlite-path", "", "sqlite database file")
	pf.String("llm-backend", "", "llm backend: gemini, openai, anthropic or mock")
	pf.String("model", "", "model name pinned on new sessions")
	pf.String("log-level", "", "log level: debug, info, warn or error")

	for _, name := range []string{"storage", "sqlite-path", "llm-backend", "model", "log-level"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("brandlab")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "brandlab"))
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig reads the environment, applies file and flag overrides and
// validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"mode":          (*string)(&cfg.Mode),
		"port":          &cfg.Port,
		"storage":       &cfg.StorageBackend,
		"sqlite-path":   &cfg.SQLitePath,
		"gcp-project":   &cfg.GCPProjectID,
		"llm-backend":   &cfg.LLMBackend,
		"model":         &cfg.ModelName,
		"log-level":     &cfg.LogLevel,
		"otel-endpoint": &cfg.OTELEndpoint,
	}
	for key, dst := range overrides {
		if viper.IsSet(key) {
			if v := viper.GetString(key); v != "" {
				*dst = v
			}
		}
	}
	if viper.IsSet("seed-demo") {
		cfg.SeedDemoData = viper.GetBool("seed-demo")
	}
	if viper.IsSet("report-timeout") {
		cfg.ReportTimeout = viper.GetDuration("report-timeout")
	}

	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
