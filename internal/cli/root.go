// Package cli implements the element-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rcliao/element-memory/internal/config"
	"github.com/rcliao/element-memory/internal/logger"
	"github.com/rcliao/element-memory/internal/site"
	"github.com/rcliao/element-memory/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	backend    string
	siteToken  string
	formatFlag string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "element-memory",
	Short: "Remember what page elements mean",
	Long:  "Fingerprints rendered page elements and caches their classification per site, so repeat visits skip the LLM.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.element-memory/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Knowledge directory (default: $ELEMENT_MEMORY_DATA_DIR or ~/.element-memory)")
	RootCmd.PersistentFlags().StringVar(&backend, "store", "", "Store backend: file or sqlite")
	RootCmd.PersistentFlags().StringVar(&siteToken, "site-token", "", "Token selecting one of several knowledge maps for a site")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig resolves settings from the config file, .env files, the
// environment and flags, then installs the logger.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}

	envFiles := []string{".env"}
	if dir, err := config.Dir(); err == nil {
		envFiles = append(envFiles, filepath.Join(dir, ".env"))
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		exitErr("load env", err)
	}
	cfg.ApplyEnv()

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if backend != "" {
		cfg.Store = backend
	}
	if siteToken != "" {
		cfg.Analysis.SiteToken = siteToken
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.Open(cfg.Store, cfg.DataDir, store.Options{Logger: slog.Default()})
}

func parseSite(cfg *config.Config, raw string) site.Identity {
	id, err := site.Parse(raw, cfg.Analysis.SiteToken)
	if err != nil {
		exitErr("parse site", err)
	}
	return id
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
