// Package cli implements the affinity admin CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/affinity/internal/config"
	"github.com/rcliao/affinity/internal/engine"
	"github.com/rcliao/affinity/internal/logging"
)

var (
	dbPath     string
	configPath string
	userID     int64
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "affinity",
	Short: "Emotional relationship engine for chat bots",
	Long:  "Inspect and administer per-user memories, relationships and personality profiles. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $AFFINITY_DB or ~/.affinity/affinity.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $AFFINITY_CONFIG or ~/.affinity/config.yaml)")
	RootCmd.PersistentFlags().Int64VarP(&userID, "user", "u", 0, "User id")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("AFFINITY_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".affinity", "config.yaml")
}

// openEngine loads config, applies the --db flag and opens the engine.
// The returned func closes the engine and flushes the logger.
func openEngine() (*engine.Engine, func()) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	log, err := logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		exitErr("init logger", err)
	}

	e, err := engine.Open(cfg, log)
	if err != nil {
		exitErr("open engine", err)
	}
	return e, func() {
		e.Close()
		log.Sync()
	}
}

func requireUser() int64 {
	if userID <= 0 {
		exitErr("flags", fmt.Errorf("--user is required"))
	}
	return userID
}

// printResponse writes the envelope as JSON and exits non-zero on failure.
func printResponse(resp engine.Response) {
	printJSON(resp)
	if !resp.Success {
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
