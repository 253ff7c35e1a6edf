package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskline/internal/app"
	"taskline/internal/config"
	"taskline/internal/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskline CLI",
	Long: `Taskline tracks user requests split into ordered tasks.
- Requests: what a user asked for, planned as a list of tasks (req-<N>).
- Tasks: units of work (task-<N>) that go pending -> done -> approved.
- Approval: an agent marks a task done; someone else approves it. A request
  closes only when every task is approved.
- Tools: every operation is a named tool with a JSON schema, callable from
  this CLI, the HTTP API (tl serve) or MCP (tl mcp).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory (holds taskline.yml and .taskline/)")
	flags.String("config", "", "config file (default <workspace>/taskline.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("driver", "", "store driver: sqlite, postgres, nats or memory")
	flags.String("mode", "", "engine mode: shared or per-request")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	for _, name := range []string{"workspace", "config", "json", "driver", "mode", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(callCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
}

// loadConfig reads the config file and applies flag and TASKLINE_* overrides.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
		if err == nil && cfg.Store.SQLite.Workspace == "" {
			cfg.Store.SQLite.Workspace = workspace
		}
	} else {
		cfg, err = config.Load(workspace)
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("driver"); v != "" {
		cfg.Store.Driver = v
	}
	if v := viper.GetString("mode"); v != "" {
		cfg.Engine.Mode = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("store-key"); v != "" {
		cfg.Store.Key = v
	}
	if v := viper.GetString("postgres-dsn"); v != "" {
		cfg.Store.Postgres.DSN = v
	}
	if v := viper.GetString("nats-url"); v != "" {
		cfg.Store.NATS.URL = v
	}
	if v := viper.GetString("events-nats-url"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Server.JWTSecret = v
	}
	return cfg, cfg.Validate()
}

func withBackend(ctx context.Context, fn func(context.Context, *app.Backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := app.Open(ctx, cfg, logger.New(cfg.Logging))
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

// printResult prints a tool result: the raw object with --json, otherwise
// its human-readable message.
func printResult(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Message == "" {
		return printJSON(v)
	}
	fmt.Print(msg.Message)
	if !strings.HasSuffix(msg.Message, "\n") {
		fmt.Println()
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
