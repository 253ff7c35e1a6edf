package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"taskline/internal/app"
	"taskline/internal/config"
	"taskline/internal/engine"
)

func toolsCmd() *cobra.Command {
	tc := &cobra.Command{Use: "tools", Short: "Inspect available tools"}
	tc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tools and their descriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				list := b.Registry.List()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"tools": list})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Tool", "Description"})
				for _, t := range list {
					tw.AppendRow(table.Row{t.Name, t.Description})
				}
				tw.Render()
				return nil
			})
		},
	})
	tc.AddCommand(&cobra.Command{
		Use:   "schema <tool>",
		Short: "Print a tool's input schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				t, ok := b.Registry.Lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown tool %s", args[0])
				}
				return printJSON(t.InputSchema)
			})
		},
	})
	return tc
}

func callCmd() *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call a tool with a JSON parameter object",
		Example: `  tl call get_next_task --params '{"requestId":"req-1"}'
  echo '{}' | tl call list_requests --params -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readParams(params, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runTool(cmd.Context(), args[0], raw)
		},
	}
	cmd.Flags().StringVar(&params, "params", "{}", "parameters as JSON, @file to read a file, - for stdin")
	return cmd
}

func readParams(params string, stdin io.Reader) (json.RawMessage, error) {
	switch {
	case params == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		return data, nil
	case strings.HasPrefix(params, "@"):
		data, err := os.ReadFile(strings.TrimPrefix(params, "@"))
		if err != nil {
			return nil, err
		}
		return data, nil
	default:
		return json.RawMessage(params), nil
	}
}

// runTool is the single path every CLI operation takes into the engine.
func runTool(ctx context.Context, name string, params any) error {
	var raw json.RawMessage
	switch p := params.(type) {
	case json.RawMessage:
		raw = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		raw = data
	}
	return withBackend(ctx, func(ctx context.Context, b *app.Backend) error {
		out, err := b.Registry.Call(ctx, name, raw)
		if err != nil {
			return err
		}
		if !viper.GetBool("json") {
			out = withIDs(out)
		}
		return printResult(out)
	})
}

// withIDs puts the id a caller needs for the follow-up command in front of
// messages that do not mention it.
func withIDs(out any) any {
	switch res := out.(type) {
	case engine.NextTaskResult:
		if res.TaskID != nil {
			res.Message = "Task ID: " + *res.TaskID + "\n" + res.Message
		}
		return res
	case engine.PlanResult:
		res.Message = "Request ID: " + res.RequestID + "\n" + res.Message
		return res
	}
	return out
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the whole workflow document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				e := b.Engine
				if e == nil {
					e = b.NewEngine()
				}
				doc, err := e.Snapshot(ctx)
				if err != nil {
					return err
				}
				return printJSON(doc)
			})
		},
	}
}

func configCmd() *cobra.Command {
	cc := &cobra.Command{Use: "config", Short: "Manage taskline.yml"}
	cc.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret != "" {
				cfg.Server.JWTSecret = "***"
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cc.AddCommand(initCmd)
	return cc
}
