package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskline/internal/app"
	"taskline/internal/mcp"
	"taskline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				cfg := b.Config
				if addr != "" {
					cfg.Server.Addr = addr
				}
				if basePath != "" {
					cfg.Server.BasePath = basePath
				}
				mcpSrv := mcp.NewServer(mcp.ServerConfig{
					Name:    cfg.MCP.Name,
					Version: version,
					Logger:  b.Logger,
				}, b.Registry)
				handler, err := server.New(server.Config{
					Registry:   b.Registry,
					BasePath:   cfg.Server.BasePath,
					CORSOrigin: cfg.Server.CORSOrigin,
					Auth:       server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
					MCP:        mcpSrv.HTTPHandler(),
					MCPPath:    cfg.MCP.Path,
					Version:    version,
					Logger:     b.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{
					Addr:              cfg.Server.Addr,
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
				}
				errCh := make(chan error, 1)
				go func() {
					b.Logger.Info("listening", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "mcp_path", cfg.MCP.Path)
					errCh <- srv.ListenAndServe()
				}()
				select {
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return fmt.Errorf("serve: %w", err)
				}
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				srv := mcp.NewServer(mcp.ServerConfig{
					Name:    b.Config.MCP.Name,
					Version: version,
					Logger:  b.Logger,
				}, b.Registry)
				err := srv.ServeStdio(ctx, os.Stdin, os.Stdout)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
