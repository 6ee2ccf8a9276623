package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sohailahmedkhan/agents/config"
	"github.com/sohailahmedkhan/agents/internal/duckdb"
	"github.com/sohailahmedkhan/agents/internal/mcp"
	"github.com/sohailahmedkhan/agents/internal/registry"
)

func main() {
	var cfgPath string
	var transport string
	var addr string

	root := &cobra.Command{
		Use:   "mcpd",
		Short: "Run the DuckDB tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			gateway, err := duckdb.New(cfg.Store.Path, cfg.Store.ReadOnly, cfg.Store.AllowWrite, cfg.Store.RowLimit)
			if err != nil {
				return err
			}
			defer gateway.Close()

			// stdout carries the protocol in stdio mode; logs go to stderr.
			logger := log.New(os.Stderr, "[MCP] ", log.LstdFlags)
			server := mcp.NewServer(gateway, registry.New(), logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			switch transport {
			case "stdio":
				return server.Serve(ctx, os.Stdin, os.Stdout)
			case "tcp":
				if addr == "" {
					addr = cfg.Transport.Addr()
				}
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return err
				}
				logger.Printf("listening on %s", addr)
				return server.ServeTCP(ctx, ln)
			default:
				return fmt.Errorf("unsupported transport %q (stdio or tcp)", transport)
			}
		},
	}
	root.Flags().StringVar(&transport, "transport", "stdio", "transport mode (stdio or tcp)")
	root.Flags().StringVar(&addr, "addr", "", "tcp listen address (overrides config)")
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
