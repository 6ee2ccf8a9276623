package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/sohailahmedkhan/agents/config"
	srv "github.com/sohailahmedkhan/agents/internal/server"
)

func main() {
	var cfgPath string
	var addr string

	root := &cobra.Command{Use: "agentsd"}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the agents HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
