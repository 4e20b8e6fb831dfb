package main

import (
	"github.com/spf13/cobra"

	"github.com/rmax-ai/sirsim/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Expose run_sir_ensemble, get_run and the sirsim://runs resource to MCP
clients. Requests are forwarded to a running "sirsim serve".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("api")
			return mcp.NewServer(url, version).Serve()
		},
	}
	cmd.Flags().String("api", "http://127.0.0.1:8095", "Base URL of the sirsim API")
	return cmd
}
