package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serves the article tools as JSON-RPC over stdin/stdout",
		Long: `Speaks newline-delimited JSON-RPC 2.0 (the tool subset of the Model
Context Protocol) so tool-calling clients can launch articlepicker as a
subprocess. Logs go to stderr; stdout carries protocol messages only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.StdioServer().Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("serve stdio: %w", err)
			}
			return nil
		},
	}
}
