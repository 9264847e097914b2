package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	var args string
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Runs one tool and prints its JSON result",
		Example: `  articlepicker call fetch_hatena_articles --args '{"blog_url":"https://example.hatenablog.com"}'
  articlepicker call fetch_qiita_articles --args '{"username":"alice","limit":3,"random_seed":42}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !json.Valid([]byte(args)) {
				return fmt.Errorf("--args must be a JSON object")
			}
			payload, err := appInstance.Tools().Call(cmd.Context(), positional[0], json.RawMessage(args))
			if err != nil {
				return fmt.Errorf("call %s: %w", positional[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}
	cmd.Flags().StringVar(&args, "args", "{}", "tool arguments as a JSON object")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Prints the available tools and their argument schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(appInstance.Tools().List()); err != nil {
				return fmt.Errorf("encode tool list: %w", err)
			}
			return nil
		},
	}
}
