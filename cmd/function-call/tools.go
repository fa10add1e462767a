package main

import (
	"encoding/json"
	"fmt"

	"github.com/minhyannv/function-call-go/pkg/transport"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, offlineTransport(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		decls := a.registry.Declarations()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(decls)
		}
		for _, d := range decls {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", d.Name, d.Description)
		}
		return nil
	},
}

// offlineTransport backs commands that never contact the model.
func offlineTransport() transport.Transport {
	return transport.NewScripted()
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().Bool("json", false, "Print declarations with parameter schemas as JSON")
}
