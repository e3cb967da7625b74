package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/company-intel/internal/discovery"
	"github.com/sells-group/company-intel/internal/stream"
)

var discoverMaxURLs int

var discoverCmd = &cobra.Command{
	Use:   "discover <domain>",
	Short: "Discover scrapeable pages on a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := discoveryOptions()
		if discoverMaxURLs > 0 {
			opts.MaxURLs = discoverMaxURLs
		}

		executor := discovery.NewExecutor(opts)
		result, err := executor.Discover(cmd.Context(), args[0], stream.Logging())
		if result != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(result)
		}
		return err
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverMaxURLs, "max-urls", 0, "cap on discovered URLs (default from config)")
	rootCmd.AddCommand(discoverCmd)
}
