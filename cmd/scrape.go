package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/merge"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/scraper"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url> [url...]",
	Short: "Scrape URLs through the plugin registry and merge the passes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		batch := scraper.RunBatch(cmd.Context(), scraper.ViaRegistry(e.Registry), args, scraper.BatchOptions{
			WindowSize: cfg.Scrape.BatchSize,
			Delay:      time.Duration(cfg.Scrape.BatchDelayMS) * time.Millisecond,
		})

		for _, f := range batch.Failed {
			zap.L().Warn("url failed",
				zap.String("url", f.URL),
				zap.String("error", f.Error),
				zap.Bool("retriable", f.Retriable),
			)
		}

		byURL := make(map[string][]model.ScrapingPass)
		var order []string
		for _, pass := range batch.Successful {
			if _, seen := byURL[pass.URL]; !seen {
				order = append(order, pass.URL)
			}
			byURL[pass.URL] = append(byURL[pass.URL], pass)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, u := range order {
			merged, err := merge.Merge(byURL[u], merge.DefaultOptions())
			if err != nil {
				zap.L().Warn("merge failed", zap.String("url", u), zap.Error(err))
				continue
			}
			if err := enc.Encode(merged); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}
