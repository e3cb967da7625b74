package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/company-intel/internal/extract"
	"github.com/sells-group/company-intel/internal/model"
)

var extractCmd = &cobra.Command{
	Use:   "extract <session-id>",
	Short: "Re-run category extraction over a session's stored pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		sess, err := e.Store.Get(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "loading session")
		}
		data, err := sess.DataMap()
		if err != nil {
			return eris.Wrap(err, "decoding session data")
		}
		blob, ok := data["merged"]
		if !ok {
			return eris.Errorf("session %s has no stored pages; run the pipeline first", sess.ID)
		}

		var merged []model.MergedScrapingData
		if err := json.Unmarshal(blob, &merged); err != nil {
			return eris.Wrap(err, "decoding stored pages")
		}

		pages := make(map[string]extract.PagePayload, len(merged))
		for _, m := range merged {
			pages[m.URL] = extract.PagePayload{
				Markdown: m.Content,
				Text:     m.Text,
				HTML:     m.HTML,
				Schema:   m.StructuredData,
			}
		}

		extractor, err := buildExtractor()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(extractor.Extract(pages))
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
