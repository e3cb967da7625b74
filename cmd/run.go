package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/stream"
)

var runName string

var runCmd = &cobra.Command{
	Use:   "run <domain>",
	Short: "Create a session for a domain and run the full pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		domain := args[0]
		name := runName
		if name == "" {
			name = domain
		}

		sess, err := e.Store.Create(cmd.Context(), name, domain)
		if err != nil {
			return err
		}
		zap.L().Info("session created",
			zap.String("session_id", sess.ID),
			zap.String("domain", domain),
		)

		result, err := e.Pipeline.Run(cmd.Context(), sess.ID, stream.Logging())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "session name (defaults to the domain)")
	rootCmd.AddCommand(runCmd)
}
