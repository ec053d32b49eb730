package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/sqlpilot/internal/catalog"
	"github.com/sells-group/sqlpilot/internal/db"
)

var schemaJSON bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Discover and print the target database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required (SQLPILOT_DATABASE_URL)")
		}
		pool, err := db.New(ctx, cfg.Database.URL, &cfg.Database.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		snap, err := catalog.New(pool).Snapshot(ctx)
		if err != nil {
			return err
		}

		if schemaJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		fmt.Println(snap.RenderTables())
		fmt.Println(snap.RenderForeignKeys())
		fmt.Printf("captured at %s\n", snap.CapturedAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "emit the snapshot as JSON")
	rootCmd.AddCommand(schemaCmd)
}
