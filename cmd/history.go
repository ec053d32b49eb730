package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sqlpilot/internal/model"
	"github.com/sells-group/sqlpilot/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past questions from the interaction log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		tier, _ := cmd.Flags().GetString("tier")
		mdl, _ := cmd.Flags().GetString("model")
		failures, _ := cmd.Flags().GetBool("failures")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		recs, err := st.ListRecords(ctx, store.RecordFilter{
			Tier:         tier,
			Model:        mdl,
			OnlyFailures: failures,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		formatHistory(os.Stdout, recs)
		return nil
	},
}

func init() {
	historyCmd.Flags().String("tier", "", "filter by complexity tier (simple, medium, hard)")
	historyCmd.Flags().String("model", "", "filter by model ID")
	historyCmd.Flags().Bool("failures", false, "only show failed cycles")
	historyCmd.Flags().Int("limit", 50, "max number of records to display")
	historyCmd.Flags().Bool("json", false, "emit records as JSON")
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes a tabular list of interaction log records to w.
func formatHistory(out io.Writer, recs []model.QueryRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWHEN\tTIER\tATTEMPTS\tROWS\tOK\tQUESTION")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t--------\t----\t--\t--------")

	for _, r := range recs {
		ok := "yes"
		if !r.Success {
			ok = "no"
		}
		question := r.Question
		if len(question) > 50 {
			question = question[:47] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Timestamp.Format("2006-01-02 15:04"),
			r.Tier,
			r.Attempts,
			r.RowCount,
			ok,
			question,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
