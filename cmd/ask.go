package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/sqlpilot/internal/model"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one natural-language question with SQL",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		question := strings.Join(args, " ")
		result, runErr := env.Agent.Run(ctx, question)
		if result == nil {
			return runErr
		}

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			return runErr
		}

		formatResult(os.Stdout, result)
		return runErr
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the full result as JSON")
	rootCmd.AddCommand(askCmd)
}

// formatResult writes a human-readable rendition of a pipeline result.
func formatResult(out io.Writer, r *model.PipelineResult) {
	fmt.Fprintf(out, "tier=%s model=%s attempts=%d\n", r.Tier, r.Model, len(r.Attempts))

	if sql := r.LastSQL(); sql != "" {
		fmt.Fprintf(out, "\n%s\n", sql)
	}

	if !r.Success() {
		fmt.Fprintf(out, "\nfailed: %s\n", r.LastErr)
		for _, a := range r.Attempts {
			if a.Err != "" {
				fmt.Fprintf(out, "  attempt %d: %s\n", a.Index, a.Err)
			}
		}
		return
	}

	if r.Outcome.Mutation {
		fmt.Fprintf(out, "\n%d row(s) affected\n", r.Outcome.RowCount)
		return
	}

	fmt.Fprintln(out)
	formatRows(out, r.Outcome)
	fmt.Fprintf(out, "(%d row(s))\n", r.Outcome.RowCount)
}

// formatRows writes a tabular result set.
func formatRows(out io.Writer, o *model.ExecutionOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(o.Columns, "\t"))

	seps := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		seps[i] = strings.Repeat("-", len(c))
	}
	_, _ = fmt.Fprintln(w, strings.Join(seps, "\t"))

	for _, row := range o.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprintf("%v", v)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}
