package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sqlpilot/internal/catalog"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive question loop",
	Long:  "Reads questions from stdin until \"exit\". Type \"refresh\" to rediscover the schema after a migration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Discover up front so the first question is not the one that
		// surfaces a connectivity problem.
		if _, err := env.Catalog.Snapshot(ctx); err != nil {
			return err
		}

		fmt.Println("sqlpilot ready. Ask a question, or type \"exit\" to quit.")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())

			switch {
			case line == "":
				continue
			case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
				return nil
			case strings.EqualFold(line, "refresh"):
				if _, err := env.Catalog.Refresh(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
					continue
				}
				fmt.Println("schema refreshed")
				continue
			}

			result, runErr := env.Agent.Run(ctx, line)
			if result == nil {
				// Validation, discovery, or cancellation failed before
				// any attempt. Discovery failures end the session; the
				// rest just report and re-prompt.
				var de *catalog.DiscoveryError
				if errors.As(runErr, &de) || ctx.Err() != nil {
					return runErr
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
				continue
			}
			formatResult(os.Stdout, result)
			fmt.Println()
		}
		if err := scanner.Err(); err != nil {
			zap.L().Warn("stdin read failed", zap.Error(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
