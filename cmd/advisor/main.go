// Command advisor runs the farm advisor's inferences from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/farm-advisor/internal/app"
	"github.com/joseph-ayodele/farm-advisor/internal/common"
)

var (
	flagJournal bool
	flagStrict  bool
)

var rootCmd = &cobra.Command{
	Use:           "advisor",
	Short:         "Farm advisor inference tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJournal, "journal", false, "record inferences in the journal database (DB_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagStrict, "strict-quality", false, "reject disease photos that fail the quality gate")
	rootCmd.AddCommand(scanCmd, yieldCmd, diseaseCmd, qualityCmd, adviceCmd, batchCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", common.UserMessage(err))
		if _, ok := common.AsAppError(err); !ok {
			fmt.Fprintln(os.Stderr, "  ", err)
		}
		stop()
		os.Exit(1)
	}
}

// setup builds the app with logs on stderr so stdout stays machine-readable.
func setup(ctx context.Context, journal bool) (*app.App, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := common.NewLogger(os.Stderr, cfg.Log)
	return app.New(ctx, cfg, logger, app.Options{Journal: journal, StrictQuality: flagStrict})
}

func cliContext(cmd *cobra.Command) context.Context {
	ctx, _ := common.EnsureRequestID(common.WithSource(cmd.Context(), "cli"))
	return ctx
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readImageArg(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.InputError(fmt.Sprintf("Cannot read %s.", path), err)
	}
	return data, nil
}
