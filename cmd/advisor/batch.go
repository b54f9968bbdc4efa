package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/farm-advisor/internal/ingest"
)

func readAll(cmd *cobra.Command) ([]byte, error) {
	return io.ReadAll(cmd.InOrStdin())
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Scan every soil report image under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, stats, err := ingest.ListImages(args[0], true)
		if err != nil {
			return err
		}
		a, err := setup(cmd.Context(), flagJournal)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		ctx := cliContext(cmd)
		var found, empty, failed int
		for _, path := range files {
			res, _, err := a.Processor.ScanSoilFile(ctx, path)
			name := filepath.Base(path)
			switch {
			case err != nil:
				failed++
				fmt.Fprintf(out, "FAIL  %s: %v\n", name, err)
			case !res.Success:
				empty++
				fmt.Fprintf(out, "NONE  %s: %s\n", name, res.Message)
			default:
				found++
				fmt.Fprintf(out, "OK    %s: %d value(s)\n", name, res.Found())
			}
		}
		fmt.Fprintf(out, "\nscanned=%d skipped=%d ok=%d no_values=%d failed=%d\n",
			stats.Matched, stats.Skipped, found, empty, failed)
		return nil
	},
}
