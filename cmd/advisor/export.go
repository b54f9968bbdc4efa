package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/utils"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the inference journal to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("out")
		kindStr, _ := cmd.Flags().GetString("kind")
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")

		var kind constants.InferenceKind
		if kindStr != "" {
			k, ok := constants.ParseInferenceKind(kindStr)
			if !ok {
				return fmt.Errorf("unknown kind %q", kindStr)
			}
			kind = k
		}
		from, to, err := utils.ParseDateWindow(fromStr, toStr)
		if err != nil {
			return err
		}

		a, err := setup(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		xlsx, err := a.Exporter.ExportInferencesXLSX(cmd.Context(), kind, from, to)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, xlsx, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(xlsx))
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.String("out", "inferences.xlsx", "output XLSX path")
	f.String("kind", "", "only this kind (SOIL_SCAN, YIELD, DISEASE, QUALITY)")
	f.String("from", "", "from date YYYY-MM-DD")
	f.String("to", "", "to date YYYY-MM-DD (inclusive)")
}
