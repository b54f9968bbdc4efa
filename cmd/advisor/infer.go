package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/farm-advisor/internal/yield"
)

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Read pH and N/P/K values from a soil report photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), flagJournal)
		if err != nil {
			return err
		}
		defer a.Close()
		data, err := readImageArg(args[0])
		if err != nil {
			return err
		}
		res, _, err := a.Processor.ScanSoil(cliContext(cmd), args[0], data)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var yieldQuery yield.Query

var yieldCmd = &cobra.Command{
	Use:   "yield",
	Short: "Estimate crop production for a field",
	Long: `Estimate crop production from field conditions.
Pass the values as flags, or a JSON query with --json (use - for stdin).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := yieldQuery
		if src, _ := cmd.Flags().GetString("json"); src != "" {
			var (
				raw []byte
				err error
			)
			if src == "-" {
				raw, err = readAll(cmd)
			} else {
				raw, err = os.ReadFile(src)
			}
			if err != nil {
				return err
			}
			if q, err = yield.DecodeQuery(raw); err != nil {
				return err
			}
		}
		a, err := setup(cmd.Context(), flagJournal)
		if err != nil {
			return err
		}
		defer a.Close()
		res, _, err := a.Processor.PredictYield(cliContext(cmd), q)
		if err != nil {
			return err
		}
		if textOnly, _ := cmd.Flags().GetBool("text"); textOnly {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(res.Recommendations, "\n"))
			return nil
		}
		return printJSON(cmd, res)
	},
}

func init() {
	f := yieldCmd.Flags()
	f.StringVar(&yieldQuery.Crop, "crop", "", "crop name, e.g. Rice")
	f.StringVar(&yieldQuery.Region, "region", "India", "region the model was fitted on")
	f.Float64Var(&yieldQuery.RainfallMM, "rainfall", 0, "average rainfall (mm)")
	f.Float64Var(&yieldQuery.TemperatureC, "temperature", 0, "average temperature (°C)")
	f.Float64Var(&yieldQuery.HumidityPct, "humidity", 0, "relative humidity (%)")
	f.Float64Var(&yieldQuery.PH, "ph", 7, "soil pH")
	f.Float64Var(&yieldQuery.Nitrogen, "n", 0, "nitrogen (kg/ha)")
	f.Float64Var(&yieldQuery.Phosphorus, "p", 0, "phosphorus (kg/ha)")
	f.Float64Var(&yieldQuery.Potassium, "k", 0, "potassium (kg/ha)")
	f.Float64Var(&yieldQuery.AreaHectares, "area", 0, "field area (hectares)")
	f.String("json", "", "read the query from a JSON file, - for stdin")
	f.Bool("text", false, "print only the recommendation lines")
}

var diseaseCmd = &cobra.Command{
	Use:   "disease <image>",
	Short: "Diagnose a plant disease from a leaf photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), flagJournal)
		if err != nil {
			return err
		}
		defer a.Close()
		data, err := readImageArg(args[0])
		if err != nil {
			return err
		}
		res, _, err := a.Processor.PredictDisease(cliContext(cmd), args[0], data)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var qualityCmd = &cobra.Command{
	Use:   "quality <image>",
	Short: "Check whether a photo is sharp and well lit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), flagJournal)
		if err != nil {
			return err
		}
		defer a.Close()
		data, err := readImageArg(args[0])
		if err != nil {
			return err
		}
		v, _, err := a.Processor.CheckQuality(cliContext(cmd), args[0], data)
		if err != nil {
			return err
		}
		return printJSON(cmd, v)
	},
}

var adviceCmd = &cobra.Command{
	Use:   "advice <city>",
	Short: "Weather-based farming advice for a city",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Advisor == nil {
			return fmt.Errorf("weather advice needs OPENWEATHER_API_KEY")
		}
		adv, err := a.Advisor.Advice(cliContext(cmd), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printJSON(cmd, adv)
	},
}
