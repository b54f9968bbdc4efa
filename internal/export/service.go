package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/entity"
)

// JobLister is the journal read side the export needs.
type JobLister interface {
	List(ctx context.Context, f entity.InferenceFilter) ([]entity.InferenceJob, error)
}

// Service produces XLSX bytes for journal exports.
type Service struct {
	jobs   JobLister
	logger *slog.Logger
	now    func() time.Time
}

func NewService(jobs JobLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger, now: time.Now}
}

const (
	sheetInferences = "Inferences"
	sheetTotals     = "Totals"
	maxExportRows   = 100000
)

// ExportInferencesXLSX returns a workbook of journal rows for kind ("" for all) and a date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> everything.
func (s *Service) ExportInferencesXLSX(ctx context.Context, kind constants.InferenceKind, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	filter := entity.InferenceFilter{Kind: kind, Limit: maxExportRows}
	if from != nil {
		filter.From = dateOnly(*from)
	}
	if to != nil {
		filter.To = dateOnly(*to).AddDate(0, 0, 1)
	} else if from != nil {
		filter.To = dateOnly(s.now().UTC()).AddDate(0, 0, 1)
	}

	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query inference jobs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetInferences); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetTotals); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheetInferences)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Started (UTC)",
		"Kind",
		"Source",
		"Status",
		"Duration (ms)",
		"Summary",
		"Error",
		"Job ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetInferences, cell, h)
	}

	totals := map[constants.InferenceKind]map[constants.JobStatus]int{}
	row := 2
	for _, j := range jobs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetInferences, cell, v)
		}
		write(1, j.StartedAt.UTC().Format("2006-01-02 15:04:05"))
		write(2, string(j.Kind))
		write(3, j.Source)
		write(4, string(j.Status))
		if j.FinishedAt != nil {
			write(5, j.Duration().Milliseconds())
		}
		write(6, truncate(Summarize(j), 140))
		if j.ErrorMessage != nil {
			write(7, truncate(*j.ErrorMessage, 140))
		}
		write(8, j.ID.String())
		row++

		if totals[j.Kind] == nil {
			totals[j.Kind] = map[constants.JobStatus]int{}
		}
		totals[j.Kind][j.Status]++
	}

	_ = f.SetColWidth(sheetInferences, "A", "A", 20)
	_ = f.SetColWidth(sheetInferences, "B", "D", 12)
	_ = f.SetColWidth(sheetInferences, "E", "E", 14)
	_ = f.SetColWidth(sheetInferences, "F", "G", 48)
	_ = f.SetColWidth(sheetInferences, "H", "H", 38)

	writeTotals(f, totals)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"kind", string(kind),
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

var totalsStatuses = []constants.JobStatus{
	constants.JobStatusOK, constants.JobStatusNoValues, constants.JobStatusFailed, constants.JobStatusRunning,
}

func writeTotals(f *excelize.File, totals map[constants.InferenceKind]map[constants.JobStatus]int) {
	set := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheetTotals, cell, v)
	}
	set(1, 1, "Kind")
	for i, st := range totalsStatuses {
		set(i+2, 1, string(st))
	}
	row := 2
	for _, k := range constants.InferenceKinds {
		set(1, row, string(k))
		for i, st := range totalsStatuses {
			set(i+2, row, totals[k][st])
		}
		row++
	}
	_ = f.SetColWidth(sheetTotals, "A", "A", 14)
}

// Summarize renders a one-line description of a job's output.
func Summarize(j entity.InferenceJob) string {
	if len(j.Output) == 0 {
		return ""
	}
	var out map[string]any
	if err := json.Unmarshal(j.Output, &out); err != nil {
		return ""
	}
	switch j.Kind {
	case constants.KindSoilScan:
		var parts []string
		for _, f := range []struct{ key, label string }{
			{"ph", "pH"}, {"nitrogen", "N"}, {"phosphorus", "P"}, {"potassium", "K"},
		} {
			if v, ok := out[f.key].(float64); ok {
				parts = append(parts, fmt.Sprintf("%s %g", f.label, v))
			}
		}
		if len(parts) == 0 {
			msg, _ := out["message"].(string)
			return msg
		}
		return strings.Join(parts, ", ")
	case constants.KindYield:
		yph, _ := out["yield_per_hectare"].(float64)
		total, _ := out["total_yield"].(float64)
		return fmt.Sprintf("%.2f q/ha, total %.2f quintals", yph, total)
	case constants.KindDisease:
		plant, _ := out["plant"].(string)
		name, _ := out["disease"].(string)
		conf, _ := out["confidence"].(float64)
		return fmt.Sprintf("%s: %s (%.2f%%)", plant, name, conf)
	case constants.KindQuality:
		reason, _ := out["reason"].(string)
		return reason
	default:
		return ""
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
