// Package report exports job listings as spreadsheets for offline review.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"lectern/internal/api"
	"lectern/internal/catalog"
)

const (
	jobsSheet    = "Jobs"
	summarySheet = "Summary"
)

var jobColumns = []string{
	"ID", "Audiobook", "Status", "Progress", "Phase", "Error",
	"Run Attempts", "Retries", "Created", "Updated", "Completed",
}

// WriteJobsWorkbook writes an xlsx workbook with one row per job and a
// summary sheet of counts per status.
func WriteJobsWorkbook(w io.Writer, jobs []api.Job, counts map[string]int) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), jobsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, jobsSheet, 1, toCells(jobColumns)); err != nil {
		return err
	}
	for i, job := range jobs {
		row := []any{
			job.ID,
			job.AudiobookID,
			job.Status,
			job.Progress,
			metaString(job.Metadata, catalog.MetaPhase),
			job.ErrorMessage,
			metaNumber(job.Metadata, catalog.MetaRunAttempts),
			metaNumber(job.Metadata, catalog.MetaRetryCount),
			job.CreatedAt,
			job.UpdatedAt,
			job.CompletedAt,
		}
		if err := writeRow(f, jobsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(jobsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	if err := writeRow(f, summarySheet, 1, []any{"Status", "Jobs"}); err != nil {
		return err
	}
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	total := 0
	for i, status := range statuses {
		total += counts[status]
		if err := writeRow(f, summarySheet, i+2, []any{status, counts[status]}); err != nil {
			return err
		}
	}
	if err := writeRow(f, summarySheet, len(statuses)+2, []any{"total", total}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaNumber(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
