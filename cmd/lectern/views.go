package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"lectern/internal/api"
	"lectern/internal/catalog"
)

func buildJobListRows(jobs []api.Job, colorize bool) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		phase, _ := job.Metadata[catalog.MetaPhase].(string)
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			strconv.FormatInt(job.AudiobookID, 10),
			formatJobStatus(job.Status, colorize),
			fmt.Sprintf("%d%%", job.Progress),
			phase,
			formatDisplayTime(job.UpdatedAt),
			truncate(job.ErrorMessage, 48),
		})
	}
	return rows
}

// buildStatusCountRows lists every known status in pipeline order, then any
// unknown ones alphabetically.
func buildStatusCountRows(counts map[string]int, colorize bool) [][]string {
	rows := make([][]string, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, status := range catalog.AllJobStatuses() {
		key := string(status)
		seen[key] = true
		rows = append(rows, []string{formatJobStatus(key, colorize), strconv.Itoa(counts[key])})
	}
	var extra []string
	for key := range counts {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(counts[key])})
	}
	return rows
}

func buildJobDetailRows(job api.Job) [][]string {
	rows := [][]string{
		{"ID", strconv.FormatInt(job.ID, 10)},
		{"Audiobook", strconv.FormatInt(job.AudiobookID, 10)},
		{"Type", job.JobType},
		{"Status", formatStatusLabel(job.Status)},
		{"Progress", fmt.Sprintf("%d%%", job.Progress)},
		{"Created", formatDisplayTime(job.CreatedAt)},
		{"Updated", formatDisplayTime(job.UpdatedAt)},
	}
	if job.CompletedAt != "" {
		rows = append(rows, []string{"Completed", formatDisplayTime(job.CompletedAt)})
	}
	if job.RunID != "" {
		rows = append(rows, []string{"Run", job.RunID}, []string{"Heartbeat", formatDisplayTime(job.LastHeartbeat)})
	}
	if job.ErrorMessage != "" {
		rows = append(rows, []string{"Error", job.ErrorMessage})
	}
	keys := make([]string, 0, len(job.Metadata))
	for key := range job.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		rows = append(rows, []string{"meta." + key, formatMetaValue(job.Metadata[key])})
	}
	return rows
}

func buildAudiobookRows(detail api.AudiobookDetail) [][]string {
	book := detail.Audiobook
	rows := [][]string{
		{"ID", strconv.FormatInt(book.ID, 10)},
		{"Title", book.Title},
		{"Author", book.Author},
		{"Status", formatStatusLabel(book.Status)},
		{"Size", formatBytes(book.FileSizeBytes)},
		{"Categories", strings.Join(book.Categories, ", ")},
		{"Keywords", strings.Join(book.Keywords, ", ")},
		{"Summary", book.AISummary},
		{"Description", truncate(book.Description, 200)},
	}
	if book.SignedURL != "" {
		rows = append(rows, []string{"Download", book.SignedURL})
	}
	if tr := detail.Transcription; tr != nil {
		rows = append(rows,
			[]string{"Words", strconv.Itoa(tr.WordCount)},
			[]string{"Duration", (time.Duration(tr.DurationSeconds * float64(time.Second))).Round(time.Second).String()},
			[]string{"Confidence", fmt.Sprintf("%.2f", tr.ConfidenceScore)},
		)
		if tr.LanguageName != "" {
			rows = append(rows, []string{"Language", fmt.Sprintf("%s (%s)", tr.LanguageName, tr.Language)})
		}
	}
	if job := detail.ActiveJob; job != nil {
		rows = append(rows, []string{"Active job", fmt.Sprintf("#%d %s %d%%", job.ID, job.Status, job.Progress)})
	}
	return rows
}

func buildAudiobookListRows(books []api.Audiobook) [][]string {
	rows := make([][]string, 0, len(books))
	for _, book := range books {
		rows = append(rows, []string{
			strconv.FormatInt(book.ID, 10),
			truncate(book.Title, 40),
			truncate(book.Author, 30),
			formatStatusLabel(book.Status),
			formatBytes(book.FileSizeBytes),
			strings.Join(book.Categories, ", "),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatMetaValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+"="+formatMetaValue(v[key]))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
