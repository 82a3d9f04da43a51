package content

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"lectern/internal/config"
)

var toneInstructions = map[string]string{
	config.ToneProfessional: "Write in a polished, professional voice suitable for a bookstore listing.",
	config.ToneCasual:       "Write in a warm, conversational voice as if recommending the book to a friend.",
	config.ToneAcademic:     "Write in a measured, academic voice that emphasises themes and structure.",
	config.ToneMarketing:    "Write persuasive marketing copy that makes listeners want to press play.",
}

// BuildInstructions returns the system prompt for the requested tone.
func BuildInstructions(tone string, preferred []string) string {
	voice, ok := toneInstructions[tone]
	if !ok {
		voice = toneInstructions[config.ToneProfessional]
	}
	var b strings.Builder
	b.WriteString("You write catalog copy for an audiobook store. ")
	b.WriteString(voice)
	b.WriteString("\nRespond with a JSON object with exactly these fields:\n")
	b.WriteString(`  "description": a compelling description of several paragraphs,` + "\n")
	b.WriteString(`  "summary": a one or two sentence summary,` + "\n")
	b.WriteString(`  "categories": up to three genre or subject categories as strings.` + "\n")
	b.WriteString("Base everything on the transcript excerpt supplied by the user. Do not invent plot details.")
	var hints []string
	for _, c := range preferred {
		if c = strings.TrimSpace(c); c != "" {
			hints = append(hints, c)
		}
	}
	if len(hints) > 0 {
		b.WriteString("\nPrefer these categories when they fit: ")
		b.WriteString(strings.Join(hints, ", "))
		b.WriteString(".")
	}
	return b.String()
}

// BuildContext summarises what is known about the audiobook.
func BuildContext(req Request) string {
	lines := []string{"Audiobook details:"}
	if title := strings.TrimSpace(req.Title); title != "" {
		lines = append(lines, "Title: "+title)
	}
	if author := strings.TrimSpace(req.Author); author != "" {
		lines = append(lines, "Author: "+author)
	}
	if req.DurationSeconds > 0 {
		lines = append(lines, fmt.Sprintf("Duration: %d minutes", int(req.DurationSeconds/60+0.5)))
	}
	if req.WordCount > 0 {
		lines = append(lines, fmt.Sprintf("Transcript words: %d", req.WordCount))
	}
	lines = append(lines, fmt.Sprintf("Transcription confidence: %.0f%%", req.Confidence*100))
	return strings.Join(lines, "\n")
}

// Excerpt returns at most limit characters of text drawn from the opening ~30% of
// sentences and a ~30% window from the middle, so the prompt sees both the
// introduction and developed themes. When no sentence boundary is found it
// falls back to a plain prefix.
func Excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if limit <= 0 {
		limit = DefaultExcerptChars
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return cut(text, limit)
	}

	n := len(sentences)
	window := n * 30 / 100
	if window < 1 {
		window = 1
	}
	midStart := (n - window) / 2
	if midStart < window {
		midStart = window
	}
	midEnd := midStart + window
	if midEnd > n {
		midEnd = n
	}

	selected := append([]string{}, sentences[:window]...)
	selected = append(selected, sentences[midStart:midEnd]...)
	return cut(strings.Join(selected, " "), limit)
}

func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentence := strings.TrimSpace(text[start : i+1])
			if len(sentence) > 1 {
				out = append(out, sentence)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" && len(out) > 0 {
		out = append(out, tail)
	}
	return out
}

// cut trims s to at most limit characters, preferring a word boundary.
func cut(s string, limit int) string {
	end, n := len(s), 0
	for i := range s {
		if n == limit {
			end = i
			break
		}
		n++
	}
	if end == len(s) {
		return s
	}
	if idx := strings.LastIndexByte(s[:end], ' '); idx > 0 && utf8.RuneCountInString(s[:idx]) > limit/2 {
		end = idx
	}
	return strings.TrimSpace(s[:end])
}
