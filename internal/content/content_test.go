package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/services/llm"
)

type fakeGenerator struct {
	reply        llm.Generated
	err          error
	instructions string
	transcript   string
}

func (f *fakeGenerator) Generate(_ context.Context, instructions, transcript string) (llm.Generated, error) {
	f.instructions = instructions
	f.transcript = transcript
	return f.reply, f.err
}

func TestTruncateWords(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "word"
	}
	got := TruncateWords(strings.Join(words, " "), 50)
	if n := len(strings.Fields(got)); n > 51 {
		t.Fatalf("got %d tokens", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis, got %q", got[len(got)-10:])
	}
	if short := TruncateWords("just a few words", 50); short != "just a few words" {
		t.Fatalf("short text changed: %q", short)
	}
}

func TestNormalizeCategories(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty response", nil, []string{DefaultCategory}},
		{"blanks only", []string{"", "   "}, []string{DefaultCategory}},
		{"aliases and dedupe", []string{"sci-fi", "Science Fiction", "self help"}, []string{"Science Fiction", "Self-Help"}},
		{"title case fallback", []string{"space opera", "COZY mystery"}, []string{"Space Opera", "Cozy Mystery"}},
		{"capped at three", []string{"fantasy", "horror", "romance", "history"}, []string{"Fantasy", "Horror", "Romance"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeCategories(tc.in)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			if len(got) < 1 || len(got) > 3 {
				t.Fatalf("category count out of range: %v", got)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	transcript := strings.Repeat("The dragon guarded the mountain treasure. ", 4) +
		strings.Repeat("Knights travelled there. ", 3) + "A lonely wizard appeared once."
	got := ExtractKeywords(transcript, []string{"Fantasy", "Epic Adventure"})

	want := map[string]bool{"dragon": true, "guarded": true, "mountain": true, "treasure": true, "knights": true, "travelled": true, "epic adventure": true}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for _, kw := range got {
		if !want[kw] {
			t.Fatalf("unexpected keyword %q in %v", kw, got)
		}
	}
	if got[len(got)-1] != "epic adventure" {
		t.Fatalf("category keyword should come last: %v", got)
	}
}

func TestExtractKeywordsCapsAtEight(t *testing.T) {
	var b strings.Builder
	for _, w := range []string{"alpha", "bravo", "charlie", "delta", "echoes", "foxtrot", "golfer", "hotel", "india", "juliet", "kilos"} {
		b.WriteString(strings.Repeat(w+" ", 3))
	}
	got := ExtractKeywords(b.String(), []string{"Science Fiction"})
	if len(got) != 8 {
		t.Fatalf("expected 8 keywords, got %d: %v", len(got), got)
	}
	seen := map[string]bool{}
	for _, kw := range got {
		if seen[kw] {
			t.Fatalf("duplicate keyword %q", kw)
		}
		seen[kw] = true
	}
}

func TestConfidence(t *testing.T) {
	long := strings.Repeat("x", 700)
	if got := Confidence(1.0, long, []string{"A", "B"}); got != 1.0 {
		t.Fatalf("got %v, want clamp to 1", got)
	}
	if got := Confidence(0, "short", []string{"A"}); got != 0.5 {
		t.Fatalf("got %v, want 0.5", got)
	}
	if got := Confidence(1.0, strings.Repeat("x", 500), []string{"A"}); got < 0.899 || got > 0.901 {
		t.Fatalf("got %v, want 0.9", got)
	}
}

func TestExcerptCoversOpeningAndMiddle(t *testing.T) {
	var sentences []string
	for i := 0; i < 100; i++ {
		sentences = append(sentences, "Sentence number "+strings.Repeat("x", 20)+" "+string(rune('A'+i%26))+".")
	}
	text := strings.Join(sentences, " ")
	got := Excerpt(text, 1000)
	if len(got) > 1000 {
		t.Fatalf("excerpt is %d bytes", len(got))
	}
	if !strings.HasPrefix(got, sentences[0]) {
		t.Fatalf("excerpt should start at the opening")
	}

	short := Excerpt(strings.Repeat("nopunctuation ", 500), 100)
	if len(short) > 100 || short == "" {
		t.Fatalf("prefix fallback failed: %q", short)
	}
	if Excerpt("Tiny text.", 100) != "Tiny text." {
		t.Fatal("short text should be returned whole")
	}
}

func TestServiceGenerate(t *testing.T) {
	gen := &fakeGenerator{reply: llm.Generated{
		Description:  strings.Repeat("lovely ", 20),
		Summary:      "A summary.",
		Categories:   []string{},
		PromptTokens: 120,
	}}
	svc := NewService(gen, Options{MaxDescriptionWords: 10, Tone: config.ToneCasual, PreferredCategories: []string{"Fantasy"}}, logging.NewNop())

	res, err := svc.Generate(context.Background(), Request{
		Title:           "The Hobbit",
		Author:          "J.R.R. Tolkien",
		Transcript:      "In a hole in the ground there lived a hobbit.",
		DurationSeconds: 600,
		Confidence:      1.0,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(strings.Fields(res.Description)) != 10 || !strings.HasSuffix(res.Description, "...") {
		t.Fatalf("description not truncated: %q", res.Description)
	}
	if len(res.Categories) != 1 || res.Categories[0] != DefaultCategory {
		t.Fatalf("categories = %v", res.Categories)
	}
	if res.Keywords == nil || len(res.Keywords) != 0 {
		t.Fatalf("keywords disabled should yield empty list, got %#v", res.Keywords)
	}
	if !strings.Contains(gen.instructions, "The Hobbit") || !strings.Contains(gen.instructions, "10 minutes") {
		t.Fatalf("context missing from instructions: %s", gen.instructions)
	}
	if !strings.Contains(gen.instructions, "Prefer these categories when they fit: Fantasy") {
		t.Fatalf("preferred categories hint missing")
	}
	if !strings.Contains(gen.instructions, "conversational") {
		t.Fatalf("tone instruction missing")
	}
}

func TestServiceWrapsClientFailure(t *testing.T) {
	cause := services.Wrap(services.ErrInvalidResponse, "llm", "parse content", "reply has no summary", nil)
	svc := NewService(&fakeGenerator{err: cause}, Options{}, logging.NewNop())
	_, err := svc.Generate(context.Background(), Request{Transcript: "Some words."})
	if !errors.Is(err, services.ErrContentGeneration) || !errors.Is(err, services.ErrInvalidResponse) {
		t.Fatalf("expected wrapped content generation failure, got %v", err)
	}
}

func TestLengthsCountCharactersNotBytes(t *testing.T) {
	// 300 characters, 600 bytes.
	accented := strings.Repeat("é", 300)
	if got := Confidence(0, accented, []string{"A"}); got != 0.5 {
		t.Fatalf("got %v, want 0.5 for a 300 character description", got)
	}

	whole := strings.Repeat("ü", 90)
	if Excerpt(whole, 100) != whole {
		t.Fatal("90 characters fit a 100 character budget")
	}

	text := strings.Repeat("übergröße ", 50)
	got := Excerpt(text, 100)
	n := utf8.RuneCountInString(got)
	if !utf8.ValidString(got) || n > 100 || n <= 50 {
		t.Fatalf("excerpt has %d characters: %q", n, got)
	}
	if strings.HasSuffix(got, "übergr") {
		t.Fatalf("excerpt split a word: %q", got)
	}
}
