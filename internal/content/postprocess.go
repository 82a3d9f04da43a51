package content

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxCategories     = 3
	DefaultCategory   = "General Interest"
	maxKeywords       = 8
	keywordCandidates = 10
	keywordMinCount   = 3
	keywordMinLength  = 5
)

var categoryAliases = map[string]string{
	"sci-fi":             "Science Fiction",
	"scifi":              "Science Fiction",
	"sf":                 "Science Fiction",
	"science fiction":    "Science Fiction",
	"fantasy":            "Fantasy",
	"mystery":            "Mystery",
	"mysteries":          "Mystery",
	"thriller":           "Thriller",
	"thrillers":          "Thriller",
	"suspense":           "Thriller",
	"romance":            "Romance",
	"horror":             "Horror",
	"history":            "History",
	"historical":         "Historical Fiction",
	"historical fiction": "Historical Fiction",
	"biography":          "Biography & Memoir",
	"memoir":             "Biography & Memoir",
	"autobiography":      "Biography & Memoir",
	"self help":          "Self-Help",
	"self-help":          "Self-Help",
	"selfhelp":           "Self-Help",
	"personal growth":    "Self-Help",
	"business":           "Business",
	"finance":            "Business",
	"nonfiction":         "Nonfiction",
	"non-fiction":        "Nonfiction",
	"non fiction":        "Nonfiction",
	"ya":                 "Young Adult",
	"young adult":        "Young Adult",
	"kids":               "Children's",
	"children":           "Children's",
	"childrens":          "Children's",
	"children's":         "Children's",
	"true crime":         "True Crime",
	"literary fiction":   "Literary Fiction",
	"fiction":            "Fiction",
	"poetry":             "Poetry",
	"science":            "Science",
	"philosophy":         "Philosophy",
	"religion":           "Religion & Spirituality",
	"spirituality":       "Religion & Spirituality",
	"health":             "Health & Wellness",
	"wellness":           "Health & Wellness",
	"comedy":             "Comedy",
	"humor":              "Comedy",
	"humour":             "Comedy",
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`about above after again against along among another around
		because before behind being below beneath beside between beyond could didn't doesn't
		during either enough every everything first found going great having other others
		their theirs there these thing things think those though three through together under
		until upon where whether which while whose without would wouldn't yourself really
		something someone little never always should shall still might maybe since another
		right going just there's that's we're they're couldn't shouldn't cannot`) {
		stopwords[w] = struct{}{}
	}
}

// TruncateWords keeps at most maxWords words, appending "..." when text was cut.
func TruncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if maxWords <= 0 || len(words) <= maxWords {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// NormalizeCategories canonicalizes, deduplicates and caps categories. The
// result always has between one and three entries.
func NormalizeCategories(raw []string) []string {
	title := cases.Title(language.Und)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, maxCategories)
	for _, category := range raw {
		cleaned := strings.Join(strings.Fields(category), " ")
		if cleaned == "" {
			continue
		}
		name, ok := categoryAliases[strings.ToLower(cleaned)]
		if !ok {
			name = title.String(strings.ToLower(cleaned))
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
		if len(out) == maxCategories {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, DefaultCategory)
	}
	return out
}

// ExtractKeywords picks frequent significant words from the transcript and
// adds multi-word category names. The list is deduplicated and capped at eight.
func ExtractKeywords(transcript string, categories []string) []string {
	counts := make(map[string]int)
	for _, token := range strings.FieldsFunc(strings.ToLower(transcript), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	}) {
		word := strings.Trim(token, "'-")
		if utf8.RuneCountInString(word) < keywordMinLength {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		counts[word]++
	}

	type entry struct {
		word  string
		count int
	}
	var frequent []entry
	for word, count := range counts {
		if count >= keywordMinCount {
			frequent = append(frequent, entry{word, count})
		}
	}
	sort.Slice(frequent, func(i, j int) bool {
		if frequent[i].count != frequent[j].count {
			return frequent[i].count > frequent[j].count
		}
		return frequent[i].word < frequent[j].word
	})
	if len(frequent) > keywordCandidates {
		frequent = frequent[:keywordCandidates]
	}

	keywords := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{})
	add := func(word string) {
		if _, dup := seen[word]; dup || len(keywords) == maxKeywords {
			return
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	for _, e := range frequent {
		add(e.word)
	}
	for _, category := range categories {
		if strings.Contains(strings.TrimSpace(category), " ") {
			add(strings.ToLower(category))
		}
	}
	return keywords
}

// Confidence scores generated content between 0 and 1.
func Confidence(transcriptConfidence float64, description string, categories []string) float64 {
	score := 0.5 + transcriptConfidence*0.3
	chars := utf8.RuneCountInString(description)
	if chars > 400 {
		score += 0.1
	}
	if chars > 600 {
		score += 0.1
	}
	if len(categories) >= 2 {
		score += 0.1
	}
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
