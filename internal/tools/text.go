package tools

import (
	"strings"
	"unicode"

	"github.com/tubekit/tubekit-server/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "my": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "this": {}, "to": {}, "with": {}, "you": {}, "your": {},
}

// foldWord lowercases s and strips diacritics so "Café" and "cafe" match.
func foldWord(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, errTransform := transform.String(t, s)
	if errTransform != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// words splits text into folded words, dropping punctuation.
func words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := foldWord(strings.Trim(f, "'")); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// keywords drops stop words and duplicates, keeping first-seen order.
func keywords(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, w := range words(text) {
		if _, stop := stopWords[w]; stop || len([]rune(w)) < 2 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func titleCaser(lang string) cases.Caser {
	tag, errParse := language.Parse(strings.TrimSpace(lang))
	if errParse != nil {
		tag = language.English
	}
	return cases.Title(tag)
}

func appendUnique(list []string, seen map[string]struct{}, v string) []string {
	if _, ok := seen[v]; ok || v == "" {
		return list
	}
	seen[v] = struct{}{}
	return append(list, v)
}

// Tool IDs for runners, matching the seeded catalog.
const (
	idTagGenerator         = models.ToolTagGenerator
	idKeywordResearch      = models.ToolKeywordResearch
	idDescriptionGenerator = models.ToolDescriptionGenerator
	idTitleAnalyzer        = models.ToolTitleAnalyzer
	idVideoData            = models.ToolVideoData
)
