package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxInputLen = 500
	maxTags     = 30
	maxTagChars = 500
)

// TagGenerator suggests video tags from a title or topic.
type TagGenerator struct{}

// TagResult is the tag generator output.
type TagResult struct {
	Tags       []string `json:"tags"`
	Hashtags   []string `json:"hashtags"`
	TotalChars int      `json:"total_chars"`
}

func (TagGenerator) ID() string { return idTagGenerator }

func (TagGenerator) Run(_ context.Context, req Request) (any, error) {
	input, errInput := requireInput(req, maxInputLen)
	if errInput != nil {
		return nil, errInput
	}
	kws := keywords(input)
	if len(kws) == 0 {
		return nil, fmt.Errorf("%w: no usable words", ErrInvalidInput)
	}

	seen := make(map[string]struct{})
	candidates := make([]string, 0, len(kws)*2+1)
	candidates = appendUnique(candidates, seen, strings.Join(kws, " "))
	for i := 0; i+1 < len(kws); i++ {
		candidates = appendUnique(candidates, seen, kws[i]+" "+kws[i+1])
	}
	for _, w := range kws {
		candidates = appendUnique(candidates, seen, w)
	}

	// YouTube caps the combined tag text at 500 characters.
	result := TagResult{Tags: make([]string, 0, len(candidates))}
	for _, tag := range candidates {
		if len(result.Tags) >= maxTags || result.TotalChars+len(tag) > maxTagChars {
			break
		}
		result.Tags = append(result.Tags, tag)
		result.TotalChars += len(tag)
	}
	for i, w := range kws {
		if i == 3 {
			break
		}
		result.Hashtags = append(result.Hashtags, "#"+w)
	}
	return result, nil
}

// KeywordResearch expands a seed phrase into search variations.
type KeywordResearch struct{}

// Keyword is one suggestion with a relative competition estimate.
type Keyword struct {
	Phrase      string `json:"phrase"`
	Words       int    `json:"words"`
	Competition string `json:"competition"`
}

// KeywordResult is the keyword research output.
type KeywordResult struct {
	Keywords []Keyword `json:"keywords"`
	Count    int       `json:"count"`
}

var (
	keywordPrefixes = []string{"how to", "best", "what is", "why"}
	keywordSuffixes = []string{"tutorial", "for beginners", "tips", "explained", "review"}
)

func (KeywordResearch) ID() string { return idKeywordResearch }

func (KeywordResearch) Run(_ context.Context, req Request) (any, error) {
	input, errInput := requireInput(req, 120)
	if errInput != nil {
		return nil, errInput
	}
	seed := strings.Join(words(input), " ")
	if seed == "" {
		return nil, fmt.Errorf("%w: no usable words", ErrInvalidInput)
	}

	seen := make(map[string]struct{})
	phrases := appendUnique(nil, seen, seed)
	for _, p := range keywordPrefixes {
		phrases = appendUnique(phrases, seen, p+" "+seed)
	}
	for _, s := range keywordSuffixes {
		phrases = appendUnique(phrases, seen, seed+" "+s)
	}

	out := make([]Keyword, 0, len(phrases))
	for _, p := range phrases {
		n := len(strings.Fields(p))
		out = append(out, Keyword{Phrase: p, Words: n, Competition: competitionFor(n)})
	}
	// Long-tail phrases first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Words > out[j].Words })
	return KeywordResult{Keywords: out, Count: len(out)}, nil
}

func competitionFor(wordCount int) string {
	switch {
	case wordCount >= 4:
		return "low"
	case wordCount >= 2:
		return "medium"
	default:
		return "high"
	}
}

// DescriptionGenerator drafts a video description from a title and keywords.
type DescriptionGenerator struct{}

// DescriptionResult is the description generator output.
type DescriptionResult struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

func (DescriptionGenerator) ID() string { return idDescriptionGenerator }

func (DescriptionGenerator) Run(_ context.Context, req Request) (any, error) {
	input, errInput := requireInput(req, maxInputLen)
	if errInput != nil {
		return nil, errInput
	}
	title := titleCaser(req.Language).String(input)
	kws := keywords(input)
	if extra := strings.TrimSpace(req.Options["keywords"]); extra != "" {
		seen := make(map[string]struct{}, len(kws))
		for _, k := range kws {
			seen[k] = struct{}{}
		}
		for _, k := range keywords(extra) {
			kws = appendUnique(kws, seen, k)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "In this video: %s.\n\n", title)
	if len(kws) > 0 {
		fmt.Fprintf(&b, "We cover %s.\n\n", joinHuman(kws, 5))
	}
	b.WriteString("Chapters:\n00:00 Intro\n")
	for i, k := range kws {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%02d:00 %s\n", i+1, titleCaser(req.Language).String(k))
	}
	if cta := strings.TrimSpace(req.Options["channel"]); cta != "" {
		fmt.Fprintf(&b, "\nSubscribe to %s for more.\n", cta)
	} else {
		b.WriteString("\nSubscribe for more.\n")
	}

	hashtags := make([]string, 0, 3)
	for i, k := range kws {
		if i == 3 {
			break
		}
		hashtags = append(hashtags, "#"+strings.ReplaceAll(k, " ", ""))
	}
	if len(hashtags) > 0 {
		b.WriteString("\n" + strings.Join(hashtags, " ") + "\n")
	}
	return DescriptionResult{Title: title, Description: b.String(), Hashtags: hashtags}, nil
}

func joinHuman(items []string, max int) string {
	if len(items) > max {
		items = items[:max]
	}
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// TitleAnalyzer scores a video title.
type TitleAnalyzer struct{}

// TitleReport is the title analyzer output.
type TitleReport struct {
	Title       string   `json:"title"`
	Length      int      `json:"length"`
	Words       int      `json:"words"`
	Score       int      `json:"score"`
	Suggestions []string `json:"suggestions"`
}

var powerWords = map[string]struct{}{
	"best": {}, "easy": {}, "secret": {}, "ultimate": {}, "proven": {}, "fast": {},
	"new": {}, "free": {}, "simple": {}, "complete": {}, "guide": {}, "why": {}, "how": {},
}

const (
	idealTitleMin = 40
	idealTitleMax = 70
	titleMax      = 100
)

func (TitleAnalyzer) ID() string { return idTitleAnalyzer }

func (TitleAnalyzer) Run(_ context.Context, req Request) (any, error) {
	title, errInput := requireInput(req, titleMax)
	if errInput != nil {
		return nil, errInput
	}
	ws := words(title)
	report := TitleReport{Title: title, Length: len([]rune(title)), Words: len(ws), Score: 40}

	switch {
	case report.Length >= idealTitleMin && report.Length <= idealTitleMax:
		report.Score += 25
	case report.Length < idealTitleMin:
		report.Suggestions = append(report.Suggestions, "Lengthen the title to at least "+strconv.Itoa(idealTitleMin)+" characters.")
	default:
		report.Suggestions = append(report.Suggestions, "Shorten the title to "+strconv.Itoa(idealTitleMax)+" characters so it is not truncated.")
	}

	hasNumber := strings.IndexFunc(title, unicode.IsDigit) >= 0
	if hasNumber {
		report.Score += 10
	} else {
		report.Suggestions = append(report.Suggestions, "Add a number, such as a year or a list count.")
	}

	hasPower := false
	for _, w := range ws {
		if _, ok := powerWords[w]; ok {
			hasPower = true
			break
		}
	}
	if hasPower {
		report.Score += 15
	} else {
		report.Suggestions = append(report.Suggestions, "Use a strong word such as \"best\", \"easy\" or \"guide\".")
	}

	if isShouting(title) {
		report.Score -= 15
		report.Suggestions = append(report.Suggestions, "Avoid writing the whole title in capitals.")
	} else {
		report.Score += 10
	}

	if report.Score < 0 {
		report.Score = 0
	}
	if report.Score > 100 {
		report.Score = 100
	}
	if report.Suggestions == nil {
		report.Suggestions = []string{}
	}
	return report, nil
}

func isShouting(s string) bool {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 8 && upper*10 >= letters*8
}
