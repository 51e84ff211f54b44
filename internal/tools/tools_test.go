package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegistryHasEveryCatalogTool(t *testing.T) {
	reg := DefaultRegistry()
	for _, id := range []string{"tag-generator", "keyword-research", "description-generator", "title-analyzer", "video-data"} {
		if _, ok := reg.Get(id); !ok {
			t.Fatalf("expected runner for %s", id)
		}
	}
	if _, ok := reg.Get("thumbnail-ai"); ok {
		t.Fatalf("expected no runner for unknown tool")
	}
	if got := len(reg.IDs()); got != 5 {
		t.Fatalf("expected 5 ids, got %d", got)
	}
}

func TestTagGenerator(t *testing.T) {
	out, err := TagGenerator{}.Run(context.Background(), Request{Input: "How to Bake Sourdough Bread at Home, Café style"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := out.(TagResult)
	if len(res.Tags) == 0 || res.Tags[0] != "bake sourdough bread home cafe style" {
		t.Fatalf("unexpected tags: %v", res.Tags)
	}
	for _, tag := range res.Tags {
		if tag == "how" || tag == "to" || tag == "at" {
			t.Fatalf("expected stop words removed, got %v", res.Tags)
		}
	}
	if len(res.Hashtags) != 3 || res.Hashtags[0] != "#bake" {
		t.Fatalf("unexpected hashtags: %v", res.Hashtags)
	}
	if res.TotalChars > maxTagChars {
		t.Fatalf("expected tag text within %d chars, got %d", maxTagChars, res.TotalChars)
	}
}

func TestRunnersRejectEmptyInput(t *testing.T) {
	for _, id := range DefaultRegistry().IDs() {
		runner, _ := DefaultRegistry().Get(id)
		if _, err := runner.Run(context.Background(), Request{Input: "   "}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", id, err)
		}
	}
}

func TestKeywordResearchPutsLongTailFirst(t *testing.T) {
	out, err := KeywordResearch{}.Run(context.Background(), Request{Input: "Drone Photography"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := out.(KeywordResult)
	if res.Count != len(res.Keywords) || res.Count != 10 {
		t.Fatalf("expected 10 keywords, got %d", res.Count)
	}
	if res.Keywords[0].Competition != "low" || res.Keywords[len(res.Keywords)-1].Phrase != "drone photography" {
		t.Fatalf("unexpected ordering: %+v", res.Keywords)
	}
}

func TestDescriptionGeneratorTitleCases(t *testing.T) {
	out, err := DescriptionGenerator{}.Run(context.Background(), Request{
		Input:   "budget travel in japan",
		Options: map[string]string{"keywords": "rail pass", "channel": "Wanderlog"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := out.(DescriptionResult)
	if res.Title != "Budget Travel In Japan" {
		t.Fatalf("expected title cased title, got %q", res.Title)
	}
	if !strings.Contains(res.Description, "rail") || !strings.Contains(res.Description, "Subscribe to Wanderlog") {
		t.Fatalf("unexpected description: %s", res.Description)
	}
}

func TestTitleAnalyzerScores(t *testing.T) {
	good, _ := TitleAnalyzer{}.Run(context.Background(), Request{Input: "The 7 Best Budget Cameras for YouTube Beginners in 2026"})
	weak, _ := TitleAnalyzer{}.Run(context.Background(), Request{Input: "MY CAMERA VIDEO"})
	g, w := good.(TitleReport), weak.(TitleReport)
	if g.Score != 100 || len(g.Suggestions) != 0 {
		t.Fatalf("expected perfect score, got %+v", g)
	}
	if w.Score >= g.Score || len(w.Suggestions) != 4 {
		t.Fatalf("expected weak title to score lower with suggestions, got %+v", w)
	}
}

func TestParseVideoID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=43", "dQw4w9WgXcQ", true},
		{"youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://m.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://vimeo.com/dQw4w9WgXcQ", "", false},
		{"https://www.youtube.com/watch?v=short", "", false},
		{"not a video", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseVideoID(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseVideoID(%q): expected (%q,%v), got (%q,%v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}

func TestDescribeVideo(t *testing.T) {
	info := DescribeVideo("dQw4w9WgXcQ")
	if info.EmbedURL != "https://www.youtube.com/embed/dQw4w9WgXcQ" || len(info.Thumbnails) != 5 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.Thumbnails[4].URL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg" {
		t.Fatalf("unexpected thumbnail url %s", info.Thumbnails[4].URL)
	}
}
