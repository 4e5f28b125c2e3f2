package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"
)

func TestCompositeScore(t *testing.T) {
	cases := []struct {
		h, c, r, s float64
		want       int
	}{
		{85, 70, 90, 80, 81},
		{100, 100, 100, 100, 100},
		{0, 0, 0, 0, 0},
		{50, 50, 50, 55, 51}, // 50.5 rounds up
		{150, -20, 100, 100, 70},
		{1.4, 0, 0, 0, 1},          // 0.56 rounds once, not per sub-score
		{49.4, 49.4, 0, 0, 35},     // 34.58
		{84.6, 70.2, 90.1, 80, 81}, // 80.92
	}
	for _, tc := range cases {
		if got := CompositeScore(tc.h, tc.c, tc.r, tc.s); got != tc.want {
			t.Fatalf("CompositeScore(%v,%v,%v,%v) = %d, want %d", tc.h, tc.c, tc.r, tc.s, got, tc.want)
		}
	}
}

func TestParseVerdictsFromProse(t *testing.T) {
	text := `Here are my scores, as requested:
[
  {"id": "a", "humor": 85, "creativity": 70, "relevance": 90, "savagery": 80, "total": 99, "feedback": "Solid."},
  {"id": "b", "humor": 0, "creativity": 0, "relevance": 0, "savagery": 0, "total": 0, "feedback": "disqualified"},
  {"id": "c", "disqualified": true},
  {"humor": 10, "creativity": 10, "relevance": 10, "savagery": 10},
  {"id": "d", "feedback": "no scores"}
]
Hope that helps [really].`
	got, err := ParseVerdicts(text)
	if err == nil {
		t.Fatalf("trailing bracket text should make the span invalid JSON")
	}
	if !errors.Is(err, ErrScoringParse) {
		t.Fatalf("expected ErrScoringParse, got %v", err)
	}

	text = strings.TrimSuffix(text, "Hope that helps [really].")
	got, err = ParseVerdicts(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 usable verdicts, got %d: %+v", len(got), got)
	}
	if got[0].EntryID != "a" || got[0].Composite() != 81 || got[0].Feedback != "Solid." {
		t.Fatalf("verdict a: %+v", got[0])
	}
	if !got[1].Disqualified || !got[2].Disqualified {
		t.Fatalf("b and c should be disqualified: %+v", got[1:])
	}
}

func TestParseVerdictsFailures(t *testing.T) {
	for _, text := range []string{
		"",
		"I refuse to judge these.",
		"] backwards [",
		`[{"id": "a", "humor": 85,}]`,
	} {
		if _, err := ParseVerdicts(text); !errors.Is(err, ErrScoringParse) {
			t.Fatalf("%q: expected ErrScoringParse, got %v", text, err)
		}
	}
	got, err := ParseVerdicts("[]")
	if err != nil || len(got) != 0 {
		t.Fatalf("empty array: %v %v", got, err)
	}
}

func TestBuildJudgePrompt(t *testing.T) {
	prompt := BuildJudgePrompt(JudgeRequest{
		Theme:   "Pirates",
		Entries: []JudgeEntry{{ID: "e1", Text: "arr you serious"}, {ID: "e2", Text: "walk the plank, joke"}},
	})
	for _, want := range []string{"THEME: Pirates", `[e1] Entry 1: "arr you serious"`, `[e2] Entry 2: "walk the plank, joke"`, "humor (40%)"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestAnthropicJudgeRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" || r.Header.Get("anthropic-version") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body["model"] != "test-model" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Path != "/v1/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"test-model","stop_reason":"end_turn","content":[
			{"type":"text","text":"Scores: [{\"id\":\"e1\",\"humor\":90,"},
			{"type":"text","text":"\"creativity\":90,\"relevance\":90,\"savagery\":90,\"feedback\":\"ok\"}]"}
		]}`))
	}))
	defer srv.Close()

	j := NewAnthropicJudge("k", "test-model", srv.URL, 5*time.Second)
	got, err := j.Judge(context.Background(), JudgeRequest{Theme: "t", Entries: []JudgeEntry{{ID: "e1", Text: "x"}}})
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(got) != 1 || got[0].EntryID != "e1" || got[0].Composite() != 90 {
		t.Fatalf("unexpected verdicts: %+v", got)
	}
}

func TestAnthropicJudgeUnavailable(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slow.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer failing.Close()

	req := JudgeRequest{Theme: "t", Entries: []JudgeEntry{{ID: "e1", Text: "x"}}}
	for name, j := range map[string]*AnthropicJudge{
		"timeout": NewAnthropicJudge("k", "", slow.URL, 50*time.Millisecond),
		"5xx":     NewAnthropicJudge("k", "", failing.URL, time.Second),
		"no key":  NewAnthropicJudge("", "", failing.URL, time.Second),
	} {
		if _, err := j.Judge(context.Background(), req); !errors.Is(err, ErrScoringUnavailable) {
			t.Fatalf("%s: expected ErrScoringUnavailable, got %v", name, err)
		}
	}
}

func TestResponseTextSkipsNonTextBlocks(t *testing.T) {
	var msg anthropic.Message
	body := `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"thinking","thinking":"[nope]","signature":"s"},{"type":"text","text":"[1]"}]}`
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := ResponseText(&msg); got != "[1]" {
		t.Fatalf("got %q", got)
	}
	if !gjson.Valid(ResponseText(&msg)) {
		t.Fatalf("expected valid JSON")
	}
	if ResponseText(nil) != "" {
		t.Fatalf("nil message should have no text")
	}
}

func TestParseVerdictsKeepsFractionalSubScores(t *testing.T) {
	got, err := ParseVerdicts(`[{"id":"a","humor":49.4,"creativity":49.4,"relevance":0,"savagery":0}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || got[0].Composite() != 35 || SubScore(got[0].Humor) != 49 {
		t.Fatalf("verdict: %+v composite=%d", got, got[0].Composite())
	}
	if SubScore(120) != 100 || SubScore(-3) != 0 || SubScore(70.5) != 71 {
		t.Fatalf("SubScore clamping/rounding wrong")
	}
}
