package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

const (
	DefaultJudgeURL   = "https://api.anthropic.com/"
	DefaultJudgeModel = "claude-sonnet-4-20250514"
	judgeMaxTokens    = 2048
)

const judgePrompt = `You are judging a roast battle. You have heard every joke twice and laugh at few of them.

THEME: %s

ENTRIES:
%s

Score every entry from 0 to 100 in four categories:
- humor (40%%): would a room actually laugh?
- creativity (30%%): is the angle original or surprising?
- relevance (20%%): does it hit the theme directly?
- savagery (10%%): how hard does it land?

Reply with a JSON array only, one object per entry:
[{"id": "<entry id>", "humor": 0, "creativity": 0, "relevance": 0, "savagery": 0, "total": 0, "feedback": "one short line"}]

Rules:
- 50 is average, 70 is good, 85 and above is exceptional.
- Generic lines that would fit any theme score low.
- Entries containing hate speech, slurs or threats get every score 0, "disqualified": true and feedback "disqualified".`

// JudgeEntry is one submission shown to the judge.
type JudgeEntry struct {
	ID   string
	Text string
}

type JudgeRequest struct {
	Theme   string
	Entries []JudgeEntry
}

// JudgeVerdict is the judge's structured opinion on one entry. Sub-scores are
// kept as the judge sent them and clamped to [0,100] when used.
type JudgeVerdict struct {
	EntryID      string
	Humor        float64
	Creativity   float64
	Relevance    float64
	Savagery     float64
	Feedback     string
	Disqualified bool
}

// Composite is the weighted score, rounded half up.
func (v JudgeVerdict) Composite() int {
	return CompositeScore(v.Humor, v.Creativity, v.Relevance, v.Savagery)
}

// Judge scores a batch of entries against a theme.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) ([]JudgeVerdict, error)
}

// AnthropicJudge calls the Anthropic Messages API through the official SDK.
type AnthropicJudge struct {
	APIKey string
	Model  string
	client anthropic.Client
}

// NewAnthropicJudge builds a judge against baseURL (DefaultJudgeURL when empty).
// The SDK's own retries are off; the scoring queue owns the retry policy.
func NewAnthropicJudge(apiKey, model, baseURL string, timeout time.Duration) *AnthropicJudge {
	if model == "" {
		model = DefaultJudgeModel
	}
	if baseURL == "" {
		baseURL = DefaultJudgeURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicJudge{
		APIKey: apiKey,
		Model:  model,
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(0),
		),
	}
}

func (j *AnthropicJudge) Judge(ctx context.Context, req JudgeRequest) ([]JudgeVerdict, error) {
	if j.APIKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not configured", ErrScoringUnavailable)
	}
	if len(req.Entries) == 0 {
		return nil, nil
	}

	msg, err := j.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(j.Model),
		MaxTokens: judgeMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildJudgePrompt(req))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: judge returned %d: %v", ErrScoringUnavailable, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	return ParseVerdicts(ResponseText(msg))
}

// BuildJudgePrompt renders the batch as "[id] Entry n: "text"" lines under the theme.
func BuildJudgePrompt(req JudgeRequest) string {
	lines := make([]string, 0, len(req.Entries))
	for i, e := range req.Entries {
		lines = append(lines, fmt.Sprintf("[%s] Entry %d: %q", e.ID, i+1, e.Text))
	}
	return fmt.Sprintf(judgePrompt, req.Theme, strings.Join(lines, "\n\n"))
}

// ResponseText concatenates the text blocks of a Messages API response.
func ResponseText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ParseVerdicts pulls the JSON array out of free text (first '[' to last ']')
// and decodes one verdict per well-formed element. Elements without an id or
// sub-scores are dropped; the entries they refer to stay unscored.
func ParseVerdicts(text string) ([]JudgeVerdict, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in judge response", ErrScoringParse)
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: judge response array is not valid JSON", ErrScoringParse)
	}
	arr := gjson.Parse(raw)
	if !arr.IsArray() {
		return nil, fmt.Errorf("%w: judge response is not an array", ErrScoringParse)
	}

	var verdicts []JudgeVerdict
	arr.ForEach(func(_, item gjson.Result) bool {
		v, ok := parseVerdict(item)
		if ok {
			verdicts = append(verdicts, v)
		}
		return true
	})
	return verdicts, nil
}

func parseVerdict(item gjson.Result) (JudgeVerdict, bool) {
	if !item.IsObject() {
		return JudgeVerdict{}, false
	}
	id := strings.TrimSpace(item.Get("id").String())
	if id == "" {
		return JudgeVerdict{}, false
	}
	feedback := strings.TrimSpace(item.Get("feedback").String())
	disqualified := item.Get("disqualified").Bool() || strings.EqualFold(feedback, "disqualified")
	if disqualified {
		return JudgeVerdict{EntryID: id, Feedback: feedback, Disqualified: true}, true
	}

	fields := [4]string{"humor", "creativity", "relevance", "savagery"}
	var scores [4]float64
	for i, f := range fields {
		r := item.Get(f)
		if !r.Exists() {
			return JudgeVerdict{}, false
		}
		scores[i] = r.Float()
	}
	return JudgeVerdict{
		EntryID:    id,
		Humor:      scores[0],
		Creativity: scores[1],
		Relevance:  scores[2],
		Savagery:   scores[3],
		Feedback:   feedback,
	}, true
}

// CompositeScore is round(0.4h + 0.3c + 0.2r + 0.1s) over clamped inputs,
// rounded once, half up.
func CompositeScore(humor, creativity, relevance, savagery float64) int {
	tenths := 4*clampScore(humor) + 3*clampScore(creativity) + 2*clampScore(relevance) + clampScore(savagery)
	return int(math.Floor(tenths/10 + 0.5))
}

// SubScore is the stored integer form of one clamped sub-score.
func SubScore(v float64) int {
	return int(math.Floor(clampScore(v) + 0.5))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// classifyJudgeError keeps parse failures distinct and folds everything else into ErrScoringUnavailable.
func classifyJudgeError(err error) error {
	if err == nil || errors.Is(err, ErrScoringParse) || errors.Is(err, ErrScoringUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
}
