package llm

import (
	"strings"
	"testing"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "pure_array",
			input: `[{"id":0}]`,
			want:  `[{"id":0}]`,
		},
		{
			name:  "array_with_preamble",
			input: `Here is the result: [{"id":1}]`,
			want:  `[{"id":1}]`,
		},
		{
			name:  "array_with_trailing_prose",
			input: "[{\"id\":2}]\nHope that helps.",
			want:  `[{"id":2}]`,
		},
		{
			name:  "markdown_json_fence",
			input: "```json\n[{\"id\":3}]\n```",
			want:  `[{"id":3}]`,
		},
		{
			name:  "markdown_bare_fence",
			input: "```\n[{\"id\":4}]\n```",
			want:  `[{"id":4}]`,
		},
		{
			name:  "fence_preferred_over_prose_brackets",
			input: "Leads [see below]:\n```json\n[{\"id\":5}]\n```",
			want:  `[{"id":5}]`,
		},
		{
			name:  "empty_array",
			input: `Result: []`,
			want:  `[]`,
		},
		{
			name:  "no_array",
			input: "no leads here",
			want:  "",
		},
		{
			name:  "closing_bracket_before_opening",
			input: "] stray [",
			want:  "",
		},
		{
			name:  "fenced_object_only",
			input: "```json\n{\"id\":6}\n```",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSONArray(tt.input)
			if got != tt.want {
				t.Errorf("extractJSONArray(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseVerdicts(t *testing.T) {
	response := `[
		{"id": 0, "reason": "продаёт квартиру", "confidence": 0.9, "type": "property"},
		{"id": 3, "reason": "sells a car", "confidence": 0.7, "type": "vehicle"}
	]`

	verdicts := ParseVerdicts(response)
	if len(verdicts) != 2 {
		t.Fatalf("ParseVerdicts returned %d verdicts, want 2", len(verdicts))
	}

	first := verdicts[0]
	if first.Index != 0 || !first.Verdict.IsLead {
		t.Errorf("first verdict = %+v, want lead at index 0", first)
	}

	if first.Verdict.Reason != "продаёт квартиру" {
		t.Errorf("first reason = %q", first.Verdict.Reason)
	}

	if first.Verdict.Confidence != 0.9 {
		t.Errorf("first confidence = %v, want 0.9", first.Verdict.Confidence)
	}

	if first.Verdict.Category != domain.CategoryProperty {
		t.Errorf("first category = %q, want property", first.Verdict.Category)
	}

	second := verdicts[1]
	if second.Index != 3 || second.Verdict.Category != domain.CategoryVehicle {
		t.Errorf("second verdict = %+v, want vehicle at index 3", second)
	}
}

func TestParseVerdictsDefaults(t *testing.T) {
	verdicts := ParseVerdicts(`[{"id": 2, "reason": "sale"}]`)
	if len(verdicts) != 1 {
		t.Fatalf("ParseVerdicts returned %d verdicts, want 1", len(verdicts))
	}

	v := verdicts[0].Verdict
	if v.Confidence != 0.5 {
		t.Errorf("confidence = %v, want default 0.5", v.Confidence)
	}

	if v.Category != domain.CategoryProperty {
		t.Errorf("category = %q, want default property", v.Category)
	}
}

func TestParseVerdictsEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{
			name:  "fenced_response",
			input: "```json\n[{\"id\": 1, \"reason\": \"x\"}]\n```",
			want:  1,
		},
		{
			name:  "empty_array",
			input: `[]`,
			want:  0,
		},
		{
			name:  "prose_only",
			input: "I could not find any leads.",
			want:  0,
		},
		{
			name:  "invalid_json_in_brackets",
			input: `[{"id": }]`,
			want:  0,
		},
		{
			name:  "negative_id_skipped",
			input: `[{"id": -1, "reason": "x"}]`,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseVerdicts(tt.input)
			if len(got) != tt.want {
				t.Errorf("ParseVerdicts(%q) returned %d verdicts, want %d", tt.input, len(got), tt.want)
			}
		})
	}
}

func TestParseVerdictsUnknownCategory(t *testing.T) {
	verdicts := ParseVerdicts(`[{"id": 0, "reason": "x", "type": "boat"}]`)
	if len(verdicts) != 1 {
		t.Fatalf("ParseVerdicts returned %d verdicts, want 1", len(verdicts))
	}

	if verdicts[0].Verdict.Category != domain.CategoryOther {
		t.Errorf("category = %q, want other", verdicts[0].Verdict.Category)
	}
}

func TestSerializeItem(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{
			name: "text_only",
			item: Item{Index: 0, Text: "Продам диван"},
			want: "[0] Продам диван",
		},
		{
			name: "with_author",
			item: Item{Index: 3, AuthorTag: "seller42", Text: "Продам авто"},
			want: "[3] (user:seller42) Продам авто",
		},
		{
			name: "with_reply",
			item: Item{Index: 1, AuthorTag: "u1", Text: "500к", ReplyText: "Сколько стоит?"},
			want: `[1] (user:u1) (↩ "Сколько стоит?") 500к`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializeItem(tt.item)
			if got != tt.want {
				t.Errorf("serializeItem(%+v) = %q, want %q", tt.item, got, tt.want)
			}
		})
	}
}

func TestSerializeItemTruncatesReply(t *testing.T) {
	item := Item{
		Index:     0,
		Text:      "answer",
		ReplyText: strings.Repeat("я", 250),
	}

	got := serializeItem(item)

	want := `[0] (↩ "` + strings.Repeat("я", 200) + `") answer`
	if got != want {
		t.Errorf("serializeItem reply was not truncated to 200 runes")
	}
}

func TestBuildClassifyPrompt(t *testing.T) {
	items := []Item{
		{Index: 0, Text: "Продам гараж"},
		{Index: 1, AuthorTag: "ivan", Text: "Ищу работу"},
	}

	prompt := BuildClassifyPrompt(items)

	if !strings.HasPrefix(prompt, defaultClassifyPrompt) {
		t.Error("prompt does not start with the instruction block")
	}

	if !strings.Contains(prompt, "[0] Продам гараж") {
		t.Error("prompt is missing the first item")
	}

	if !strings.Contains(prompt, "[1] (user:ivan) Ищу работу") {
		t.Error("prompt is missing the second item")
	}
}
