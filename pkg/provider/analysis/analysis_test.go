package analysis

import (
	"strings"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	if err := (Request{Transcript: "hello"}).Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
	if err := (Request{Transcript: "   "}).Validate(); err == nil {
		t.Error("blank transcript accepted")
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt(Request{
		Transcript:    "hi\n\nhello",
		Scenario:      "cold call",
		ExchangeCount: 2,
	})
	for _, want := range []string{"Scenario: cold call", "Speaker turns: 2", "hi\n\nhello"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}

	bare := BuildPrompt(Request{Transcript: "hi"})
	if strings.Contains(bare, "Scenario") || strings.Contains(bare, "Speaker turns") {
		t.Errorf("empty optional fields rendered:\n%s", bare)
	}
}

func TestParseResult(t *testing.T) {
	const body = `{"score":72,"feedback":"Solid discovery.","strengths":["open questions"],"improvements":["pacing"],"recommendations":["pause after pricing"]}`

	cases := []struct {
		name  string
		reply string
		ok    bool
	}{
		{"plain json", body, true},
		{"fenced json", "```json\n" + body + "\n```", true},
		{"prose around json", "Here is my review:\n" + body + "\nGood luck!", true},
		{"not json", "the call went fine", false},
		{"score out of range", `{"score":150,"feedback":"x"}`, false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseResult(tc.reply)
			if tc.ok != (err == nil) {
				t.Fatalf("ParseResult() error = %v, want ok=%v", err, tc.ok)
			}
			if !tc.ok {
				return
			}
			if got.Score != 72 {
				t.Errorf("Score = %v, want 72", got.Score)
			}
			if len(got.Strengths) != 1 || got.Strengths[0] != "open questions" {
				t.Errorf("Strengths = %v", got.Strengths)
			}
		})
	}
}
