package tokenizer

import (
	"strings"
	"testing"
)

func TestCountTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"one", 1},
		{"one two three", 4},
		{"  a  b\tc\nd e f  ", 8},
	}
	for _, tt := range tests {
		if got := CountTokens(tt.text); got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTrimToTokensKeepsShortText(t *testing.T) {
	text := "short text here"
	if got := TrimToTokens(text, 100); got != text {
		t.Errorf("TrimToTokens = %q, want unchanged", got)
	}
}

func TestTrimToTokensFitsBudget(t *testing.T) {
	text := strings.Repeat("palabra ", 1000)
	for _, budget := range []int{4, 40, 400, 1000} {
		got := TrimToTokens(text, budget)
		if CountTokens(got) > budget {
			t.Errorf("budget %d: trimmed text has %d tokens", budget, CountTokens(got))
		}
		if !strings.HasPrefix(text, got) {
			t.Errorf("budget %d: result is not a prefix", budget)
		}
		if strings.HasSuffix(got, " ") {
			t.Errorf("budget %d: result ends mid-separator", budget)
		}
	}
}

func TestTrimToTokensNonPositive(t *testing.T) {
	if got := TrimToTokens("a b c", 0); got != "" {
		t.Errorf("TrimToTokens(_, 0) = %q, want empty", got)
	}
}
