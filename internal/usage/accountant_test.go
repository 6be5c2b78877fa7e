package usage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEstimateSeconds(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t ", 0},
		{"short input floors at minimum", "hi", 5},
		{"150 chars reads as 10s", strings.Repeat("a", 150), 10},
		{"900 chars reads as 60s", strings.Repeat("a", 900), 60},
		{"90 CJK chars reads as 6s", strings.Repeat("声", 90), 6},
		{"150 accented chars reads as 10s", strings.Repeat("é", 150), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateSeconds(tt.text); got != tt.want {
				t.Fatalf("EstimateSeconds(%d chars) = %d, want %d", utf8.RuneCountInString(tt.text), got, tt.want)
			}
		})
	}
}

func TestBillableSecondsFallsBackOnGarbageAudio(t *testing.T) {
	a := NewAccountant(nil)
	path := filepath.Join(t.TempDir(), "bad.mp3")
	if err := os.WriteFile(path, []byte("not an mpeg stream"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := a.BillableSeconds(path, strings.Repeat("x", 150))
	if got != 10 {
		t.Fatalf("expected text estimate 10, got %d", got)
	}
}

func TestBillableSecondsFallsBackOnMissingAudio(t *testing.T) {
	a := NewAccountant(nil)
	got := a.BillableSeconds(filepath.Join(t.TempDir(), "missing.mp3"), "short")
	if got != 5 {
		t.Fatalf("expected minimum estimate 5, got %d", got)
	}
}
