// Package usage converts a synthesis result into billable seconds.
package usage

import (
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tcolgate/mp3"
)

const (
	// charsPerSecond approximates narration speed for the text-length
	// fallback estimate.
	charsPerSecond = 15.0
	// minEstimateSeconds floors the estimate so degenerate short inputs
	// still register nonzero usage.
	minEstimateSeconds = 5
)

type Accountant struct {
	log *slog.Logger
}

func NewAccountant(logger *slog.Logger) *Accountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{log: logger.With("component", "usage")}
}

// BillableSeconds prefers the real audio duration decoded from the MP3
// container; when that is unavailable or zero it falls back to an estimate
// from the source text length.
func (a *Accountant) BillableSeconds(audioPath, sourceText string) int {
	if d := a.mp3DurationSeconds(audioPath); d > 0 {
		return d
	}
	return EstimateSeconds(sourceText)
}

func (a *Accountant) mp3DurationSeconds(path string) int {
	f, err := os.Open(path)
	if err != nil {
		a.log.Warn("unable to open audio for duration", "path", path, "error", err)
		return 0
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var (
		frame   mp3.Frame
		skipped int
		total   float64
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if err != io.EOF {
				a.log.Debug("mp3 decode stopped", "path", path, "error", err)
			}
			break
		}
		total += frame.Duration().Seconds()
	}
	if total <= 0 {
		return 0
	}
	return int(math.Ceil(total))
}

// EstimateSeconds derives usage from text length when the audio duration is
// unknown: characters divided by an assumed speaking rate, floored at a small
// positive minimum. Empty input estimates as zero.
func EstimateSeconds(text string) int {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return 0
	}
	est := int(math.Round(float64(utf8.RuneCountInString(cleaned)) / charsPerSecond))
	if est < minEstimateSeconds {
		return minEstimateSeconds
	}
	return est
}
