// Package subtitles turns source transcripts into one-word SRT captions.
package subtitles

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"clipsync/internal/youtube"
)

// Cue is one timed caption.
type Cue struct {
	Start    time.Duration
	Duration time.Duration
	Text     string
}

// End returns the time the cue disappears.
func (c Cue) End() time.Duration { return c.Start + c.Duration }

// FromTranscript converts transcript entries into cues.
func FromTranscript(entries []youtube.TranscriptEntry) []Cue {
	cues := make([]Cue, len(entries))
	for i, e := range entries {
		cues[i] = Cue{Start: e.Start, Duration: e.Duration, Text: e.Text}
	}
	return cues
}

// Build runs the whole caption pipeline: sound cues are dropped, overlaps
// repaired, and every remaining cue split into one cue per word.
func Build(entries []youtube.TranscriptEntry) []Cue {
	return SplitWords(FixOverlaps(SkipSoundCues(FromTranscript(entries))))
}

// SkipSoundCues drops cues describing sounds, such as "[Music]".
func SkipSoundCues(cues []Cue) []Cue {
	out := cues[:0:0]
	for _, c := range cues {
		if strings.HasPrefix(strings.TrimSpace(c.Text), "[") {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FixOverlaps sorts cues by start time and moves each cue's start to the end
// of the previous one when they overlap. Overlapping speakers would otherwise
// be drawn on top of each other.
func FixOverlaps(cues []Cue) []Cue {
	out := append([]Cue(nil), cues...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		if prevEnd := out[i-1].End(); out[i].Start < prevEnd {
			out[i].Start = prevEnd
		}
	}
	return out
}

// SplitWords splits each cue into one cue per word. A cue's duration is shared
// among its words in proportion to their syllable counts.
func SplitWords(cues []Cue) []Cue {
	var out []Cue
	for _, c := range cues {
		words := strings.Fields(c.Text)
		if len(words) == 0 {
			continue
		}
		total := 0
		counts := make([]int, len(words))
		for i, w := range words {
			counts[i] = CountSyllables(w)
			total += counts[i]
		}

		start := c.Start
		for i, w := range words {
			d := c.Duration * time.Duration(counts[i]) / time.Duration(total)
			if i == len(words)-1 {
				// Absorb rounding so the last word ends with the source cue.
				d = c.End() - start
			}
			out = append(out, Cue{Start: start, Duration: d, Text: w})
			start += d
		}
	}
	return out
}

// CountSyllables estimates the syllables in an English word by counting vowel
// groups, discounting a silent trailing "e". Every word counts at least one.
func CountSyllables(word string) int {
	w := strings.ToLower(word)
	w = strings.TrimFunc(w, func(r rune) bool { return r < 'a' || r > 'z' })
	if w == "" {
		return 1
	}

	count := 0
	prevVowel := false
	for _, r := range w {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && count > 1 {
		count--
	}
	return max(count, 1)
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

// WriteSRT writes cues in SubRip format.
func WriteSRT(w io.Writer, cues []Cue) error {
	for i, c := range cues {
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", i+1, formatTimestamp(c.Start), formatTimestamp(c.End()), c.Text); err != nil {
			return err
		}
	}
	return nil
}

// SaveSRT writes cues to path.
func SaveSRT(path string, cues []Cue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create srt: %w", err)
	}
	if err := WriteSRT(f, cues); err != nil {
		f.Close()
		return fmt.Errorf("write srt: %w", err)
	}
	return f.Close()
}

// formatTimestamp renders HH:MM:SS,mmm.
func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
