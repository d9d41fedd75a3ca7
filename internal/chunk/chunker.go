// Package chunk splits normalized document text into overlapping,
// offset-tracked slices used as the unit of prompting and retrieval.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Chunk is a contiguous slice of the source text.
// Text is always exactly source[Start:End], so chunk sequences can be
// reassembled without loss.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Options bound chunk sizes. Zero values fall back to the defaults.
type Options struct {
	MaxSize int // maximum chunk length in bytes
	Overlap int // bytes shared with the preceding chunk
}

const (
	DefaultMaxSize = 2000
	DefaultOverlap = 200
)

func (o Options) withDefaults() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.Overlap < 0 {
		o.Overlap = DefaultOverlap
	}
	if o.Overlap >= o.MaxSize {
		o.Overlap = o.MaxSize / 4
	}
	return o
}

// Split divides text into overlapping chunks of at most opts.MaxSize
// bytes. Boundaries prefer paragraph breaks, then sentence ends, then a
// hard cut on a rune boundary. Splitting is deterministic and never
// fails; empty input returns nil.
func Split(text string, opts Options) []Chunk {
	if text == "" {
		return nil
	}
	opts = opts.withDefaults()

	if len(text) <= opts.MaxSize {
		return []Chunk{{Index: 0, Text: text, Start: 0, End: len(text)}}
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + opts.MaxSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  text[start:end],
			Start: start,
			End:   end,
		})

		if end == len(text) {
			break
		}

		next := end - opts.Overlap
		for next > 0 && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// cutPoint picks a boundary in (lo, hi]. The search window is the back
// half of the budget so chunks never collapse below half the max size.
func cutPoint(text string, lo, hi int) int {
	window := lo + (hi-lo)/2

	if i := strings.LastIndex(text[window:hi], "\n\n"); i >= 0 {
		return window + i + 2
	}

	best := -1
	for _, sep := range []string{". ", ".\n", "? ", "! ", "?\n", "!\n"} {
		if i := strings.LastIndex(text[window:hi], sep); i >= 0 {
			if cut := window + i + len(sep); cut > best {
				best = cut
			}
		}
	}
	if best > 0 {
		return best
	}

	// Hard cut: back up to a rune boundary.
	for hi > lo+1 && !utf8.RuneStart(text[hi]) {
		hi--
	}
	return hi
}

// Reassemble reconstructs the original text from a chunk sequence by
// dropping each chunk's overlap with its predecessor. It is the exact
// inverse of Split for chunks produced from the same source.
func Reassemble(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var sb strings.Builder
	end := chunks[0].Start
	for _, c := range chunks {
		if c.End <= end {
			continue
		}
		skip := 0
		if c.Start < end {
			skip = end - c.Start
		}
		sb.WriteString(c.Text[skip:])
		end = c.End
	}
	return sb.String()
}
