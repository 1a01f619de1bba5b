// Package rag splits text into overlapping chunks ahead of vector ingestion.
//
// Chunking is critical for retrieval quality:
//   - Too small: loses context, retrieves fragments
//   - Too large: wastes tokens, dilutes relevance
//
// The splitter works recursively: it tries the coarsest separator first
// (paragraphs), then falls back to finer ones (lines, sentences, words) for
// pieces that are still too large, and finally hard-splits.
package rag

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// LengthMode selects how chunk size is measured.
type LengthMode string

const (
	// LengthChars measures size in characters.
	LengthChars LengthMode = "chars"

	// LengthTokens measures size in model tokens via tiktoken.
	LengthTokens LengthMode = "tokens"
)

// SplitterConfig configures the recursive splitter.
type SplitterConfig struct {
	// Size is the target chunk size. Default: 1000.
	Size int `yaml:"size,omitempty"`

	// Overlap is carried from the end of each chunk into the next.
	// Default: 200.
	Overlap int `yaml:"overlap,omitempty"`

	// Separators are tried coarsest-first. Default: ["\n\n", "\n", ". ", " "].
	Separators []string `yaml:"separators,omitempty"`

	// LengthMode selects chars or tokens. Default: chars.
	LengthMode LengthMode `yaml:"length_mode,omitempty"`

	// TokenEncoding is the tiktoken encoding for token mode.
	// Default: cl100k_base.
	TokenEncoding string `yaml:"token_encoding,omitempty"`
}

func (c *SplitterConfig) SetDefaults() {
	if c.Size <= 0 {
		c.Size = 1000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if len(c.Separators) == 0 {
		c.Separators = []string{"\n\n", "\n", ". ", " "}
	}
	if c.LengthMode == "" {
		c.LengthMode = LengthChars
	}
	if c.TokenEncoding == "" {
		c.TokenEncoding = "cl100k_base"
	}
}

func (c *SplitterConfig) Validate() error {
	if c.Overlap >= c.Size {
		return fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", c.Overlap, c.Size)
	}
	switch c.LengthMode {
	case LengthChars, LengthTokens:
	default:
		return fmt.Errorf("unknown length mode %q", c.LengthMode)
	}
	return nil
}

// Splitter is a recursive character text splitter.
type Splitter struct {
	config  SplitterConfig
	lengthOf func(string) int
}

// NewSplitter builds a splitter. In token mode the tiktoken encoding is
// loaded once up front.
func NewSplitter(config SplitterConfig) (*Splitter, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Splitter{config: config}
	if config.LengthMode == LengthTokens {
		encoding, err := tiktoken.GetEncoding(config.TokenEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load token encoding %q: %w", config.TokenEncoding, err)
		}
		s.lengthOf = func(text string) int {
			return len(encoding.Encode(text, nil, nil))
		}
	} else {
		s.lengthOf = func(text string) int { return len(text) }
	}
	return s, nil
}

// Split breaks text into chunks at most Size long with Overlap carried
// between neighbours. Whitespace-only pieces are dropped.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.lengthOf(text) <= s.config.Size {
		return []string{text}
	}

	pieces := s.recursiveSplit(text, s.config.Separators)
	return s.mergeWithOverlap(pieces)
}

// recursiveSplit cuts text on the first separator that appears, recursing
// into oversized fragments with the remaining separators.
func (s *Splitter) recursiveSplit(text string, separators []string) []string {
	if s.lengthOf(text) <= s.config.Size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if len(separators) == 0 {
		return s.hardSplit(text)
	}

	sep := separators[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return s.recursiveSplit(text, separators[1:])
	}

	var out []string
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		out = append(out, s.recursiveSplit(part, separators[1:])...)
	}
	return out
}

// hardSplit cuts text into Size-length pieces with no separator available.
func (s *Splitter) hardSplit(text string) []string {
	var out []string
	runes := []rune(text)
	// In token mode a rune-count cut may overshoot slightly; mergeWithOverlap
	// never grows pieces, so the error stays bounded by one piece.
	for start := 0; start < len(runes); start += s.config.Size {
		end := start + s.config.Size
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
	}
	return out
}

// mergeWithOverlap packs pieces into chunks close to Size, then prefixes each
// chunk after the first with the tail of its predecessor.
func (s *Splitter) mergeWithOverlap(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, piece := range pieces {
		if current.Len() > 0 && s.lengthOf(current.String())+s.lengthOf(piece) > s.config.Size {
			flush()
		}
		current.WriteString(piece)
	}
	flush()

	if s.config.Overlap <= 0 || len(chunks) < 2 {
		return chunks
	}

	overlapped := make([]string, len(chunks))
	overlapped[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		tail := s.tail(chunks[i-1], s.config.Overlap)
		if tail != "" {
			overlapped[i] = tail + " " + chunks[i]
		} else {
			overlapped[i] = chunks[i]
		}
	}
	return overlapped
}

// tail returns the last `size` length units of text, cut at a word boundary.
func (s *Splitter) tail(text string, size int) string {
	if s.lengthOf(text) <= size {
		return text
	}

	words := strings.Fields(text)
	var tail []string
	length := 0
	for i := len(words) - 1; i >= 0; i-- {
		wordLen := s.lengthOf(words[i]) + 1
		if length+wordLen > size {
			break
		}
		tail = append([]string{words[i]}, tail...)
		length += wordLen
	}
	return strings.Join(tail, " ")
}
