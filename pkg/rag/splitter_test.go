package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 100, Overlap: 10})
	require.NoError(t, err)

	chunks := s.Split("a short paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestSplitEmptyText(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 100})
	require.NoError(t, err)
	assert.Nil(t, s.Split("   \n  "))
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 60, Overlap: 0})
	require.NoError(t, err)

	text := "First paragraph about VPN outages.\n\nSecond paragraph about password resets.\n\nThird paragraph about printers."
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 60)
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
	assert.Contains(t, chunks[0], "First paragraph")
}

func TestSplitRespectsSizeOnLongUnbrokenText(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 50, Overlap: 0})
	require.NoError(t, err)

	chunks := s.Split(strings.Repeat("x", 500))
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 50)
	}
	assert.Equal(t, 500, len(strings.Join(chunks, "")), "no text lost")
}

func TestSplitOverlapCarriesContext(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 80, Overlap: 20})
	require.NoError(t, err)

	text := strings.Repeat("alpha beta gamma delta. ", 20)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	// Each chunk after the first starts with words from its predecessor.
	firstWord := strings.Fields(chunks[1])[0]
	assert.Contains(t, chunks[0], firstWord)
}

func TestSplitTokenMode(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 20, Overlap: 0, LengthMode: LengthTokens})
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 10)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk)
	}
}

func TestSplitterConfigValidation(t *testing.T) {
	_, err := NewSplitter(SplitterConfig{Size: 100, Overlap: 100})
	assert.Error(t, err, "overlap must be below size")

	_, err = NewSplitter(SplitterConfig{LengthMode: "words"})
	assert.Error(t, err)
}
