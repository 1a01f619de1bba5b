package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("vpn outage runbook"), 0644))

	svc := NewService()
	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "vpn outage runbook", text)
}

func TestExtractUnsupportedExtension(t *testing.T) {
	svc := NewService()
	_, err := svc.Extract(context.Background(), "firmware.bin")
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestSupported(t *testing.T) {
	svc := NewService()
	assert.True(t, svc.Supported("report.PDF"))
	assert.True(t, svc.Supported("minutes.docx"))
	assert.True(t, svc.Supported("budget.xlsx"))
	assert.True(t, svc.Supported("readme.md"))
	assert.False(t, svc.Supported("archive.zip"))
}

func TestSupportedExtensionsSorted(t *testing.T) {
	exts := NewService().SupportedExtensions()
	require.NotEmpty(t, exts)
	for i := 1; i < len(exts); i++ {
		assert.Less(t, exts[i-1], exts[i])
	}
	assert.Contains(t, exts, ".pdf")
	assert.Contains(t, exts, ".txt")
}

func TestRegisterReplaces(t *testing.T) {
	svc := NewService()
	svc.Register(&stubExtractor{text: "from stub"})

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("ignored"), 0644))

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "from stub", text)
}

type stubExtractor struct{ text string }

func (s *stubExtractor) Extensions() []string { return []string{".txt"} }

func (s *stubExtractor) Extract(context.Context, string) (string, error) {
	return s.text, nil
}

func TestExtractMissingFile(t *testing.T) {
	svc := NewService()
	_, err := svc.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
