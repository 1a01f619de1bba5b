// Package extract turns uploaded files into plain text ahead of chunking
// and vector ingestion. Extractors are selected by file extension.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extractor reads one file format and returns its textual content.
type Extractor interface {
	// Extensions lists the lowercase extensions this extractor handles,
	// including the leading dot.
	Extensions() []string

	// Extract returns the plain text of the file at path.
	Extract(ctx context.Context, path string) (string, error)
}

// Service routes files to the extractor registered for their extension.
type Service struct {
	byExt map[string]Extractor
}

// NewService builds a service with the default extractor set: plain text,
// PDF, Word and Excel.
func NewService() *Service {
	s := &Service{byExt: make(map[string]Extractor)}
	s.Register(&TextExtractor{})
	s.Register(&PDFExtractor{})
	s.Register(&WordExtractor{})
	s.Register(&ExcelExtractor{})
	return s
}

// Register adds an extractor for all of its extensions, replacing any
// previous registration.
func (s *Service) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		s.byExt[strings.ToLower(ext)] = e
	}
}

// Supported reports whether files with the given name can be extracted.
func (s *Service) Supported(name string) bool {
	_, ok := s.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// SupportedExtensions returns the registered extensions, sorted.
func (s *Service) SupportedExtensions() []string {
	exts := make([]string, 0, len(s.byExt))
	for ext := range s.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract returns the text of the file at path, routed by extension.
func (s *Service) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := s.byExt[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
	text, err := extractor.Extract(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

// ===== Plain text =====

// TextExtractor reads the file verbatim.
type TextExtractor struct{}

func (e *TextExtractor) Extensions() []string {
	return []string{".txt", ".md", ".csv", ".log", ".json", ".yaml", ".yml"}
}

func (e *TextExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
