package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// maxSheetCells bounds spreadsheet extraction so a large workbook cannot
// blow up a chunking pass.
const maxSheetCells = 1000

// ===== PDF =====

// PDFExtractor extracts page text from PDF documents.
type PDFExtractor struct{}

func (e *PDFExtractor) Extensions() []string {
	return []string{".pdf"}
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Keep going; one unreadable page should not sink the document.
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// ===== Word =====

// WordExtractor extracts the body text of DOCX documents.
type WordExtractor struct{}

func (e *WordExtractor) Extensions() []string {
	return []string{".docx"}
}

func (e *WordExtractor) Extract(_ context.Context, path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse Word document: %w", err)
	}
	defer doc.Close()
	return doc.Editable().GetContent(), nil
}

// ===== Excel =====

// ExcelExtractor extracts cell text from XLSX workbooks, sheet by sheet.
type ExcelExtractor struct{}

func (e *ExcelExtractor) Extensions() []string {
	return []string{".xlsx"}
}

func (e *ExcelExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse Excel document: %w", err)
	}
	defer f.Close()

	var parts []string
	for _, sheetName := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		var sheet strings.Builder
		sheet.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))
		cells := 0
		for _, row := range rows {
			if cells >= maxSheetCells {
				sheet.WriteString("... (truncated)\n")
				break
			}
			var rowParts []string
			for _, cell := range row {
				if strings.TrimSpace(cell) != "" {
					rowParts = append(rowParts, cell)
				}
				cells++
			}
			if len(rowParts) > 0 {
				sheet.WriteString(strings.Join(rowParts, " | "))
				sheet.WriteString("\n")
			}
		}
		parts = append(parts, sheet.String())
	}
	return strings.Join(parts, "\n\n"), nil
}
