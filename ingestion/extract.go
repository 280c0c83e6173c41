package ingestion

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the plain text of one physical page. Numbers start at 1.
type Page struct {
	Number int
	Text   string
}

// ExtractionError reports a document that could not be read as a PDF.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract pdf %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// ExtractPages reads every page of the PDF at path in physical order. Pages
// without content objects are kept with empty text so numbering stays intact.
func ExtractPages(path string) ([]Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	return ExtractPagesFromBytes(path, content)
}

// ExtractPagesFromBytes is ExtractPages for an in-memory document. name is
// only used for format detection and error reports.
func ExtractPagesFromBytes(name string, content []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = &ExtractionError{Path: name, Err: fmt.Errorf("pdf reader panic: %v", r)}
		}
	}()

	if DetectFormat(name, content) != FormatPDF {
		return nil, &ExtractionError{Path: name, Err: fmt.Errorf("not a pdf document")}
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &ExtractionError{Path: name, Err: err}
	}

	pages, err = readPages(reader)
	if err != nil {
		return nil, &ExtractionError{Path: name, Err: err}
	}
	return pages, nil
}

func readPages(reader *pdf.Reader) ([]Page, error) {
	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: normalizeLineBreaks(text)})
	}
	return pages, nil
}

func normalizeLineBreaks(text string) string {
	return lineBreaks.Replace(text)
}
