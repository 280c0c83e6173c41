package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatPDF, DetectFormat("a.bin", []byte("%PDF-1.7\n")))
	assert.Equal(t, FormatPDF, DetectFormat("report.PDF", nil))
	assert.Equal(t, FormatUnknown, DetectFormat("a.pdf", []byte("PK\x03\x04")))
	assert.Equal(t, FormatUnknown, DetectFormat("notes.txt", nil))
}

func TestNormalizeLineBreaks(t *testing.T) {
	assert.Equal(t, "one two three four", normalizeLineBreaks("one\r\ntwo\rthree\nfour"))
}

func TestExtractPagesRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o644))

	_, err := ExtractPages(path)

	var extractErr *ExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, path, extractErr.Path)
}

func TestExtractPagesMissingFile(t *testing.T) {
	_, err := ExtractPages(filepath.Join(t.TempDir(), "missing.pdf"))

	var extractErr *ExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestExtractPagesFromBytesCorrupt(t *testing.T) {
	_, err := ExtractPagesFromBytes("broken.pdf", []byte("%PDF-1.4\nthis is not a real document"))

	var extractErr *ExtractionError
	assert.True(t, errors.As(err, &extractErr))
}

// buildPDF writes a minimal PDF with one content stream per page.
func buildPDF(t *testing.T, contents ...string) []byte {
	t.Helper()

	kids := make([]string, len(contents))
	for i := range contents {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(contents)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	for i, content := range contents {
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractPagesReadsEveryPage(t *testing.T) {
	doc := buildPDF(t,
		"BT /F1 12 Tf 72 720 Td (Hello page one) Tj ET",
		"",
		"BT /F1 12 Tf 14 TL 72 720 Td (Third page) Tj T* (second line) Tj ET",
	)
	path := filepath.Join(t.TempDir(), "three-pages.pdf")
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	pages, err := ExtractPages(path)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	for i, page := range pages {
		assert.Equal(t, i+1, page.Number)
		assert.NotContains(t, page.Text, "\n")
		assert.NotContains(t, page.Text, "\r")
	}
	assert.Equal(t, "Hello page one", strings.TrimSpace(pages[0].Text))
	assert.Empty(t, strings.TrimSpace(pages[1].Text))
	assert.Equal(t, "Third page second line", strings.TrimSpace(pages[2].Text))
}

func TestExtractPagesFromBytesMatchesFile(t *testing.T) {
	doc := buildPDF(t, "BT /F1 12 Tf 72 720 Td (In memory) Tj ET")

	pages, err := ExtractPagesFromBytes("upload.bin", doc)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "In memory", strings.TrimSpace(pages[0].Text))
}

func TestExtractedPagesChunkWithPageNumbers(t *testing.T) {
	doc := buildPDF(t,
		"BT /F1 12 Tf 72 720 Td (alpha bravo) Tj ET",
		"BT /F1 12 Tf 72 720 Td (charlie) Tj ET",
	)
	pages, err := ExtractPagesFromBytes("doc.pdf", doc)
	require.NoError(t, err)

	chunks := Chunker{ChunkSize: 8}.ChunkPages(pages)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 1, 2}, []int{chunks[0].PageNumber, chunks[1].PageNumber, chunks[2].PageNumber})
	assert.Equal(t, "charlie", chunks[2].Text)
}
