// Package ingestion turns stored PDF documents into namespaced embedding vectors.
package ingestion

import (
	"bytes"
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported document payload formats.
type DocumentFormat string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown DocumentFormat = ""
	// FormatPDF represents PDF documents.
	FormatPDF DocumentFormat = "pdf"
)

const sniffLen = 1024

var pdfMagic = []byte("%PDF-")

// DetectFormat infers a document format from the leading bytes of a file,
// falling back to the name's extension when no bytes are available.
func DetectFormat(name string, head []byte) DocumentFormat {
	if len(head) == 0 {
		if strings.EqualFold(filepath.Ext(name), ".pdf") {
			return FormatPDF
		}
		return FormatUnknown
	}
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.Contains(head, pdfMagic) {
		return FormatPDF
	}
	return FormatUnknown
}
