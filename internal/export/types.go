// Package export renders documents and version snapshots as HTML, plain
// text, PDF and DOCX.
package export

import (
	"errors"
	"strings"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "txt"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat maps a query value to a Format. Empty means HTML.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "":
		return FormatHTML, nil
	case FormatHTML, FormatText, FormatPDF, FormatDOCX:
		return Format(value), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Paper is the PDF page size.
type Paper string

const (
	PaperLetter Paper = "letter"
	PaperA4     Paper = "a4"
)

// ParsePaper maps a query value to a Paper. Empty means Letter.
func ParsePaper(value string) (Paper, error) {
	switch Paper(strings.ToLower(value)) {
	case "", PaperLetter:
		return PaperLetter, nil
	case PaperA4:
		return PaperA4, nil
	default:
		return "", ErrUnsupportedPaper
	}
}

// Request contains parameters for an export operation. VersionNumber zero
// exports the current document. Paper only applies to PDF.
type Request struct {
	UserID        string
	DocumentID    string
	VersionNumber int
	Format        Format
	Paper         Paper
}

// Document is the content handed to the renderers.
type Document struct {
	ID             string
	Title          string
	Content        string
	ContentHTML    string
	Author         string
	VersionNumber  int
	WordCount      int
	CharacterCount int
	UpdatedAt      time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrUnsupportedPaper  = errors.New("unsupported paper size")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
