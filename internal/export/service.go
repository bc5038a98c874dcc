package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"inkwell/api/internal/plaintext"
	"inkwell/api/internal/store"
)

// DataStore is the slice of the store the exporter reads from.
type DataStore interface {
	GetDocument(ctx context.Context, userID, id string) (store.Document, error)
	GetVersion(ctx context.Context, userID, documentID string, number int) (store.Version, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
}

// renderJob is the input of the binary renderers. Name is the file name
// without extension.
type renderJob struct {
	HTML         string
	Name         string
	Paper        Paper
	ReferenceDoc string
}

type renderFunc func(ctx context.Context, job renderJob) (*Result, error)

// Service provides document export functionality
type Service struct {
	store        DataStore
	renderPDF    renderFunc
	renderDOCX   renderFunc
	referenceDoc string
}

type Option func(*Service)

// WithDOCXReference styles DOCX exports after the Word document at path.
func WithDOCXReference(path string) Option {
	return func(s *Service) { s.referenceDoc = path }
}

// NewService creates a new export service
func NewService(store DataStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		renderPDF:  exportPDF,
		renderDOCX: exportDOCX,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Format == FormatText {
		text := ContentToText(doc.Content)
		return &Result{
			Data:     []byte(doc.Title + "\n\n" + text + "\n"),
			Filename: filename(doc) + ".txt",
			MimeType: "text/plain; charset=utf-8",
		}, nil
	}

	body := ContentToHTML(doc.Content)
	if strings.TrimSpace(body) == "" && doc.ContentHTML != "" {
		body = doc.ContentHTML
	}
	page, err := RenderDocumentHTML(TemplateData{
		Title:         doc.Title,
		Author:        doc.Author,
		VersionNumber: doc.VersionNumber,
		WordCount:     doc.WordCount,
		UpdatedAt:     doc.UpdatedAt,
		ContentHTML:   template.HTML(body),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(page),
			Filename: filename(doc) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.renderPDF(ctx, renderJob{HTML: page, Name: filename(doc), Paper: req.Paper})
	case FormatDOCX:
		return s.renderDOCX(ctx, renderJob{HTML: page, Name: filename(doc), ReferenceDoc: s.referenceDoc})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) load(ctx context.Context, req Request) (Document, error) {
	current, err := s.store.GetDocument(ctx, req.UserID, req.DocumentID)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}

	doc := Document{
		ID:             current.ID,
		Title:          current.Title,
		Content:        current.Content,
		ContentHTML:    current.ContentHTML,
		WordCount:      current.WordCount,
		CharacterCount: current.CharacterCount,
		UpdatedAt:      current.UpdatedAt,
	}
	if req.VersionNumber > 0 {
		version, err := s.store.GetVersion(ctx, req.UserID, req.DocumentID, req.VersionNumber)
		if err != nil {
			return Document{}, fmt.Errorf("get version: %w", err)
		}
		doc.Content = version.Content
		doc.ContentHTML = version.ContentHTML
		doc.VersionNumber = version.VersionNumber
		doc.UpdatedAt = version.CreatedAt
		doc.WordCount, doc.CharacterCount = plaintext.Counts(version.Content)
	}
	if user, err := s.store.GetUserByID(ctx, current.UserID); err == nil {
		doc.Author = user.DisplayName
	}
	return doc, nil
}

func filename(doc Document) string {
	name := sanitizeFilename(doc.Title)
	if doc.VersionNumber > 0 {
		name = fmt.Sprintf("%s-v%d", name, doc.VersionNumber)
	}
	return name
}
