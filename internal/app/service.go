package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"inkwell/api/internal/ai"
	"inkwell/api/internal/archive"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/objectstore"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/search"
	"inkwell/api/internal/security"
	"inkwell/api/internal/sharetoken"
	"inkwell/api/internal/store"
	"inkwell/api/internal/workspace"

	"github.com/sirupsen/logrus"
)

const KindShare = "share"

// Deps wires the Service. Objects and Archive are optional.
type Deps struct {
	Config     config.Config
	Store      store.Store
	Security   *security.Engine
	Accounts   *authpw.Service
	Workspaces *workspace.Manager
	Search     *search.Service
	Export     *export.Service
	AI         *ai.Service
	Email      *email.Service
	Objects    *objectstore.Client
	Archive    *archive.Service
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

// Service is the application facade behind the HTTP server.
type Service struct {
	cfg        config.Config
	store      store.Store
	security   *security.Engine
	accounts   *authpw.Service
	workspaces *workspace.Manager
	search     *search.Service
	export     *export.Service
	ai         *ai.Service
	email      *email.Service
	objects    *objectstore.Client
	archive    *archive.Service
	log        logrus.FieldLogger
	now        func() time.Time
}

func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:        deps.Config,
		store:      deps.Store,
		security:   deps.Security,
		accounts:   deps.Accounts,
		workspaces: deps.Workspaces,
		search:     deps.Search,
		export:     deps.Export,
		ai:         deps.AI,
		email:      deps.Email,
		objects:    deps.Objects,
		archive:    deps.Archive,
		log:        deps.Logger,
		now:        deps.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Security() *security.Engine { return s.security }

// Workspace returns the document core bound to the security session of sc.
func (s *Service) Workspace(ctx context.Context, sc *security.Context) *workspace.Workspace {
	return s.workspaces.Get(ctx, sc.SessionID, sc.UserID)
}

// SignUp creates an editor account.
func (s *Service) SignUp(ctx context.Context, emailAddr, password, displayName string) (store.User, error) {
	if !security.ValidateEmail(strings.TrimSpace(emailAddr)) {
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A valid email is required", nil)
	}
	return s.accounts.SignUp(ctx, authpw.SignUpRequest{
		Email:       emailAddr,
		Password:    password,
		DisplayName: security.SanitizeInput(displayName),
	})
}

func (s *Service) Login(ctx context.Context, creds security.Credentials) (security.AuthResult, error) {
	return s.security.Authenticate(ctx, creds)
}

// Logout flushes and drops the workspace of the session before destroying it.
// A workspace that cannot be flushed is kept by the manager for a later retry.
func (s *Service) Logout(ctx context.Context, sc *security.Context) error {
	if err := s.workspaces.Close(ctx, sc.SessionID); err != nil {
		s.log.WithError(err).WithField("user_id", sc.UserID).Warn("logout with unsaved changes")
	}
	return s.security.Logout(ctx, sc)
}

// ExportOptions selects what to export. Upload stores the file in object
// storage instead of returning it.
type ExportOptions struct {
	Format        export.Format
	Paper         export.Paper
	VersionNumber int
	Upload        bool
}

type ExportOutcome struct {
	File   *export.Result
	Upload *objectstore.Upload
}

// Export renders a document or one of its versions. Pending changes of the
// open document are flushed first.
func (s *Service) Export(ctx context.Context, sc *security.Context, documentID string, opts ExportOptions) (ExportOutcome, error) {
	if err := s.Workspace(ctx, sc).Flush(ctx, documentID); err != nil {
		return ExportOutcome{}, err
	}
	file, err := s.export.Export(ctx, export.Request{
		UserID:        sc.UserID,
		DocumentID:    documentID,
		VersionNumber: opts.VersionNumber,
		Format:        opts.Format,
		Paper:         opts.Paper,
	})
	if err != nil {
		return ExportOutcome{}, err
	}
	if !opts.Upload {
		return ExportOutcome{File: file}, nil
	}
	if s.objects == nil {
		return ExportOutcome{}, objectstore.ErrNotConfigured
	}
	upload, err := s.objects.Put(ctx, sc.UserID, file.Filename, file.MimeType, file.Data)
	if err != nil {
		return ExportOutcome{}, err
	}
	return ExportOutcome{Upload: &upload}, nil
}

type ShareLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	EmailSent bool      `json:"emailSent"`
}

// Share issues a read-only link to documentID. When recipient is set and mail
// is configured an invitation is sent; mail failures only clear EmailSent.
func (s *Service) Share(ctx context.Context, sc *security.Context, documentID, recipient string) (ShareLink, error) {
	doc, err := s.store.GetDocument(ctx, sc.UserID, documentID)
	if err != nil {
		return ShareLink{}, err
	}
	recipient = strings.TrimSpace(recipient)
	if recipient != "" && !security.ValidateEmail(recipient) {
		return ShareLink{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A valid recipient email is required", nil)
	}

	token, claims, err := sharetoken.Issue([]byte(s.cfg.ShareSecret), doc.ID, sc.UserID, s.cfg.ShareTTL, s.now())
	if err != nil {
		return ShareLink{}, err
	}
	link := ShareLink{
		Token:     token,
		URL:       strings.TrimRight(s.cfg.CORSOrigin, "/") + "/shared/" + token,
		ExpiresAt: time.Unix(claims.Exp, 0).UTC(),
	}

	if recipient != "" && s.email != nil && s.email.IsConfigured() {
		sharer := sc.UserID
		if user, err := s.store.GetUserByID(ctx, sc.UserID); err == nil {
			sharer = user.DisplayName
		}
		err := s.email.SendShareInvitation(recipient, email.ShareData{
			SharerName:    sharer,
			DocumentTitle: doc.Title,
			ShareURL:      link.URL,
			ExpiresIn:     humanDuration(s.cfg.ShareTTL),
		})
		if err != nil {
			s.log.WithError(err).WithField("document_id", doc.ID).Warn("send share invitation")
		} else {
			link.EmailSent = true
		}
	}

	message := fmt.Sprintf("Shared %q", doc.Title)
	if recipient != "" {
		message = fmt.Sprintf("Shared %q with %s", doc.Title, recipient)
	}
	if _, err := s.store.InsertNotification(ctx, store.Notification{
		UserID:     sc.UserID,
		Kind:       KindShare,
		Message:    message,
		DocumentID: doc.ID,
	}); err != nil {
		s.log.WithError(err).WithField("document_id", doc.ID).Warn("record share notification")
	}
	return link, nil
}

type SharedDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"contentHtml"`
	WordCount   int       `json:"wordCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SharedDocument resolves a share token to a read-only view.
func (s *Service) SharedDocument(ctx context.Context, token string) (SharedDocument, error) {
	claims, err := sharetoken.Parse([]byte(s.cfg.ShareSecret), token, s.now())
	if err != nil {
		return SharedDocument{}, err
	}
	doc, err := s.store.GetDocumentByID(ctx, claims.DocumentID)
	if err != nil {
		return SharedDocument{}, err
	}
	if doc.UserID != claims.OwnerID {
		return SharedDocument{}, store.ErrNotFound
	}
	return SharedDocument{
		ID:          doc.ID,
		Title:       doc.Title,
		Content:     doc.Content,
		ContentHTML: doc.ContentHTML,
		WordCount:   doc.WordCount,
		UpdatedAt:   doc.UpdatedAt,
		ExpiresAt:   time.Unix(claims.Exp, 0).UTC(),
	}, nil
}

type TransformResult struct {
	ai.Response
	Document *workspace.View `json:"document,omitempty"`
}

// Transform runs an AI action. With applyTo set the result is merged into that
// document through the editor.
func (s *Service) Transform(ctx context.Context, sc *security.Context, req ai.Request, applyTo string) (TransformResult, error) {
	resp, err := s.ai.Transform(ctx, sc.UserID, req)
	if err != nil {
		return TransformResult{}, err
	}
	out := TransformResult{Response: resp}
	if applyTo == "" {
		return out, nil
	}
	if !sc.HasPermission(rbac.PermDocumentsWrite) {
		return TransformResult{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	view, err := s.Workspace(ctx, sc).ApplyText(ctx, applyTo, resp.Result)
	if err != nil {
		return TransformResult{}, err
	}
	out.Document = &view
	return out, nil
}

func (s *Service) Search(ctx context.Context, sc *security.Context, q search.Query) search.Response {
	q.UserID = sc.UserID
	return s.search.Search(ctx, q)
}

func (s *Service) Notifications(ctx context.Context, sc *security.Context, limit int) ([]store.Notification, error) {
	items, err := s.store.ListNotifications(ctx, sc.UserID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.Notification{}
	}
	return items, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, sc *security.Context, id string) error {
	return s.store.MarkNotificationRead(ctx, sc.UserID, id)
}

// ArchiveHistory lists the git-archived snapshots of a document the caller
// owns.
func (s *Service) ArchiveHistory(ctx context.Context, sc *security.Context, documentID string, limit int) ([]archive.Commit, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Version archive is not configured", nil)
	}
	if _, err := s.store.GetDocument(ctx, sc.UserID, documentID); err != nil {
		return nil, err
	}
	commits, err := s.archive.History(documentID, limit)
	if errors.Is(err, archive.ErrNoArchive) {
		return []archive.Commit{}, nil
	}
	return commits, err
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
