// Package archive mirrors version snapshots into one git repository per
// document. Each snapshot is a commit of snapshot.json tagged v<number>.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"inkwell/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "snapshot.json"

var ErrNoArchive = errors.New("document has no archive")

type Snapshot struct {
	DocumentID    string    `json:"documentId"`
	VersionNumber int       `json:"versionNumber"`
	UserID        string    `json:"userId"`
	Content       string    `json:"content"`
	ContentHTML   string    `json:"contentHtml,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ArchiveVersion commits v to the repository of its document, creating the
// repository on first use.
func (s *Service) ArchiveVersion(_ context.Context, v store.Version) error {
	lock := s.documentLock(v.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(v.DocumentID)
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(Snapshot{
		DocumentID:    v.DocumentID,
		VersionNumber: v.VersionNumber,
		UserID:        v.UserID,
		Content:       v.Content,
		ContentHTML:   v.ContentHTML,
		CreatedAt:     v.CreatedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return fmt.Errorf("git add snapshot: %w", err)
	}

	when := v.CreatedAt
	if when.IsZero() {
		when = time.Now()
	}
	hash, err := worktree.Commit(fmt.Sprintf("version %d", v.VersionNumber), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  v.UserID,
			Email: fmt.Sprintf("%s@archive.inkwell.local", sanitizeEmail(v.UserID)),
			When:  when,
		},
	})
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	if _, err := repo.CreateTag(tagName(v.VersionNumber), hash, nil); err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("tag snapshot: %w", err)
	}
	return nil
}

// History lists archived commits newest first. A limit of zero means all.
func (s *Service) History(documentID string, limit int) ([]Commit, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, toCommit(c))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Snapshot reads the archived copy of a version.
func (s *Service) Snapshot(documentID string, versionNumber int) (Snapshot, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Snapshot{}, err
	}
	ref, err := repo.Tag(tagName(versionNumber))
	if errors.Is(err, git.ErrTagNotFound) {
		return Snapshot{}, store.ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve tag: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit: %w", err)
	}
	return readSnapshot(commitObj)
}

func (s *Service) openOrInit(documentID string) (*git.Repository, error) {
	path := s.repoPath(documentID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoArchive
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func tagName(versionNumber int) string {
	return "v" + strconv.Itoa(versionNumber)
}

func toCommit(c *object.Commit) Commit {
	return Commit{
		Hash:      c.Hash.String()[:7],
		Message:   c.Message,
		Author:    c.Author.Name,
		CreatedAt: c.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
