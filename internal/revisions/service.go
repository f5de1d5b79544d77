// Package revisions keeps a git history of document content, one repository
// per project and one Markdown file per document.
package revisions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"ideaforge/api/internal/store"
)

var ErrNoHistory = errors.New("no revision history")

// Revision is one commit touching a document.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Record commits the document's current content. Writes that leave the
// content unchanged produce no commit.
func (s *Service) Record(_ context.Context, doc store.Document) error {
	if doc.ProjectID == "" || doc.ID == "" {
		return fmt.Errorf("record revision: document needs project and id")
	}
	lock := s.projectLock(doc.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(doc.ProjectID)
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	name := fileName(doc.ID)
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), name), []byte(doc.Content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := worktree.Add(name); err != nil {
		return fmt.Errorf("git add %s: %w", name, err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	author := doc.UserID
	if author == "" {
		author = "ideaforge"
	}
	_, err = worktree.Commit(fmt.Sprintf("Update %s (%s)", doc.Title, doc.Type), &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@users.ideaforge.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// History lists the commits touching a document, newest first. limit <= 0
// means all of them.
func (s *Service) History(projectID, documentID string, limit int) ([]Revision, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	name := fileName(documentID)
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &name})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commit *object.Commit) error {
		items = append(items, toRevision(commit))
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

// ContentAt returns the document's content as of the given commit. Short
// hashes are accepted. Unknown or malformed hashes yield ErrNoHistory.
func (s *Service) ContentAt(projectID, documentID, hash string) (string, error) {
	if !isCommitHash(hash) {
		return "", fmt.Errorf("hash %q: %w", hash, ErrNoHistory)
	}
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", ErrNoHistory
	}
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", hash, ErrNoHistory)
	}
	commit, err := repo.CommitObject(*resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) || errors.Is(err, object.ErrUnsupportedObject) {
		return "", fmt.Errorf("commit %s: %w", hash, ErrNoHistory)
	}
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commit.File(fileName(documentID))
	if err != nil {
		return "", fmt.Errorf("document %s at %s: %w", documentID, hash, ErrNoHistory)
	}
	return file.Contents()
}

// isCommitHash accepts full or abbreviated hex object names.
func isCommitHash(hash string) bool {
	if len(hash) < 4 || len(hash) > 40 {
		return false
	}
	for _, r := range hash {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func (s *Service) openOrInit(projectID string) (*git.Repository, error) {
	path := s.repoPath(projectID)
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
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, safeSegment(projectID))
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}

func fileName(documentID string) string {
	return safeSegment(documentID) + ".md"
}

// safeSegment keeps ids usable as a single path element.
func safeSegment(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}

func toRevision(commit *object.Commit) Revision {
	return Revision{
		Hash:      commit.Hash.String()[:7],
		Message:   strings.TrimSpace(commit.Message),
		Author:    commit.Author.Name,
		CreatedAt: commit.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
