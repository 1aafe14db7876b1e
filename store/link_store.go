// Package store keeps link records in a single JSON document on disk.
//
// All mutations go through one mutex and every write replaces the document
// with temp-file-then-rename, so the file always reflects one total order of
// mutations and a crash never leaves a partial document behind.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/models"
	"github.com/cppla/docintake/utils"
)

// LinkStore is the durable slug -> link mapping.
type LinkStore struct {
	path string

	mu    sync.RWMutex
	now   func() time.Time
	newID func() (string, error)
}

// Option customizes a LinkStore.
type Option func(*LinkStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *LinkStore) { s.now = now }
}

// WithIDGenerator overrides the random id source.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *LinkStore) { s.newID = gen }
}

// Open prepares the store at path. A missing file is an empty store; a file
// that exists but cannot be read or parsed is an error.
func Open(path string, opts ...Option) (*LinkStore, error) {
	s := &LinkStore{
		path:  path,
		now:   time.Now,
		newID: func() (string, error) { return utils.GenerateID(utils.DefaultIDLength) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if n, err := utils.RemoveStaleTemps(path); err != nil {
		return nil, apperr.Storage("link store unavailable", err)
	} else if n > 0 {
		utils.Sugar.Warnw("removed stale link store temp files", "path", path, "count", n)
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path is the location of the backing document.
func (s *LinkStore) Path() string { return s.path }

// Create validates in, assigns id, slug and createdAt, and persists the new
// record before returning it.
func (s *LinkStore) Create(ctx context.Context, in models.NewLink) (models.Link, error) {
	link := models.Link{
		AppID:   utils.SanitizeText(in.AppID),
		Name:    utils.SanitizeText(in.Name),
		Phone:   utils.SanitizeText(in.Phone),
		Email:   utils.SanitizeText(in.Email),
		Rate:    utils.SanitizeText(in.Rate),
		Payment: utils.SanitizeText(in.Payment),
		Term:    utils.SanitizeText(in.Term),
		Docs:    utils.SanitizeText(in.Docs),
	}
	if link.AppID == "" || link.Name == "" {
		return models.Link{}, apperr.Validation("appId and name are required")
	}
	if err := ctx.Err(); err != nil {
		return models.Link{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := s.load()
	if err != nil {
		return models.Link{}, err
	}

	id, err := s.newID()
	if err != nil {
		return models.Link{}, apperr.Storage("could not generate link id", err)
	}
	existing := make(map[string]struct{}, len(links))
	var latest time.Time
	for _, l := range links {
		existing[l.Slug] = struct{}{}
		if l.CreatedAt.After(latest) {
			latest = l.CreatedAt
		}
	}
	link.ID = id
	link.Slug = utils.UniqueSlug(utils.SlugifyOr(link.Name, "customer")+"-"+id, existing)

	// Keep createdAt non-decreasing in insertion order even if the wall clock steps back.
	created := s.now().UTC().Round(0)
	if created.Before(latest) {
		created = latest
	}
	link.CreatedAt = created

	if err := s.persist(append(links, link)); err != nil {
		return models.Link{}, err
	}
	return link, nil
}

// GetBySlug returns the link stored under slug.
func (s *LinkStore) GetBySlug(ctx context.Context, slug string) (models.Link, error) {
	if err := ctx.Err(); err != nil {
		return models.Link{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	links, err := s.load()
	if err != nil {
		return models.Link{}, err
	}
	for _, l := range links {
		if l.Slug == slug {
			return l, nil
		}
	}
	return models.Link{}, apperr.NotFound("link not found")
}

// List returns every link whose name, appId or slug contains q
// (case-insensitive), newest first. An empty q matches everything.
func (s *LinkStore) List(ctx context.Context, q string) ([]models.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	links, err := s.load()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(q))
	out := make([]models.Link, 0, len(links))
	// Walk backwards so equal timestamps keep newest-inserted first after the stable sort.
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		if needle == "" ||
			strings.Contains(strings.ToLower(l.Name), needle) ||
			strings.Contains(strings.ToLower(l.AppID), needle) ||
			strings.Contains(strings.ToLower(l.Slug), needle) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteBySlug removes the link whose slug, or failing that whose id, equals
// key and returns the removed record.
func (s *LinkStore) DeleteBySlug(ctx context.Context, key string) (models.Link, error) {
	if err := ctx.Err(); err != nil {
		return models.Link{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := s.load()
	if err != nil {
		return models.Link{}, err
	}
	idx := indexOf(links, func(l models.Link) bool { return l.Slug == key })
	if idx < 0 {
		idx = indexOf(links, func(l models.Link) bool { return l.ID == key })
	}
	if idx < 0 {
		return models.Link{}, apperr.NotFound("link not found")
	}
	removed := links[idx]
	remaining := make([]models.Link, 0, len(links)-1)
	remaining = append(remaining, links[:idx]...)
	remaining = append(remaining, links[idx+1:]...)
	if err := s.persist(remaining); err != nil {
		return models.Link{}, err
	}
	return removed, nil
}

// Count returns the number of stored links.
func (s *LinkStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	links, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(links), nil
}

func indexOf(links []models.Link, match func(models.Link) bool) int {
	for i, l := range links {
		if match(l) {
			return i
		}
	}
	return -1
}

// load reads the whole document. Callers hold s.mu.
func (s *LinkStore) load() ([]models.Link, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Link{}, nil
		}
		return nil, apperr.Storage("link store unreadable", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Link{}, nil
	}
	var links []models.Link
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, apperr.Storage("link store corrupt", err)
	}
	if links == nil {
		links = []models.Link{}
	}
	return links, nil
}

// persist replaces the document atomically. Callers hold s.mu for writing.
func (s *LinkStore) persist(links []models.Link) error {
	data, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return apperr.Storage("encode link store", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return apperr.Storage("link store write failed", err)
	}
	return nil
}
