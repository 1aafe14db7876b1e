// Package intake binds categorized document uploads to a link, stores them in
// a per-link directory and records a write-once manifest per request.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/metrics"
	"github.com/cppla/docintake/models"
	"github.com/cppla/docintake/utils"
)

// AppsDir holds storage areas of application-addressed intakes. Slugs never
// contain '_', so it cannot collide with a link directory.
const AppsDir = "_apps"

const (
	manifestPrefix = "manifest-"
	manifestSuffix = ".json"
	partSuffix     = ".part"
	nameAttempts   = 3
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// LinkLookup resolves a slug to its link.
type LinkLookup interface {
	GetBySlug(ctx context.Context, slug string) (models.Link, error)
}

// Request is one intake submission. Either Slug or ApplicationID addresses it.
type Request struct {
	Slug          string
	ApplicationID string
	CustomerName  string
	CustomerEmail string
	Files         []File
}

// Result is what a completed intake hands to the caller.
type Result struct {
	Manifest     models.Manifest
	ManifestPath string
	Dir          string
	// Link is set for slug-addressed intakes.
	Link *models.Link
}

// Pipeline runs intake requests: validate, store files, write manifest.
type Pipeline struct {
	links   LinkLookup
	root    string
	policy  *Policy
	now     func() time.Time
	metrics *metrics.Metrics
	// nameFile picks stored names; replaced in tests to force collisions.
	nameFile func(originalName, category string, nc NameContext) (string, error)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics records intake outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline stores uploads below root.
func NewPipeline(links LinkLookup, root string, policy *Policy, opts ...Option) *Pipeline {
	p := &Pipeline{links: links, root: root, policy: policy, now: time.Now, nameFile: BuildStoredFilename}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type target struct {
	dir          string
	slug         string
	appID        string
	customerName string
	email        string
	link         *models.Link
}

// Intake validates req completely, then streams every file into the target's
// directory and writes a new manifest. Nothing is written when validation
// fails. A storage failure part way leaves already stored files in place.
func (p *Pipeline) Intake(ctx context.Context, req Request) (res *Result, err error) {
	defer func() {
		if err == nil {
			p.metrics.ObserveIntake("ok")
		} else {
			p.metrics.ObserveIntake(string(apperr.KindOf(err)))
		}
	}()

	// Validating
	tgt, err := p.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, apperr.EmptyUpload("no files were uploaded")
	}
	if err := p.policy.ValidateCount(req.Files); err != nil {
		return nil, err
	}
	files := make([]File, len(req.Files))
	copy(files, req.Files)
	for i := range files {
		if err := resolveContentType(&files[i]); err != nil {
			return nil, apperr.Storage("could not read upload", err)
		}
		if err := p.policy.Validate(files[i]); err != nil {
			return nil, err
		}
	}

	// StoringFiles
	if err := os.MkdirAll(tgt.dir, 0o755); err != nil {
		return nil, apperr.Storage("could not prepare upload storage", err)
	}
	receivedAt := p.now().UTC().Truncate(time.Millisecond)
	stored := make([]models.StoredFile, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sf, err := p.storeFile(ctx, tgt.dir, f, tgt.appID, receivedAt)
		if err != nil {
			utils.Sugar.Warnw("intake aborted while storing files",
				"dir", tgt.dir, "stored", len(stored), "error", err)
			return nil, err
		}
		p.metrics.ObserveStoredFile(f.Category, sf.Size)
		stored = append(stored, sf)
	}

	// WritingManifest
	m := models.Manifest{
		RequestID:     uuid.NewString(),
		Slug:          tgt.slug,
		ApplicationID: nullable(tgt.appID),
		CustomerName:  nullable(tgt.customerName),
		CustomerEmail: nullable(tgt.email),
		ReceivedAt:    receivedAt,
		Files:         make(map[string][]string),
		Details:       stored,
	}
	for _, sf := range stored {
		m.Files[sf.Category] = append(m.Files[sf.Category], sf.StoredName)
	}
	path, err := writeManifest(tgt.dir, m)
	if err != nil {
		return nil, err
	}

	utils.Sugar.Infow("intake stored",
		"request_id", m.RequestID, "slug", m.Slug, "dir", tgt.dir, "files", len(stored))
	return &Result{Manifest: m, ManifestPath: path, Dir: tgt.dir, Link: tgt.link}, nil
}

func (p *Pipeline) resolveTarget(ctx context.Context, req Request) (target, error) {
	appID := utils.SanitizeText(req.ApplicationID)
	name := utils.SanitizeText(req.CustomerName)
	email := utils.SanitizeText(req.CustomerEmail)

	if slug := strings.TrimSpace(req.Slug); slug != "" {
		if !slugPattern.MatchString(slug) {
			return target{}, apperr.NotFound("link not found")
		}
		link, err := p.links.GetBySlug(ctx, slug)
		if err != nil {
			return target{}, err
		}
		if appID == "" {
			appID = link.AppID
		}
		if name == "" {
			name = link.Name
		}
		if email == "" {
			email = link.Email
		}
		return target{
			dir:          filepath.Join(p.root, slug),
			slug:         slug,
			appID:        appID,
			customerName: name,
			email:        email,
			link:         &link,
		}, nil
	}

	if appID == "" {
		return target{}, apperr.Validation("applicationId is required")
	}
	key := SafeComponent(appID)
	if key == "" {
		return target{}, apperr.Validation("applicationId has no usable characters")
	}
	return target{
		dir:          filepath.Join(p.root, AppsDir, key),
		appID:        appID,
		customerName: name,
		email:        email,
	}, nil
}

// storeFile copies f into dir under a fresh labeled name. The bytes land in a
// hidden part file first, so a failed copy never leaves a file under its final
// name, and the commit never replaces an existing file.
func (p *Pipeline) storeFile(ctx context.Context, dir string, f File, appID string, at time.Time) (models.StoredFile, error) {
	src, err := f.Open()
	if err != nil {
		return models.StoredFile{}, apperr.Storage("could not read upload", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".upload-*"+partSuffix)
	if err != nil {
		return models.StoredFile{}, apperr.Storage("could not store file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	var r io.Reader = &ctxReader{ctx: ctx, r: src}
	if p.policy.MaxFileBytes > 0 {
		r = io.LimitReader(r, p.policy.MaxFileBytes+1)
	}
	written, err := io.Copy(tmp, r)
	if err != nil {
		if ctx.Err() != nil {
			return models.StoredFile{}, ctx.Err()
		}
		return models.StoredFile{}, apperr.Storage("could not store file", err)
	}
	if p.policy.MaxFileBytes > 0 && written > p.policy.MaxFileBytes {
		return models.StoredFile{}, apperr.TooLarge(fmt.Sprintf("%s exceeds the %d MB limit", f.displayName(), p.policy.MaxFileBytes/(1<<20)))
	}
	if err := tmp.Sync(); err != nil {
		return models.StoredFile{}, apperr.Storage("could not store file", err)
	}
	if err := tmp.Close(); err != nil {
		return models.StoredFile{}, apperr.Storage("could not store file", err)
	}

	for attempt := 0; attempt < nameAttempts; attempt++ {
		name, err := p.nameFile(f.OriginalName, f.Category, NameContext{AppID: appID, At: at})
		if err != nil {
			return models.StoredFile{}, apperr.Storage("could not name stored file", err)
		}
		final := filepath.Join(dir, name)
		err = utils.LinkNoClobber(tmpName, final)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return models.StoredFile{}, apperr.Storage("could not store file", err)
		}
		return models.StoredFile{
			Category:     f.Category,
			Label:        LabelFor(f.Category),
			OriginalName: f.OriginalName,
			StoredName:   name,
			ContentType:  f.ContentType,
			Size:         written,
			Path:         final,
		}, nil
	}
	return models.StoredFile{}, apperr.Storage("could not allocate a stored file name", os.ErrExist)
}

func writeManifest(dir string, m models.Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", apperr.Storage("encode manifest", err)
	}
	path := filepath.Join(dir, ManifestName(m))
	if err := utils.WriteFileExclusive(path, data, 0o644); err != nil {
		return "", apperr.Storage("could not write manifest", err)
	}
	return path, nil
}

// ManifestName is manifest-<UTC yyyymmddThhmmss.mmmZ>-<first 8 of requestId>.json.
// Names sort in receive order.
func ManifestName(m models.Manifest) string {
	id := m.RequestID
	if len(id) > 8 {
		id = id[:8]
	}
	return manifestPrefix + m.ReceivedAt.UTC().Format("20060102T150405.000") + "Z-" + id + manifestSuffix
}

// ListManifests returns every manifest recorded for slug, oldest first. An
// unknown or empty storage area yields an empty list.
func (p *Pipeline) ListManifests(slug string) ([]models.Manifest, error) {
	if !slugPattern.MatchString(slug) {
		return nil, apperr.Validation("invalid slug")
	}
	dir := filepath.Join(p.root, slug)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Manifest{}, nil
		}
		return nil, apperr.Storage("could not read upload storage", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, manifestPrefix) && strings.HasSuffix(n, manifestSuffix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	out := make([]models.Manifest, 0, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, apperr.Storage("could not read manifest", err)
		}
		var m models.Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, apperr.Storage("manifest corrupt", fmt.Errorf("%s: %w", n, err))
		}
		out = append(out, m)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ctxReader stops a copy once the request is abandoned.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
