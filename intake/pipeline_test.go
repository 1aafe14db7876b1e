package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/metrics"
	"github.com/cppla/docintake/models"
)

var (
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{1}, 64)...)
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	pdfBytes  = []byte("%PDF-1.4\n% test document\n")
)

type fakeLinks map[string]models.Link

func (f fakeLinks) GetBySlug(_ context.Context, slug string) (models.Link, error) {
	if l, ok := f[slug]; ok {
		return l, nil
	}
	return models.Link{}, apperr.NotFound("link not found")
}

const testSlug = "jane-doe-ABC"

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "uploads")
	links := fakeLinks{testSlug: {Slug: testSlug, ID: "ABC", AppID: "A1", Name: "Jane Doe"}}
	return NewPipeline(links, root, testPolicy(), opts...), root
}

func memFile(category, name, contentType string, data []byte) File {
	return File{
		Category:     category,
		OriginalName: name,
		ContentType:  contentType,
		Size:         int64(len(data)),
		Open:         func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func visibleFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestIntakeStoresFilesAndManifest(t *testing.T) {
	p, root := newTestPipeline(t)

	res, err := p.Intake(context.Background(), Request{
		Slug: testSlug,
		Files: []File{
			memFile("dl", "License Front.JPG", "image/jpeg", jpegBytes),
			memFile("other", "bank statement.pdf", "application/pdf", pdfBytes),
		},
	})
	require.NoError(t, err)

	m := res.Manifest
	assert.Len(t, m.Details, 2)
	require.Len(t, m.Files["dl"], 1)
	require.Len(t, m.Files["other"], 1)
	assert.Equal(t, testSlug, m.Slug)
	require.NotNil(t, m.ApplicationID)
	assert.Equal(t, "A1", *m.ApplicationID)
	require.NotNil(t, m.CustomerName)
	assert.Equal(t, "Jane Doe", *m.CustomerName)
	assert.NotEmpty(t, m.RequestID)

	dir := filepath.Join(root, testSlug)
	assert.Equal(t, dir, res.Dir)
	assert.True(t, strings.HasSuffix(m.Files["dl"][0], ".jpg"))
	assert.True(t, strings.HasSuffix(m.Files["other"][0], ".pdf"))
	for _, name := range []string{m.Files["dl"][0], m.Files["other"][0]} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	got, err := os.ReadFile(filepath.Join(dir, m.Files["other"][0]))
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, got)

	// manifest on disk matches, without internal paths
	raw, err := os.ReadFile(res.ManifestPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), dir)
	var onDisk models.Manifest
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, m.Files, onDisk.Files)
	assert.Equal(t, m.RequestID, onDisk.RequestID)

	assert.Len(t, visibleFiles(t, dir), 3)
}

func TestIntakeRejectsUnsupportedTypeBeforeWriting(t *testing.T) {
	p, root := newTestPipeline(t)

	_, err := p.Intake(context.Background(), Request{
		Slug: testSlug,
		Files: []File{
			memFile("dl", "license.jpg", "image/jpeg", jpegBytes),
			memFile("other", "notes.txt", "text/plain", []byte("hello")),
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedType))

	_, statErr := os.Stat(filepath.Join(root, testSlug))
	assert.True(t, os.IsNotExist(statErr))
}

func TestIntakeUnknownSlug(t *testing.T) {
	p, root := newTestPipeline(t)

	_, err := p.Intake(context.Background(), Request{
		Slug:  "nobody-XYZ",
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = p.Intake(context.Background(), Request{
		Slug:  "../etc",
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIntakeEmptyUpload(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Intake(context.Background(), Request{Slug: testSlug})
	assert.True(t, errors.Is(err, apperr.ErrEmptyUpload))
}

func TestIntakeTooManyFiles(t *testing.T) {
	p, root := newTestPipeline(t)

	_, err := p.Intake(context.Background(), Request{
		Slug: testSlug,
		Files: []File{
			memFile("dl", "a.jpg", "image/jpeg", jpegBytes),
			memFile("dl", "b.jpg", "image/jpeg", jpegBytes),
		},
	})
	assert.True(t, errors.Is(err, apperr.ErrTooManyFiles))
	_, statErr := os.Stat(filepath.Join(root, testSlug))
	assert.True(t, os.IsNotExist(statErr))
}

func TestIntakeApplicationAddressed(t *testing.T) {
	p, root := newTestPipeline(t)

	_, err := p.Intake(context.Background(), Request{
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	res, err := p.Intake(context.Background(), Request{
		ApplicationID: "APP 7",
		CustomerName:  "<b>Sam</b> Lee",
		Files:         []File{memFile("registration", "reg.png", "image/png", pngBytes)},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, AppsDir, "APP_7"), res.Dir)
	assert.Nil(t, res.Link)
	require.NotNil(t, res.Manifest.CustomerName)
	assert.Equal(t, "Sam Lee", *res.Manifest.CustomerName)
	assert.Regexp(t, `^APP_7_registration_.*\.png$`, res.Manifest.Files["registration"][0])
}

func TestIntakeUnknownCategoryIsKept(t *testing.T) {
	p, _ := newTestPipeline(t)

	res, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("title", "title.pdf", "application/pdf", pdfBytes)},
	})
	require.NoError(t, err)
	require.Len(t, res.Manifest.Files["title"], 1)
	assert.Equal(t, "title", res.Manifest.Details[0].Label)
}

func TestIntakeSniffsOctetStream(t *testing.T) {
	p, _ := newTestPipeline(t)

	res, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "scan.png", "application/octet-stream", pngBytes)},
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.Manifest.Details[0].ContentType)

	_, err = p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "scan.png", "application/octet-stream", []byte("just some text"))},
	})
	assert.True(t, errors.Is(err, apperr.ErrUnsupportedType))
}

func TestIntakeEnforcesSizeWhileStreaming(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	links := fakeLinks{testSlug: {Slug: testSlug, AppID: "A1", Name: "Jane Doe"}}
	p := NewPipeline(links, root, NewPolicy([]string{"image/jpeg"}, 16, 10))

	f := memFile("dl", "a.jpg", "image/jpeg", jpegBytes)
	f.Size = 4 // understated by the client

	_, err := p.Intake(context.Background(), Request{Slug: testSlug, Files: []File{f}})
	assert.True(t, errors.Is(err, apperr.ErrTooLarge))
	assert.Empty(t, visibleFiles(t, filepath.Join(root, testSlug)))
}

func TestIntakeStorageFailure(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "uploads")
	require.NoError(t, os.WriteFile(root, []byte("not a dir"), 0o644))
	links := fakeLinks{testSlug: {Slug: testSlug, AppID: "A1", Name: "Jane Doe"}}
	p := NewPipeline(links, root, testPolicy())

	_, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	assert.True(t, errors.Is(err, apperr.ErrStorage))
}

func TestIntakeNeverReplacesAnExistingFile(t *testing.T) {
	p, root := newTestPipeline(t)
	dir := filepath.Join(root, testSlug)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	taken := filepath.Join(dir, "A1_driver_license_taken.jpg")
	require.NoError(t, os.WriteFile(taken, []byte("earlier upload"), 0o644))

	calls := 0
	p.nameFile = func(string, string, NameContext) (string, error) {
		calls++
		return "A1_driver_license_taken.jpg", nil
	}
	_, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	assert.True(t, errors.Is(err, apperr.ErrStorage))
	assert.Equal(t, nameAttempts, calls)

	got, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "earlier upload", string(got))
	assert.Equal(t, []string{"A1_driver_license_taken.jpg"}, visibleFiles(t, dir))
}

func TestIntakeRetriesNameAfterCollision(t *testing.T) {
	p, root := newTestPipeline(t)
	dir := filepath.Join(root, testSlug)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "first.jpg"), []byte("earlier upload"), 0o644))

	names := []string{"first.jpg", "second.jpg"}
	p.nameFile = func(string, string, NameContext) (string, error) {
		n := names[0]
		names = names[1:]
		return n, nil
	}
	res, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"second.jpg"}, res.Manifest.Files["dl"])

	got, err := os.ReadFile(filepath.Join(dir, "first.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "earlier upload", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "second.jpg"))
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, got)
}

func TestIntakeCanceled(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Intake(ctx, Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRepeatedIntakeVersionsManifests(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 8, 27, 15, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 27, 16, 0, 0, 0, time.UTC),
	}
	i := 0
	p, _ := newTestPipeline(t, WithClock(func() time.Time { ts := times[i]; i++; return ts }))

	first, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	require.NoError(t, err)
	second, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("income", "pay.pdf", "application/pdf", pdfBytes)},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ManifestPath, second.ManifestPath)

	list, err := p.ListManifests(testSlug)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Manifest.RequestID, list[0].RequestID)
	assert.Equal(t, second.Manifest.RequestID, list[1].RequestID)
	assert.Contains(t, list[0].Files, "dl")
	assert.Contains(t, list[1].Files, "income")
}

func TestListManifests(t *testing.T) {
	p, _ := newTestPipeline(t)

	list, err := p.ListManifests("never-used")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = p.ListManifests("../secret")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestManifestName(t *testing.T) {
	m := models.Manifest{
		RequestID:  "0f8fad5b-d9cb-469f-a165-70867728950e",
		ReceivedAt: time.Date(2025, 8, 27, 15, 22, 55, 123_000_000, time.UTC),
	}
	assert.Equal(t, "manifest-20250827T152255.123Z-0f8fad5b.json", ManifestName(m))
}

func TestIntakeMetrics(t *testing.T) {
	m := metrics.New(nil)
	p, _ := newTestPipeline(t, WithMetrics(m))

	_, err := p.Intake(context.Background(), Request{
		Slug:  testSlug,
		Files: []File{memFile("dl", "a.jpg", "image/jpeg", jpegBytes)},
	})
	require.NoError(t, err)
	_, _ = p.Intake(context.Background(), Request{Slug: testSlug})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntakeRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntakeRequests.WithLabelValues("empty_upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntakeFiles.WithLabelValues("dl")))
	assert.Equal(t, float64(len(jpegBytes)), testutil.ToFloat64(m.IntakeBytes))
}
