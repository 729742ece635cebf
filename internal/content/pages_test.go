package content

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matica-life/storefront/internal/platform/storage"
)

const samplePage = `---
title: Shipping Policy
summary: Delivery timelines.
effective_date: 2025-01-01
updated_at: 2025-06-15T10:00:00Z
version: "2.0"
---

## Coverage

We ship across **India**.

<script>alert("x")</script>

| Type | Days |
| --- | --- |
| Ready | 2 |

[Track](https://example.com/track)
`

type countingSource struct {
	inner Source
	reads atomic.Int32
}

func (s *countingSource) Read(ctx context.Context, lang, slug string) (RawPage, error) {
	s.reads.Add(1)
	return s.inner.Read(ctx, lang, slug)
}

func TestLibraryRendersFrontMatterAndMarkdown(t *testing.T) {
	t.Parallel()

	lib := NewLibrary(Options{Source: NewFSSource(fstest.MapFS{
		"en/shipping-policy.md": {Data: []byte(samplePage)},
	})})

	page, err := lib.Get(context.Background(), "shipping-policy", "en")
	require.NoError(t, err)

	assert.Equal(t, "Shipping Policy", page.Title)
	assert.Equal(t, "Delivery timelines.", page.Summary)
	assert.Equal(t, "2.0", page.Version)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), page.EffectiveDate)
	assert.Equal(t, time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC), page.UpdatedAt)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	require.NoError(t, err)
	require.Equal(t, "Coverage", strings.TrimSpace(doc.Find("h2").First().Text()))
	require.Equal(t, "India", doc.Find("strong").Text())
	require.Equal(t, 0, doc.Find("script").Length(), "script tags must be stripped")
	require.Equal(t, 1, doc.Find("table").Length(), "GFM tables must render")
	rel, _ := doc.Find("a").Attr("rel")
	require.Contains(t, rel, "nofollow")
	require.NotContains(t, page.HTML, "alert(")
}

func TestLibraryFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	lib := NewLibrary(Options{Source: NewFSSource(fstest.MapFS{
		"en/privacy-policy.md":       {Data: []byte("---\ntitle: Privacy\n---\nBody")},
		"hi/terms-and-conditions.md": {Data: []byte("---\ntitle: नियम\n---\nशर्तें")},
	})})
	ctx := context.Background()

	page, err := lib.Get(ctx, "privacy-policy", "hi-IN")
	require.NoError(t, err)
	assert.Equal(t, "en", page.Lang)

	page, err = lib.Get(ctx, "terms-and-conditions", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", page.Lang)
	assert.Equal(t, "नियम", page.Title)
}

func TestLibraryUnknownOrMissingSlug(t *testing.T) {
	t.Parallel()

	lib := NewLibrary(Options{Source: NewFSSource(fstest.MapFS{})})
	ctx := context.Background()

	_, err := lib.Get(ctx, "about-us", "en")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = lib.Get(ctx, "../privacy-policy", "en")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = lib.Get(ctx, "shipping-policy", "en")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLibraryCachesUntilTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &countingSource{inner: NewFSSource(fstest.MapFS{
		"en/privacy-policy.md": {Data: []byte("# Privacy")},
	})}
	lib := NewLibrary(Options{
		Source:   source,
		CacheTTL: time.Minute,
		Clock:    func() time.Time { return now },
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := lib.Get(ctx, "privacy-policy", "en")
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, source.reads.Load())

	now = now.Add(2 * time.Minute)
	_, err := lib.Get(ctx, "privacy-policy", "en")
	require.NoError(t, err)
	require.EqualValues(t, 2, source.reads.Load())
}

func TestLibraryTitleDefaultsToSlug(t *testing.T) {
	t.Parallel()

	lib := NewLibrary(Options{Source: NewFSSource(fstest.MapFS{
		"en/cancellation-and-refund.md": {Data: []byte("No front matter here.")},
	})})
	page, err := lib.Get(context.Background(), "cancellation-and-refund", "")
	require.NoError(t, err)
	assert.Equal(t, "Cancellation And Refund", page.Title)
	assert.Contains(t, page.HTML, "No front matter here.")
}

func TestEmbeddedPagesCoverEverySlug(t *testing.T) {
	t.Parallel()

	lib := NewLibrary(Options{})
	summaries, err := lib.List(context.Background(), "en")
	require.NoError(t, err)
	require.Len(t, summaries, len(Slugs))
	for i, summary := range summaries {
		assert.Equal(t, Slugs[i], summary.Slug)
		assert.NotEmpty(t, summary.Title)
		assert.False(t, summary.UpdatedAt.IsZero(), "%s should carry updated_at", summary.Slug)
	}
}

type stubObjectReader struct {
	objects map[string]string
	err     error
}

func (s *stubObjectReader) ReadObject(_ context.Context, bucket, object string) ([]byte, time.Time, error) {
	if s.err != nil {
		return nil, time.Time{}, s.err
	}
	body, ok := s.objects[bucket+"/"+object]
	if !ok {
		return nil, time.Time{}, storage.ErrObjectNotFound
	}
	return []byte(body), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), nil
}

func TestBucketSourceLayeredOverEmbedded(t *testing.T) {
	t.Parallel()

	bucket, err := NewBucketSource(&stubObjectReader{objects: map[string]string{
		"matica-content/legal/en/privacy-policy.md": "---\ntitle: Privacy (Revised)\n---\nUpdated.",
	}}, "matica-content", "")
	require.NoError(t, err)

	lib := NewLibrary(Options{Source: LayeredSource{bucket, Embedded()}})
	ctx := context.Background()

	page, err := lib.Get(ctx, "privacy-policy", "en")
	require.NoError(t, err)
	assert.Equal(t, "Privacy (Revised)", page.Title)
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), page.UpdatedAt)

	page, err = lib.Get(ctx, "shipping-policy", "en")
	require.NoError(t, err)
	assert.Equal(t, "Shipping Policy", page.Title)
}

func TestBucketSourcePropagatesReadFailures(t *testing.T) {
	t.Parallel()

	bucket, err := NewBucketSource(&stubObjectReader{err: errors.New("permission denied")}, "b", "")
	require.NoError(t, err)

	lib := NewLibrary(Options{Source: bucket})
	_, err = lib.Get(context.Background(), "privacy-policy", "en")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}
