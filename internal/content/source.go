package content

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/matica-life/storefront/internal/platform/storage"
)

//go:embed legal
var embedded embed.FS

// RawPage is an unrendered markdown document with front matter.
type RawPage struct {
	Data       []byte
	ModifiedAt time.Time
}

// Source yields raw markdown for a (lang, slug) pair. Missing pages must return ErrNotFound.
type Source interface {
	Read(ctx context.Context, lang, slug string) (RawPage, error)
}

// FSSource reads {lang}/{slug}.md from a file system.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource wraps fsys.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// Embedded serves the pages compiled into the binary.
func Embedded() *FSSource {
	sub, err := fs.Sub(embedded, "legal")
	if err != nil {
		panic(fmt.Sprintf("content: embedded pages: %v", err))
	}
	return NewFSSource(sub)
}

// DirSource serves pages from a directory laid out like the embedded tree.
func DirSource(dir string) *FSSource {
	return NewFSSource(os.DirFS(dir))
}

func (s *FSSource) Read(ctx context.Context, lang, slug string) (RawPage, error) {
	if err := ctx.Err(); err != nil {
		return RawPage{}, err
	}
	name := path.Join(lang, slug+".md")
	if !fs.ValidPath(name) {
		return RawPage{}, ErrNotFound
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RawPage{}, ErrNotFound
		}
		return RawPage{}, err
	}
	var modified time.Time
	if info, statErr := fs.Stat(s.fsys, name); statErr == nil {
		modified = info.ModTime()
	}
	return RawPage{Data: data, ModifiedAt: modified}, nil
}

// ObjectReader reads an object from a bucket. *storage.ObjectReader satisfies it.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, time.Time, error)
}

// BucketSource reads pages from Cloud Storage objects under prefix.
type BucketSource struct {
	reader ObjectReader
	bucket string
	prefix string
}

// NewBucketSource builds a BucketSource. An empty prefix means "legal".
func NewBucketSource(reader ObjectReader, bucket, prefix string) (*BucketSource, error) {
	if reader == nil {
		return nil, errors.New("content: object reader is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("content: bucket is required")
	}
	return &BucketSource{reader: reader, bucket: bucket, prefix: prefix}, nil
}

func (s *BucketSource) Read(ctx context.Context, lang, slug string) (RawPage, error) {
	object, err := storage.PageObjectPath(s.prefix, lang, slug)
	if err != nil {
		return RawPage{}, ErrNotFound
	}
	data, modified, err := s.reader.ReadObject(ctx, s.bucket, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return RawPage{}, ErrNotFound
		}
		return RawPage{}, err
	}
	return RawPage{Data: data, ModifiedAt: modified}, nil
}

// LayeredSource consults each source in turn and returns the first page found.
type LayeredSource []Source

func (s LayeredSource) Read(ctx context.Context, lang, slug string) (RawPage, error) {
	for _, source := range s {
		if source == nil {
			continue
		}
		page, err := source.Read(ctx, lang, slug)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return page, err
	}
	return RawPage{}, ErrNotFound
}
