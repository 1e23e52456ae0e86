package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var DefaultExtensions = []string{".md", ".markdown", ".txt"}

type Scanner struct {
	extensions map[string]struct{}
	exclude    []string
	log        *slog.Logger
}

// Scan is the outcome of one walk: documents sorted by name plus the set of
// names for garbage collection.
type Scan struct {
	Documents []Document
	Names     map[string]struct{}
}

// NewScanner selects files by extension (case-insensitive). Exclude holds
// doublestar patterns matched against the slash-separated relative path.
func NewScanner(extensions, exclude []string, log *slog.Logger) (*Scanner, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}

	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}

	return &Scanner{
		extensions: exts,
		exclude:    exclude,
		log:        orDiscard(log),
	}, nil
}

func (s *Scanner) Scan(ctx context.Context, root string) (Scan, error) {
	res := Scan{Names: make(map[string]struct{})}
	if root == "" {
		return res, ErrNoCorpus
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return res, fmt.Errorf("%w: %s", ErrNoCorpus, root)
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return res, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.log.Warn("skipping unreadable entry", slog.String("path", path), slog.Any("error", err))
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(rel)
		if s.excluded(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() || !s.selected(name) {
			return nil
		}

		doc, err := s.read(path, name, d)
		if err != nil {
			s.log.Warn("skipping unreadable document", slog.String("path", path), slog.Any("error", err))
			return nil
		}

		res.Documents = append(res.Documents, doc)
		res.Names[name] = struct{}{}
		return nil
	})
	if err != nil {
		return Scan{}, err
	}

	slices.SortFunc(res.Documents, func(a, b Document) int {
		return strings.Compare(a.Name, b.Name)
	})

	return res, nil
}

func (s *Scanner) read(path, name string, d fs.DirEntry) (Document, error) {
	info, err := d.Info()
	if err != nil {
		return Document{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}

	return Document{
		Path:        path,
		Name:        name,
		Raw:         raw,
		Fingerprint: Fingerprint(raw),
		ModTime:     info.ModTime(),
	}, nil
}

func (s *Scanner) selected(name string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (s *Scanner) excluded(name string) bool {
	for _, p := range s.exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Fingerprint is the lowercase hex MD5 of the raw bytes.
func Fingerprint(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}
