// Package scanner walks a directory tree and collects candidate files for
// ingestion, recording per-entry exclusions instead of failing the walk.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docpile/docpile/internal/models"
)

// ErrNotDirectory is returned when the scan root exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// DefaultExtensions are the file extensions accepted for ingestion.
func DefaultExtensions() []string {
	return []string{".pdf", ".doc", ".docx", ".txt", ".md", ".json", ".csv", ".xls", ".xlsx", ".ppt", ".pptx"}
}

// Candidate is one regular file eligible for ingestion.
type Candidate struct {
	Path     string
	Filename string
	Ext      string
	Size     int64
	ModTime  time.Time
}

// Scanner walks directories. The zero value is not usable; use New.
// Scanning is read-only and restartable: Scan holds no state between calls.
type Scanner struct {
	extensions    map[string]struct{}
	includeHidden bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions replaces the accepted extension list (leading dot, any case).
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		s.extensions = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			e = strings.ToLower(e)
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.extensions[e] = struct{}{}
		}
	}
}

// WithHidden includes dot-prefixed files and directories in the scan.
func WithHidden() Option {
	return func(s *Scanner) { s.includeHidden = true }
}

// New returns a scanner accepting DefaultExtensions unless overridden.
func New(opts ...Option) *Scanner {
	s := &Scanner{}
	WithExtensions(DefaultExtensions())(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks root recursively and returns candidates plus exclusions.
// It fails only when root does not exist or is not a directory; unreadable
// entries, hidden files, zero-byte files, and unsupported extensions are
// recorded as exclusions and the walk continues.
func (s *Scanner) Scan(root string) ([]Candidate, []models.ScanExclusion, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s: %w", absRoot, ErrNotDirectory)
	}

	var candidates []Candidate
	var exclusions []models.ScanExclusion
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			exclusions = append(exclusions, models.ScanExclusion{Path: path, Reason: fmt.Sprintf("unreadable: %v", err)})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !s.includeHidden && strings.HasPrefix(name, ".") && path != absRoot {
			if d.IsDir() {
				return filepath.SkipDir
			}
			exclusions = append(exclusions, models.ScanExclusion{Path: path, Reason: "hidden"})
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := s.extensions[ext]; !ok {
			exclusions = append(exclusions, models.ScanExclusion{Path: path, Reason: fmt.Sprintf("unsupported extension %q", ext)})
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil {
			exclusions = append(exclusions, models.ScanExclusion{Path: path, Reason: fmt.Sprintf("unreadable: %v", statErr)})
			return nil
		}
		if !finfo.Mode().IsRegular() {
			exclusions = append(exclusions, models.ScanExclusion{Path: path, Reason: "not a regular file"})
			return nil
		}
		if finfo.Size() == 0 {
			exclusions = append(exclusions, models.ScanExclusion{Path: path, Reason: "empty file"})
			return nil
		}
		candidates = append(candidates, Candidate{
			Path:     path,
			Filename: name,
			Ext:      ext,
			Size:     finfo.Size(),
			ModTime:  finfo.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", absRoot, walkErr)
	}
	return candidates, exclusions, nil
}
