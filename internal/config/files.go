package config

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileFilter decides which repository files the tools run on: extension
// match plus ignore globs, where a "!" prefix re-includes earlier ignores.
type FileFilter struct {
	extensions map[string]bool
	ignore     []string
	keep       []string
}

func NewFileFilter(cfg FilesConfig) *FileFilter {
	f := &FileFilter{extensions: map[string]bool{}}
	for _, ext := range cfg.Extensions {
		f.extensions[strings.TrimPrefix(ext, ".")] = true
	}
	for _, pattern := range cfg.Ignore {
		pattern = strings.TrimSpace(strings.TrimPrefix(pattern, "./"))
		if pattern == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(pattern, "!"); ok {
			f.keep = append(f.keep, strings.TrimPrefix(rest, "./"))
			continue
		}
		f.ignore = append(f.ignore, pattern)
	}
	return f
}

// AddGitmodules ignores every submodule path listed in .gitmodules, since
// their files belong to other repositories.
func (f *FileFilter) AddGitmodules(root string) error {
	file, err := os.Open(filepath.Join(root, ".gitmodules"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read .gitmodules: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "path"); ok {
			if value, ok := strings.CutPrefix(strings.TrimSpace(rest), "="); ok {
				f.ignore = append(f.ignore, strings.TrimSpace(value))
			}
		}
	}
	return scanner.Err()
}

// Match reports whether a slash-separated repository-relative path should
// be checked.
func (f *FileFilter) Match(p string) bool {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if !f.extensions[ext] {
		return false
	}
	return !f.Ignored(p)
}

func (f *FileFilter) Ignored(p string) bool {
	for _, pattern := range f.keep {
		if matchPattern(pattern, p) {
			return false
		}
	}
	for _, pattern := range f.ignore {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern treats a pattern as a glob against the full path and as a
// directory prefix, so "build" ignores everything under build/.
func matchPattern(pattern, p string) bool {
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	if p == pattern || strings.HasPrefix(p, pattern+"/") {
		return true
	}
	return false
}

// Discover walks the repository and returns the checkable files as sorted
// slash-separated paths relative to root.
func (f *FileFilter) Discover(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if d.Name() == ".git" || (rel != "." && f.Ignored(rel)) {
				return fs.SkipDir
			}
			return nil
		}
		if f.Match(rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	return out, nil
}
