// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// Resolve expands each path into the files with the given extension it
// denotes. A path may name a file, a directory (searched recursively) or a
// doublestar glob such as "grids/**/*.hcl". Paths that do not exist are
// skipped. The result is deduplicated and keeps first-seen order; files
// found under one directory or glob are sorted.
func Resolve(paths []string, extension string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(files ...string) {
		sort.Strings(files)
		for _, f := range files {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}

	for _, path := range paths {
		if hasMeta(path) {
			matches, err := doublestar.FilepathGlob(path, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("invalid glob %q: %w", path, err)
			}
			var files []string
			for _, m := range matches {
				if strings.HasSuffix(m, extension) {
					files = append(files, m)
				}
			}
			add(files...)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if info.IsDir() {
			files, err := FindFilesByExtension(path, extension)
			if err != nil {
				return nil, err
			}
			add(files...)
		} else if strings.HasSuffix(path, extension) {
			add(path)
		}
	}
	return out, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
