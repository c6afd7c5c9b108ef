// Package snapshot materializes a working copy of a directory tree.
//
// The copy is best effort: a file that cannot be read or written is recorded
// as skipped and the walk moves on. Only failing to read the source root or
// to create the destination root aborts the copy.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/snapvault/internal/progress"
)

const defaultDirMode = 0755

// Result summarizes one copy.
//
// Every non-directory entry counts toward Total. Entries that are not regular
// files once symlinks are followed (dangling links, links to directories,
// sockets, devices) are never copied and land in Skipped.
type Result struct {
	Total       int      // files found by the counting pass
	Copied      int      // files written to the destination
	Skipped     []string // source entries that could not be copied
	SkippedDirs []string // source directories that could not be listed
}

// Copier copies a source tree into a destination tree.
type Copier struct {
	// OpenFile opens a source file for reading. Nil means os.Open.
	OpenFile func(name string) (io.ReadCloser, error)
}

// Copy copies src into dst with a default Copier.
func Copy(src, dst string, sink progress.Sink) (Result, error) {
	var c Copier
	return c.Copy(src, dst, sink)
}

// Copy mirrors src into dst, reporting progress to sink after every file.
func (c *Copier) Copy(src, dst string, sink progress.Sink) (Result, error) {
	if sink == nil {
		sink = progress.Nop
	}

	info, err := os.Stat(src)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: stat source: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("snapshot: source %s is not a directory", src)
	}

	total, err := countFiles(src)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: read source: %w", err)
	}
	if err := os.MkdirAll(dst, defaultDirMode); err != nil {
		return Result{}, fmt.Errorf("snapshot: create destination: %w", err)
	}

	res := Result{Total: total}
	if total == 0 {
		sink.Report(100)
	}

	w := &walker{
		open:  c.openFunc(),
		sink:  sink,
		total: total,
		res:   &res,
	}
	w.copyDir(src, dst)

	// The tree shrank between the passes; close out the run.
	if total > 0 && w.processed < total {
		sink.Report(100)
	}
	return res, nil
}

func (c *Copier) openFunc() func(string) (io.ReadCloser, error) {
	if c.OpenFile != nil {
		return c.OpenFile
	}
	return func(name string) (io.ReadCloser, error) { return os.Open(name) }
}

// countFiles returns the number of non-directory entries under root.
// Subdirectories that cannot be listed contribute nothing.
func countFiles(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	return n, err
}

type walker struct {
	open      func(string) (io.ReadCloser, error)
	sink      progress.Sink
	total     int
	processed int
	res       *Result
}

func (w *walker) copyDir(src, dst string) {
	entries, err := os.ReadDir(src)
	if err != nil {
		w.res.SkippedDirs = append(w.res.SkippedDirs, src)
		return
	}
	if err := os.MkdirAll(dst, defaultDirMode); err != nil {
		w.skipTree(src)
		return
	}

	var dirs []fs.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
			continue
		}
		path := filepath.Join(src, e.Name())
		if err := w.copyFile(path, filepath.Join(dst, e.Name())); err != nil {
			w.res.Skipped = append(w.res.Skipped, path)
		} else {
			w.res.Copied++
		}
		w.advance()
	}

	for _, d := range dirs {
		w.copyDir(filepath.Join(src, d.Name()), filepath.Join(dst, d.Name()))
	}
}

// skipTree records every file under root as skipped.
func (w *walker) skipTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				w.res.SkippedDirs = append(w.res.SkippedDirs, path)
			}
			return nil
		}
		if !d.IsDir() {
			w.res.Skipped = append(w.res.Skipped, path)
			w.advance()
		}
		return nil
	})
}

func (w *walker) advance() {
	w.processed++
	pct := 100.0
	if w.processed < w.total {
		pct = float64(w.processed) / float64(w.total) * 100
	}
	w.sink.Report(pct)
}

var errNotRegular = errors.New("not a regular file")

func (w *walker) copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", src, errNotRegular)
	}

	in, err := w.open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return nil
}
