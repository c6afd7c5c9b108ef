// Package archive packs a working copy into a compressed zip and names the
// result so retention can order archives by creation time.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

const partialSuffix = ".partial"

// Info describes a finished archive.
type Info struct {
	Path    string
	Size    int64
	Entries int
}

// Create writes every file and directory under root into a zip at dest.
// Entry names are relative to root; root itself is not an entry.
// The archive is assembled under dest+".partial" and renamed into place, so
// a failed run never leaves a truncated archive behind.
func Create(root, dest string) (Info, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return Info{}, fmt.Errorf("archive: stat root: %w", err)
	}
	if !fi.IsDir() {
		return Info{}, fmt.Errorf("archive: root %s is not a directory", root)
	}
	if _, err := os.Stat(dest); err == nil {
		return Info{}, fmt.Errorf("archive: %s already exists", dest)
	}

	tmp := dest + partialSuffix
	entries, err := writeZip(root, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return Info{}, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return Info{}, fmt.Errorf("archive: finalize: %w", err)
	}

	st, err := os.Stat(dest)
	if err != nil {
		return Info{}, fmt.Errorf("archive: stat result: %w", err)
	}
	return Info{Path: dest, Size: st.Size(), Entries: entries}, nil
}

func writeZip(root, path string) (int, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("archive: create: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	entries := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		if err := addEntry(zw, p, filepath.ToSlash(rel), info); err != nil {
			return fmt.Errorf("archive: add %s: %w", rel, err)
		}
		entries++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("archive: close zip: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("archive: sync: %w", err)
	}
	return entries, nil
}

func addEntry(zw *zip.Writer, path, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
		_, err := zw.CreateHeader(hdr)
		return err
	}
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

// Entries lists the entry names of an existing archive.
func Entries(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}
