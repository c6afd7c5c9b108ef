// Package retention keeps the archive directory at a bounded number of
// backups, deleting the oldest first.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tinytelemetry/snapvault/internal/archive"
	"github.com/tinytelemetry/snapvault/internal/model"
)

// Result summarizes one prune.
type Result struct {
	Kept    int
	Deleted []string
	Failed  []string
	// Vanished lists archives that were already gone when removal was
	// attempted. They are not counted as deleted.
	Vanished []string
}

// Pruner deletes archives beyond a retention limit.
type Pruner struct {
	// Created returns the creation time used for ordering. Nil means the
	// timestamp embedded in the file name, falling back to mtime.
	Created func(path string, info os.FileInfo) time.Time
	// Remove deletes one archive. Nil means os.Remove.
	Remove func(path string) error
}

// Prune deletes archives in dir beyond limit with a default Pruner.
func Prune(dir string, limit int) (Result, error) {
	var p Pruner
	return p.Prune(dir, limit)
}

// Prune keeps the limit newest archives in dir and deletes the rest.
// A missing dir or a limit below 1 deletes nothing. Deletion failures are
// collected in Failed and do not stop the prune.
func (p *Pruner) Prune(dir string, limit int) (Result, error) {
	archives, err := p.scan(dir)
	if err != nil {
		return Result{}, err
	}
	if limit < 1 || len(archives) <= limit {
		return Result{Kept: len(archives)}, nil
	}

	remove := p.Remove
	if remove == nil {
		remove = os.Remove
	}

	res := Result{Kept: limit}
	for _, a := range archives[limit:] {
		err := remove(a.Path)
		switch {
		case err == nil:
			res.Deleted = append(res.Deleted, a.Path)
		case os.IsNotExist(err):
			res.Vanished = append(res.Vanished, a.Path)
		default:
			res.Failed = append(res.Failed, a.Path)
			res.Kept++
		}
	}
	return res, nil
}

// List returns the archives in dir, newest first.
func List(dir string) ([]model.ArchiveInfo, error) {
	var p Pruner
	return p.List(dir)
}

// List returns the archives in dir ordered the way Prune ranks them.
func (p *Pruner) List(dir string) ([]model.ArchiveInfo, error) {
	return p.scan(dir)
}

func (p *Pruner) scan(dir string) ([]model.ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("retention: read %s: %w", dir, err)
	}

	created := p.Created
	if created == nil {
		created = nameOrModTime
	}

	var out []model.ArchiveInfo
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := archive.ParseName(e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		out = append(out, model.ArchiveInfo{
			Name:    e.Name(),
			Path:    path,
			Size:    info.Size(),
			Created: created(path, info),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		if si, sj := seq(out[i].Name), seq(out[j].Name); si != sj {
			return si > sj
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

func nameOrModTime(path string, info os.FileInfo) time.Time {
	if n, ok := archive.ParseName(filepath.Base(path)); ok {
		return n.Created
	}
	return info.ModTime()
}

func seq(name string) int {
	n, _ := archive.ParseName(name)
	return n.Seq
}
