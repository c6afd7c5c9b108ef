package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

const (
	namePrefix = "Backup_"
	nameExt    = ".zip"
	stampFmt   = "20060102_150405"
)

// Backup_<tag>_<yyyyMMdd_HHmmss>[-N].zip
var namePattern = regexp.MustCompile(`^Backup_(.+)_(\d{8}_\d{6})(?:-(\d+))?\.zip$`)

// FileName returns the archive name for tag at t (local time).
func FileName(tag string, t time.Time) string {
	return namePrefix + tag + "_" + t.Format(stampFmt) + nameExt
}

// Name is a parsed archive file name.
type Name struct {
	Tag     string
	Created time.Time
	Seq     int
}

// ParseName reports whether name follows the archive naming scheme and,
// if so, the tag and timestamp it carries.
func ParseName(name string) (Name, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Name{}, false
	}
	ts, err := time.ParseInLocation(stampFmt, m[2], time.Local)
	if err != nil {
		return Name{}, false
	}
	n := Name{Tag: m[1], Created: ts}
	if m[3] != "" {
		n.Seq, _ = strconv.Atoi(m[3])
	}
	return n, true
}

// UniquePath returns a path in dir for tag at t that does not exist yet.
// Two archives in the same second get a -N suffix.
func UniquePath(dir, tag string, t time.Time) string {
	p := filepath.Join(dir, FileName(tag, t))
	if !exists(p) {
		return p
	}
	base := namePrefix + tag + "_" + t.Format(stampFmt)
	for i := 2; ; i++ {
		p = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, nameExt))
		if !exists(p) {
			return p
		}
	}
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
