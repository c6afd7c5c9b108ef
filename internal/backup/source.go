package backup

import (
	"fmt"
	"os"
	"path/filepath"
)

// SourceResolver locates the directory tree to back up.
type SourceResolver interface {
	Resolve() (string, error)
}

// ExecutableDir resolves to the running executable's directory walked up
// Parents levels. An install laid out as <root>/app/bin/<exe> uses Parents 2.
type ExecutableDir struct {
	Parents int
	// Executable returns the executable path. Nil means os.Executable.
	Executable func() (string, error)
}

func (e ExecutableDir) Resolve() (string, error) {
	exe := e.Executable
	if exe == nil {
		exe = os.Executable
	}
	p, err := exe()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}

	dir := filepath.Dir(p)
	for i := 0; i < e.Parents; i++ {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s has fewer than %d parent directories", filepath.Dir(p), e.Parents)
		}
		dir = parent
	}
	return checkDir(dir)
}

// FixedDir always resolves to the same directory.
type FixedDir string

func (f FixedDir) Resolve() (string, error) {
	if f == "" {
		return "", fmt.Errorf("empty source directory")
	}
	abs, err := filepath.Abs(string(f))
	if err != nil {
		return "", err
	}
	return checkDir(abs)
}

func checkDir(dir string) (string, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}
