package node

import (
	"os"
	"path/filepath"
)

// DirFS is an os.ReadDir/os.ReadFile-backed dispatch.FileSystem serving a
// single flat directory, per §6's "./public/"/"./media/" default layout.
// It does not sanitize paths read back from List, matching the original
// implementation's own unguarded fs::read(path) call — filesystem layout
// of served resources is explicitly out of scope (§1).
type DirFS struct {
	Dir string
}

// NewDirFS creates a DirFS rooted at dir, falling back to fallbackDir if
// dir is empty.
func NewDirFS(dir, fallbackDir string) *DirFS {
	if dir == "" {
		dir = fallbackDir
	}
	return &DirFS{Dir: dir}
}

// List returns the path of every regular file directly inside Dir.
func (d *DirFS) List() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, filepath.Join(d.Dir, entry.Name()))
		}
	}
	return names, nil
}

// Read reads the file at the given path, taken as-is (typically one of
// the paths List previously returned).
func (d *DirFS) Read(name string) ([]byte, error) {
	return os.ReadFile(name)
}
