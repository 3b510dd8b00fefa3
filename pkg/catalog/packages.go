package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// userFilePrefix is the directory prefix experimenters use in file references.
const userFilePrefix = "Files/"

// Packages resolves package locations under the CSAR root. Catalog packages
// live in <root>/<resource id>/, experimenter uploads in <root>/<owner>/.
type Packages struct {
	Root string
}

// CatalogDir returns the package directory of a catalog resource and whether
// it exists.
func (p Packages) CatalogDir(resourceID string) (string, bool) {
	dir := filepath.Join(p.Root, resourceID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return dir, false
	}
	return dir, true
}

// CatalogFiles lists the regular files in a catalog package directory in
// name order. Subdirectories are skipped.
func (p Packages) CatalogFiles(resourceID string) ([]string, error) {
	dir := filepath.Join(p.Root, resourceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// UserArchive returns the path of an experimenter-uploaded archive given the
// file reference from a request. A leading "Files/" is dropped. The second
// result is false when the reference resolves outside <root>/<owner>/.
func (p Packages) UserArchive(owner, fileName string) (string, bool) {
	ownerDir := filepath.Join(p.Root, owner)
	path := filepath.Join(ownerDir, strings.TrimPrefix(fileName, userFilePrefix))
	return path, within(p.Root, ownerDir) && within(ownerDir, path)
}

// within reports whether path is strictly below dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HasUploadedArchive reports whether owner uploaded <resourceID>.csar.
func (p Packages) HasUploadedArchive(owner, resourceID string) bool {
	path, ok := p.UserArchive(owner, resourceID+".csar")
	return ok && Exists(path)
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
