package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractFirst extracts the first regular file in zipPath whose extension is
// one of exts (case-insensitive) into destDir and returns its path. An empty
// exts matches any file.
func ExtractFirst(zipPath, destDir string, exts ...string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		if len(exts) > 0 && !slices.ContainsFunc(exts, func(e string) bool { return strings.EqualFold(e, ext) }) {
			continue
		}
		return extractEntry(f, destDir)
	}
	return "", eris.Errorf("zip: no %v file in %s", exts, filepath.Base(zipPath))
}

func extractEntry(f *zip.File, destDir string) (string, error) {
	dest := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(dest), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	if _, err := writeFile(dest, io.Reader(rc)); err != nil {
		return "", err
	}
	return dest, nil
}
