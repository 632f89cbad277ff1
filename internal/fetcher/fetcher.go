// Package fetcher resolves point cloud inputs that live on HTTP or FTP
// servers, optionally inside ZIP archives, to local files.
package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/model"
)

// InputExtensions are the point formats looked for inside archives.
var InputExtensions = []string{".las", ".csv"}

// Resolver downloads remote inputs into Dir.
type Resolver struct {
	HTTP *HTTP
	FTP  *FTP
	Dir  string
}

// NewResolver returns a Resolver with default HTTP and FTP clients.
func NewResolver(dir string) *Resolver {
	return &Resolver{HTTP: NewHTTP(HTTPOptions{}), FTP: NewFTP(FTPOptions{}), Dir: dir}
}

// IsRemote reports whether ref is an http, https or ftp URL.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ftp":
		return u.Host != ""
	}
	return false
}

// Resolve returns a local path for ref. Local paths are returned unchanged
// after an existence check. Remote files are downloaded; a downloaded ZIP is
// replaced by the first point file it contains.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsRemote(ref) {
		if _, err := os.Stat(ref); err != nil {
			return "", model.NewError(model.KindInput, "fetcher: resolve", eris.Wrapf(err, "input %s", ref))
		}
		return ref, nil
	}

	u, _ := url.Parse(ref)
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", model.Errorf(model.KindInput, "fetcher: resolve", "url %s has no file name", ref)
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", model.NewError(model.KindIO, "fetcher: resolve", eris.Wrap(err, "create download dir"))
	}
	dest := filepath.Join(r.Dir, name)

	var (
		n   int64
		err error
	)
	if u.Scheme == "ftp" {
		n, err = r.FTP.ToFile(ctx, ref, dest)
	} else {
		n, err = r.HTTP.ToFile(ctx, ref, dest)
	}
	if err != nil {
		return "", model.NewError(model.KindExternal, "fetcher: download", err)
	}
	zap.L().Info("downloaded input",
		zap.String("url", ref),
		zap.String("path", dest),
		zap.Int64("bytes", n),
	)

	if strings.EqualFold(filepath.Ext(dest), ".zip") {
		extracted, err := ExtractFirst(dest, r.Dir, InputExtensions...)
		if err != nil {
			return "", model.NewError(model.KindInput, "fetcher: extract", err)
		}
		return extracted, nil
	}
	return dest, nil
}
