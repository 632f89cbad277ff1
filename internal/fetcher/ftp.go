package fetcher

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP client.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
}

// FTP downloads files from FTP servers, anonymously unless credentials are
// set in the options or the URL.
type FTP struct {
	opts FTPOptions
}

// NewFTP returns an FTP client.
func NewFTP(opts FTPOptions) *FTP {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User, opts.Password = "anonymous", "anonymous@"
	}
	return &FTP{opts: opts}
}

type ftpTarget struct {
	host, path, user, password string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("ftp: empty path in url")
	}

	t := ftpTarget{host: u.Host, path: u.Path}
	if _, _, err := net.SplitHostPort(t.host); err != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// ToFile retrieves rawURL into path and returns the bytes written.
func (f *FTP) ToFile(ctx context.Context, rawURL, path string) (n int64, err error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return 0, err
	}
	user, password := f.opts.User, f.opts.Password
	if t.user != "" {
		user, password = t.user, t.password
	}

	zap.L().Debug("ftp: connecting", zap.String("host", t.host), zap.String("path", t.path))
	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, eris.Wrap(err, "ftp: dial")
	}
	defer func() { err = multierr.Append(err, eris.Wrap(conn.Quit(), "ftp: quit")) }()

	if err := conn.Login(user, password); err != nil {
		return 0, eris.Wrap(err, "ftp: login")
	}
	resp, err := conn.Retr(t.path)
	if err != nil {
		return 0, eris.Wrap(err, "ftp: retrieve")
	}
	n, err = writeFile(path, resp)
	return n, multierr.Append(err, eris.Wrap(resp.Close(), "ftp: close response"))
}
