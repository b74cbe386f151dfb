package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/jlaffaye/ftp"
	"github.com/sirupsen/logrus"
)

const (
	defaultFTPPort = "21"
	anonymousUser  = "anonymous"
)

// ftpConn is the subset of *ftp.ServerConn used by the transport.
type ftpConn interface {
	Login(user, password string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// ftpDialFunc opens a control connection to addr.
type ftpDialFunc func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(timeout))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// ftpTransport stores the raw dump bytes on an FTP server.
type ftpTransport struct {
	log  logrus.FieldLogger
	cfg  *config.FTPUploadConfig
	auth Authenticator
	dial ftpDialFunc
}

var _ Transport = (*ftpTransport)(nil)

// NewFTPTransport creates the FTP transport. auth is consulted when the
// server rejects the initial login; it may be nil.
func NewFTPTransport(
	log logrus.FieldLogger,
	cfg *config.FTPUploadConfig,
	auth Authenticator,
) Transport {
	return &ftpTransport{
		log:  log.WithField("component", "ftp-transport"),
		cfg:  cfg,
		auth: auth,
		dial: dialFTP,
	}
}

func (t *ftpTransport) Name() string { return "ftp" }

func (t *ftpTransport) Schemes() []string { return []string{"ftp"} }

// Send logs in and stores the dump under the URL path. A path ending in "/"
// names a directory and receives the dump under its own base name.
func (t *ftpTransport) Send(ctx context.Context, p *Payload) (*Reply, error) {
	addr := p.URL.Host
	if p.URL.Port() == "" {
		addr = net.JoinHostPort(p.URL.Hostname(), defaultFTPPort)
	}

	log := t.log.WithFields(logrus.Fields{
		"addr":      addr,
		"client_id": t.cfg.ClientID,
	})

	conn, err := t.dial(ctx, addr, t.cfg.Timeout)
	if err != nil {
		return nil, err
	}

	defer func() {
		if qerr := conn.Quit(); qerr != nil {
			log.WithError(qerr).Debug("FTP quit")
		}
	}()

	if err := t.login(ctx, conn, p.URL); err != nil {
		return nil, err
	}

	target := remotePath(p.URL, p.FileName)

	log.WithField("path", target).Debug("Storing dump")

	if err := conn.Stor(target, p.Body); err != nil {
		return nil, ftpError(err)
	}

	return &Reply{Status: ftp.StatusClosingDataConnection}, nil
}

// login tries the URL's user info (or anonymous) first. When the server
// answers "not logged in" the authenticator supplies credentials for one
// more attempt.
func (t *ftpTransport) login(ctx context.Context, conn ftpConn, target *url.URL) error {
	user, pass := anonymousUser, anonymousUser

	if target.User != nil {
		user = target.User.Username()
		pass, _ = target.User.Password()
	}

	err := conn.Login(user, pass)
	if err == nil {
		return nil
	}

	if !isNotLoggedIn(err) || t.auth == nil {
		return ftpError(err)
	}

	t.log.WithField("user", user).Debug("FTP server requires authentication")

	user, pass, err = t.auth.Credentials(ctx, target)
	if err != nil {
		return &TransferError{
			Code:   CodeAuthenticationFailed,
			Status: ftp.StatusNotLoggedIn,
			Err:    fmt.Errorf("obtaining credentials: %w", err),
		}
	}

	if err := conn.Login(user, pass); err != nil {
		return ftpError(err)
	}

	return nil
}

func isNotLoggedIn(err error) bool {
	var tpErr *textproto.Error

	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusNotLoggedIn
}

// ftpError classifies FTP reply errors; anything else is returned as is.
func ftpError(err error) error {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return err
	}

	code := CodeRemoteRejected
	if tpErr.Code == ftp.StatusNotLoggedIn {
		code = CodeAuthenticationFailed
	}

	return &TransferError{Code: code, Status: tpErr.Code, Err: err}
}

func remotePath(target *url.URL, fileName string) string {
	p := target.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return path.Join(p, fileName)
	}

	return p
}
