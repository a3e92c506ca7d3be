// Package ftps uploads project files to the printer's SD card over implicit
// FTPS. The device listens on port 990 with the same per-unit self-signed
// certificate as its MQTT endpoint, so chain verification is disabled.
package ftps

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// DefaultPort is the implicit FTPS port the printer listens on.
const DefaultPort = 990

// Client is an authenticated FTPS connection to one printer.
type Client struct {
	conn *ftp.ServerConn
}

// Dial connects and logs in. Uploads referencing a file must complete before
// the corresponding print command is issued.
func Dial(host string, port int, user, pass string) (*Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := ftp.Dial(addr,
		ftp.DialWithTLS(&tls.Config{InsecureSkipVerify: true}),
		ftp.DialWithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("ftps dial %s: %w", addr, err)
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftps login: %w", err)
	}
	return &Client{conn: conn}, nil
}

// EnsureDir creates each segment of the given path on the device and changes
// into it. Existing segments are entered as-is.
func (c *Client) EnsureDir(path string) error {
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		// MakeDir fails when the directory exists; only the ChangeDir
		// result matters.
		_ = c.conn.MakeDir(segment)
		if err := c.conn.ChangeDir(segment); err != nil {
			return fmt.Errorf("ftps enter %s: %w", segment, err)
		}
	}
	return nil
}

// Delete removes a file, reporting whether it existed. Deleting a missing
// file is not an error: uploads delete stale copies first.
func (c *Client) Delete(name string) bool {
	return c.conn.Delete(name) == nil
}

// Store uploads the file contents under the given name in the current
// directory.
func (c *Client) Store(name string, r io.Reader) error {
	if err := c.conn.Stor(name, r); err != nil {
		return fmt.Errorf("ftps store %s: %w", name, err)
	}
	return nil
}

// Close terminates the session.
func (c *Client) Close() error {
	return c.conn.Quit()
}
