package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/turion/turionlink/core/printer"
)

// Probe opens a bare TLS connection to the device and extracts its serial
// number from the server certificate's subject common name. Chain validation
// is disabled: every unit ships a self-signed certificate naming only its
// serial. One-shot, no retry; callers retry by re-invoking.
func Probe(host string, port int) (string, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", addr, err)
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", fmt.Errorf("probe %s: %w", addr, printer.ErrNoCommonName)
	}
	cn := certs[0].Subject.CommonName
	if cn == "" {
		return "", fmt.Errorf("probe %s: %w", addr, printer.ErrNoCommonName)
	}
	return cn, nil
}
