// Package camera reads the printer's chamber camera stream: a TLS connection
// on port 6000 carrying length-prefixed JPEG frames after a one-shot
// credential login packet.
package camera

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
)

// DefaultPort is the camera stream port.
const DefaultPort = 6000

// streamMagic identifies the camera stream protocol in packet headers.
const streamMagic = 0x3000

const headerSize = 16

// header is the fixed little-endian packet header. For inbound packets only
// Size is meaningful; the remaining words are reserved.
type header struct {
	Size  uint32
	Type  uint32
	Flags uint32
	Word3 uint32
}

func (h header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Size)
	binary.LittleEndian.PutUint32(buf[4:], h.Type)
	binary.LittleEndian.PutUint32(buf[8:], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:], h.Word3)
	return buf
}

func parseHeader(buf []byte) header {
	return header{
		Size:  binary.LittleEndian.Uint32(buf[0:]),
		Type:  binary.LittleEndian.Uint32(buf[4:]),
		Flags: binary.LittleEndian.Uint32(buf[8:]),
		Word3: binary.LittleEndian.Uint32(buf[12:]),
	}
}

// loginPacket builds the 0x40-byte authentication packet: a stream header
// followed by the username and password in zero-padded 32-byte fields.
// Credentials longer than 32 bytes are truncated, matching the firmware's
// fixed-width fields.
func loginPacket(user, pass string) []byte {
	buf := header{Size: 0x40, Type: streamMagic}.marshal()
	creds := make([]byte, 64)
	copy(creds[:32], user)
	copy(creds[32:], pass)
	return append(buf, creds...)
}

// Stream is an authenticated camera connection delivering raw frames.
type Stream struct {
	conn io.ReadWriteCloser
}

// Dial connects to the device camera and sends the login packet. The device
// certificate is self-signed, so verification is disabled as elsewhere.
func Dial(host string, port int, user, pass string) (*Stream, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return nil, fmt.Errorf("camera dial %s: %w", addr, err)
	}
	s := &Stream{conn: conn}
	if _, err := conn.Write(loginPacket(user, pass)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("camera login: %w", err)
	}
	return s, nil
}

// NextFrame reads one length-prefixed frame.
func (s *Stream) NextFrame() ([]byte, error) {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(s.conn, hdr); err != nil {
		return nil, fmt.Errorf("camera read header: %w", err)
	}
	h := parseHeader(hdr)
	frame := make([]byte, h.Size)
	if _, err := io.ReadFull(s.conn, frame); err != nil {
		return nil, fmt.Errorf("camera read frame: %w", err)
	}
	return frame, nil
}

// Copy streams frames to w until the connection breaks.
func (s *Stream) Copy(w io.Writer) error {
	for {
		frame, err := s.NextFrame()
		if err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
	}
}

// Close terminates the stream.
func (s *Stream) Close() error {
	return s.conn.Close()
}
