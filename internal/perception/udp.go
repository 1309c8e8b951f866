package perception

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// pollInterval bounds how long a read blocks before ctx is checked again.
const pollInterval = 200 * time.Millisecond

// UDPSource receives one detection per datagram from the face detector.
type UDPSource struct {
	conn *net.UDPConn
	buf  []byte
}

// ListenUDP binds addr (e.g. ":9750") and returns a source reading from it.
// bufSize <= 0 defaults to 2048 bytes.
func ListenUDP(addr string, bufSize int) (*UDPSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if bufSize <= 0 {
		bufSize = 2048
	}
	debug.Info("Perception: listening for detections on udp %s", conn.LocalAddr())
	return &UDPSource{conn: conn, buf: make([]byte, bufSize)}, nil
}

// Addr returns the bound local address.
func (s *UDPSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Next blocks until a well-formed datagram arrives or ctx is done.
// Malformed datagrams are logged and skipped.
func (s *UDPSource) Next(ctx context.Context) (tracking.Detection, error) {
	for {
		if err := ctx.Err(); err != nil {
			return tracking.Detection{}, err
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return tracking.Detection{}, err
		}
		n, from, err := s.conn.ReadFromUDP(s.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return tracking.Detection{}, fmt.Errorf("read detection: %w", err)
		}
		det, err := ParseDetection(string(s.buf[:n]))
		if err != nil {
			debug.Live("Perception: dropping datagram from %s: %v", from, err)
			continue
		}
		return det, nil
	}
}

// Close releases the socket.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
