package link

import (
	"context"
	"fmt"
	"net"

	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// UDPSender sends each command as a "stepX,stepY" CSV datagram.
type UDPSender struct {
	conn *net.UDPConn
}

// NewUDPSender creates a UDP sender for the given address.
func NewUDPSender(addr string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &UDPSender{conn: conn}, nil
}

// Drive writes one datagram. ctx is only checked up front; a UDP write
// does not block.
func (s *UDPSender) Drive(ctx context.Context, cmd tracking.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(s.conn, "%d,%d", cmd.StepX, cmd.StepY)
	return err
}

// Close releases the UDP socket.
func (s *UDPSender) Close() error {
	return s.conn.Close()
}
