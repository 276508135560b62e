// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "mixdeck/internal/log"
)

var ErrSenderClosed = errors.New("udp sender closed")

// SenderStats counts what a sender has put on the wire.
type SenderStats struct {
	Packets uint64
	Bytes   uint64
	Errors  uint64
}

// UDPSender writes position packets to one connected peer.
type UDPSender struct {
	mu   sync.Mutex // guards conn against Close
	conn *net.UDPConn

	packets atomic.Uint64
	bytes   atomic.Uint64
	errs    atomic.Uint64
}

// NewUDPSender dials targetAddress ("host:port"). No packet is sent until
// Send is called.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve UDP target %q: %w", targetAddress, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial UDP target %q: %w", targetAddress, err)
	}

	applog.Infof("UDP Sender: publishing positions to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// RemoteAddr is the peer address, empty once closed.
func (s *UDPSender) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

// Send writes one datagram. A failed write is counted and returned; the
// sender stays usable.
func (s *UDPSender) Send(packet []byte) error {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return ErrSenderClosed
	}
	n, err := s.conn.Write(packet)
	s.mu.Unlock()

	if err != nil {
		s.errs.Add(1)
		applog.Debugf("UDP Sender: write failed: %v", err)
		return fmt.Errorf("send UDP packet: %w", err)
	}
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
	return nil
}

func (s *UDPSender) Stats() SenderStats {
	return SenderStats{
		Packets: s.packets.Load(),
		Bytes:   s.bytes.Load(),
		Errors:  s.errs.Load(),
	}
}

// Close releases the socket. Safe to call repeatedly.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	stats := s.Stats()
	applog.Debugf("UDP Sender: closing %s after %d packets (%d bytes, %d errors)",
		s.conn.RemoteAddr(), stats.Packets, stats.Bytes, stats.Errors)

	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close UDP connection: %w", err)
	}
	return nil
}
