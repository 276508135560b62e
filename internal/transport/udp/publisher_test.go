// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"mixdeck/internal/audio"
)

type fakeSource struct{}

func (fakeSource) Tracks() []audio.TrackInfo {
	return []audio.TrackInfo{
		{ID: 1, Position: 0.25},
		{ID: 7, Position: 0.5},
	}
}

func (fakeSource) IsPlaying() bool { return true }

func TestPacketLayout(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Unix(0, 1234567890)
	if err := AppendPacket(&buf, 9, ts, true, fakeSource{}.Tracks()); err != nil {
		t.Fatalf("AppendPacket: %v", err)
	}
	if got, want := buf.Len(), 4+8+1+2+2*8; got != want {
		t.Fatalf("packet size = %d, want %d", got, want)
	}

	pkt, err := ParsePacket(buf.Bytes())
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if pkt.Sequence != 9 || pkt.Timestamp != 1234567890 || !pkt.Playing {
		t.Errorf("header = %+v", pkt)
	}
	want := []TrackPosition{{1, 0.25}, {7, 0.5}}
	if len(pkt.Tracks) != 2 || pkt.Tracks[0] != want[0] || pkt.Tracks[1] != want[1] {
		t.Errorf("tracks = %+v, want %+v", pkt.Tracks, want)
	}
}

func TestParsePacketShort(t *testing.T) {
	if _, err := ParsePacket([]byte{0, 0, 0, 1}); err == nil {
		t.Error("expected error for truncated packet")
	}
}

func TestPublisherSendsPackets(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	sender, err := NewUDPSender(ln.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender: %v", err)
	}
	defer sender.Close()

	pub, err := NewUDPPublisher(time.Millisecond, sender, fakeSource{})
	if err != nil {
		t.Fatalf("NewUDPPublisher: %v", err)
	}
	pub.Start()
	defer pub.Close()

	ln.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1500)
	n, _, err := ln.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	pkt, err := ParsePacket(buf[:n])
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if pkt.Sequence == 0 || len(pkt.Tracks) != 2 {
		t.Errorf("packet = %+v", pkt)
	}

	if err := pub.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := pub.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	stats := sender.Stats()
	if stats.Packets == 0 || stats.Bytes < uint64(n) {
		t.Errorf("Stats = %+v after at least one %d byte packet", stats, n)
	}
}

func TestNewUDPPublisherRejectsNil(t *testing.T) {
	if _, err := NewUDPPublisher(0, nil, fakeSource{}); err == nil {
		t.Error("expected error for nil sender")
	}
}

func TestSenderClosed(t *testing.T) {
	sender, err := NewUDPSender("127.0.0.1:9")
	if err != nil {
		t.Fatalf("NewUDPSender: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v, want ErrSenderClosed", err)
	}
	if sender.RemoteAddr() != "" {
		t.Errorf("RemoteAddr after Close = %q", sender.RemoteAddr())
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
