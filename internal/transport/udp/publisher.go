// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"mixdeck/internal/audio"
	applog "mixdeck/internal/log"
)

// PositionSource is the read side of the engine the publisher polls.
type PositionSource interface {
	Tracks() []audio.TrackInfo
	IsPlaying() bool
}

// Packet is the decoded form of one position packet.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Playing   bool
	Tracks    []TrackPosition
}

type TrackPosition struct {
	TrackID  uint32
	Position float32
}

// UDPPublisher periodically samples track positions, packs them into a
// fixed binary format and sends them over UDP. Visualisers use it to
// animate playheads without polling the control plane.
type UDPPublisher struct {
	sender   *UDPSender
	source   PositionSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum  uint32
	packetBuffer *bytes.Buffer // Reused for every packet.
}

// NewUDPPublisher creates a publisher. An interval <= 0 defaults to 16ms
// (~60Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source PositionSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: position source cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is
// a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine and waits for it. Safe to call repeatedly.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Playing           | uint8          | 1            | 1 while playing         |
| Track Count       | uint16         | 2            | Number of entries (N)   |
| Entries           | N * entry      | N * 8        | uint32 id, float32 pos  |
+-----------------------------------------------------------------------------+
*/

// AppendPacket encodes one packet into buf.
func AppendPacket(buf *bytes.Buffer, seq uint32, ts time.Time, playing bool, tracks []audio.TrackInfo) error {
	var flag uint8
	if playing {
		flag = 1
	}
	if len(tracks) > 0xFFFF {
		return fmt.Errorf("too many tracks for one packet: %d", len(tracks))
	}

	header := []any{seq, ts.UnixNano(), flag, uint16(len(tracks))}
	for _, v := range header {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return err
		}
	}
	for _, t := range tracks {
		if err := binary.Write(buf, binary.BigEndian, uint32(t.ID)); err != nil {
			return err
		}
		if err := binary.Write(buf, binary.BigEndian, float32(t.Position)); err != nil {
			return err
		}
	}
	return nil
}

// ParsePacket decodes a packet produced by AppendPacket.
func ParsePacket(data []byte) (Packet, error) {
	var (
		pkt   Packet
		flag  uint8
		count uint16
	)
	r := bytes.NewReader(data)
	for _, v := range []any{&pkt.Sequence, &pkt.Timestamp, &flag, &count} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return Packet{}, fmt.Errorf("short packet header: %w", err)
		}
	}
	pkt.Playing = flag == 1

	pkt.Tracks = make([]TrackPosition, count)
	if err := binary.Read(r, binary.BigEndian, pkt.Tracks); err != nil {
		return Packet{}, fmt.Errorf("short packet body: %w", err)
	}
	return pkt, nil
}

func (p *UDPPublisher) buildAndSendPacket() {
	p.sequenceNum++
	p.packetBuffer.Reset()

	err := AppendPacket(p.packetBuffer, p.sequenceNum, time.Now(), p.source.IsPlaying(), p.source.Tracks())
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}

	packetBytes := p.packetBuffer.Bytes()
	if err := p.sender.Send(packetBytes); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packetBytes))
	}
}

// Close implements io.Closer by stopping the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
