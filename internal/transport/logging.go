// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync/atomic"

	applog "mixdeck/internal/log"
)

// LoggingTransport writes every engine event to the log. main adds it to the
// bridge in debug mode.
type LoggingTransport struct {
	sent atomic.Int64
}

func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a Message as "<type> <event json>", anything else as JSON.
func (lt *LoggingTransport) Send(data any) error {
	lt.sent.Add(1)

	if msg, ok := data.(Message); ok {
		event, err := json.Marshal(msg.Event)
		if err != nil {
			applog.Infof("Event %s: %+v", msg.Type, msg.Event)
			return nil
		}
		applog.Infof("Event %s: %s", msg.Type, event)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		applog.Infof("LOG_TRANSPORT: Received (%T): %+v (JSON marshal error: %v)", data, data, err)
		return nil
	}
	applog.Infof("LOG_TRANSPORT: %s", jsonData)
	return nil
}

// Sent counts the values passed to Send.
func (lt *LoggingTransport) Sent() int64 { return lt.sent.Load() }

func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: closed after %d events", lt.sent.Load())
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
