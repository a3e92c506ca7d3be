// Package simulator provides a scripted printer used by tests: it answers
// decoded request payloads the way a device would and fabricates status
// broadcast frames.
package simulator

import (
	"encoding/json"
	"sync"
)

// ReplyFunc computes the reply body for one received print command. The
// argument is the decoded print object of the request.
type ReplyFunc func(cmd map[string]any) map[string]any

// Device emulates the content-level behavior of a printer. It is transport
// agnostic: tests wire HandleRequest and StatusFrame into whatever fake
// transport they drive the client with.
type Device struct {
	Serial string

	mu       sync.Mutex
	handlers map[string]ReplyFunc
	requests []map[string]any
}

func New(serial string) *Device {
	return &Device{
		Serial:   serial,
		handlers: make(map[string]ReplyFunc),
	}
}

// Handle scripts the reply for the given print command.
func (d *Device) Handle(command string, fn ReplyFunc) {
	d.mu.Lock()
	d.handlers[command] = fn
	d.mu.Unlock()
}

// HandleResult scripts a plain result reply for the given command.
func (d *Device) HandleResult(command, result string) {
	d.Handle(command, func(cmd map[string]any) map[string]any {
		return map[string]any{"command": command, "result": result}
	})
}

// HandleRequest decodes one published request and returns the scripted reply
// payload. The second return is false when no handler is scripted for the
// command, in which case the device stays silent, as real firmware does for
// commands it does not know.
func (d *Device) HandleRequest(payload []byte) ([]byte, bool) {
	var req map[string]any
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, false
	}
	cmd, _ := req["print"].(map[string]any)
	name, _ := cmd["command"].(string)

	d.mu.Lock()
	d.requests = append(d.requests, cmd)
	fn := d.handlers[name]
	d.mu.Unlock()
	if fn == nil {
		return nil, false
	}

	body := fn(cmd)
	raw, err := json.Marshal(map[string]any{"print": body})
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Requests returns the decoded print objects received so far, in order.
func (d *Device) Requests() []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]map[string]any, len(d.requests))
	copy(out, d.requests)
	return out
}

// StatusFrame fabricates a push_status broadcast carrying the given fields.
func (d *Device) StatusFrame(fields map[string]any) []byte {
	body := map[string]any{"command": "push_status"}
	for k, v := range fields {
		body[k] = v
	}
	raw, _ := json.Marshal(map[string]any{"print": body})
	return raw
}
