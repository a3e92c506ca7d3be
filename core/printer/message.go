package printer

import "encoding/json"

// Request is the outbound wire envelope. Every command the device understands
// lives under the top-level "print" object.
type Request struct {
	Print any `json:"print"`
}

// Marshal encodes the request for publishing.
func (r Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Reply is a decoded inbound message that is not a status broadcast. The
// payload is kept as-is; the device does not document its reply schemas
// beyond the result/reason pair.
type Reply map[string]any

func (r Reply) print() map[string]any {
	p, _ := r["print"].(map[string]any)
	return p
}

// Result returns the print.result field, or "" when absent.
func (r Reply) Result() string {
	s, _ := r.print()["result"].(string)
	return s
}

// Reason returns the print.reason field, or "" when absent.
func (r Reply) Reason() string {
	s, _ := r.print()["reason"].(string)
	return s
}

// Succeeded reports whether the device accepted the command.
func (r Reply) Succeeded() bool { return r.Result() == "success" }

// Status is a decoded push_status broadcast.
type Status map[string]any

func (s Status) print() map[string]any {
	p, _ := s["print"].(map[string]any)
	return p
}

// GcodeState returns the reported machine state (RUNNING, PAUSE, FINISH, ...)
// or "" when the frame does not carry one.
func (s Status) GcodeState() string {
	v, _ := s.print()["gcode_state"].(string)
	return v
}

// Percent returns the print progression when reported.
func (s Status) Percent() (int, bool) {
	v, ok := s.print()["mc_percent"].(float64)
	return int(v), ok
}

// PrintError returns the device error code, zero when none.
func (s Status) PrintError() int64 {
	v, _ := s.print()["print_error"].(float64)
	return int64(v)
}

// IsPushStatus classifies an inbound payload: telemetry iff the print.command
// field equals "push_status". Everything else, malformed payloads included,
// counts as a reply.
func IsPushStatus(payload map[string]any) bool {
	p, ok := payload["print"].(map[string]any)
	if !ok {
		return false
	}
	cmd, _ := p["command"].(string)
	return cmd == "push_status"
}

// StatusHandler receives push_status frames. It runs on the delivery
// goroutine: a slow handler delays recognition of subsequent replies.
type StatusHandler func(Status)
