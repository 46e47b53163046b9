package mpvipc

import (
	"bytes"
	"encoding/json"
)

// Response is mpv's reply to a command. Error is "success" when the
// command was accepted.
type Response struct {
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID int64           `json:"request_id,omitempty"`
}

// OK reports whether mpv accepted the command.
func (r *Response) OK() bool {
	return r != nil && r.Error == "success"
}

// FirstReply extracts the first well-formed reply object from buf.
//
// mpv interleaves asynchronous event notifications ({"event":...}) with
// replies on the same socket. Event lines, malformed lines and a trailing
// partial line are skipped. It returns ok=false if buf holds no reply.
func FirstReply(buf []byte) (*Response, bool) {
	for len(buf) > 0 {
		var line []byte
		line, buf, _ = bytes.Cut(buf, []byte{'\n'})

		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(line, &fields); err != nil {
			continue
		}
		if _, isEvent := fields["event"]; isEvent {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		return &resp, true
	}
	return nil, false
}
