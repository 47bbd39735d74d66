package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// ErrInvalidSSEData marks event data that cannot be framed as a single data line.
var ErrInvalidSSEData = errors.New("sse data contains a line break")

// SendSSEEvent writes a named event whose data is plain text. Text must not
// contain newlines; each data line would otherwise be split by the client.
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) error {
	if strings.ContainsAny(data, "\r\n") {
		return fmt.Errorf("%w: event %q", ErrInvalidSSEData, event)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write sse event %q: %w", event, err)
	}
	flusher.Flush()
	return nil
}

// SendSSEJSON 发送带事件类型的JSON数据
func SendSSEJSON(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	return SendSSEEvent(w, flusher, event, string(data))
}
