// Package sse serves the event stream as Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/eventcast/internal/port/broadcast"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Encode renders msg as one SSE frame: optional id and event lines, one
// data line with the JSON-encoded payload, and a terminating blank line.
func Encode(msg broadcast.Message) ([]byte, error) {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s payload: %w", msg.Topic, err)
	}

	var b bytes.Buffer
	if msg.ID != "" {
		b.WriteString("id: ")
		b.WriteString(lineBreaks.Replace(msg.ID))
		b.WriteByte('\n')
	}
	if msg.Topic != "" {
		b.WriteString("event: ")
		b.WriteString(lineBreaks.Replace(msg.Topic))
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")
	return b.Bytes(), nil
}
