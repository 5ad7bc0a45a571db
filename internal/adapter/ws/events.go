package ws

import (
	"encoding/json"
	"fmt"

	"github.com/Strob0t/eventcast/internal/port/broadcast"
)

// Frame is the JSON text message sent for every broadcast message.
type Frame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Encode renders msg as a Frame.
func Encode(msg broadcast.Message) ([]byte, error) {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("ws: encode %s payload: %w", msg.Topic, err)
	}
	return json.Marshal(Frame{ID: msg.ID, Event: msg.Topic, Data: data})
}
