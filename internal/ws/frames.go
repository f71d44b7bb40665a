package ws

import (
	"encoding/json"

	"clubimpact/internal/domain"
)

// Inbound frame types.
const (
	FrameJoin    = "join"
	FrameLeave   = "leave"
	FrameMessage = "message"
)

// InboundFrame is what clients send: {"type","clubId","body"}.
type InboundFrame struct {
	Type   string `json:"type"`
	ClubID string `json:"clubId"`
	Body   string `json:"body"`
}

func ParseFrame(raw []byte) (InboundFrame, error) {
	var f InboundFrame
	err := json.Unmarshal(raw, &f)
	return f, err
}

// ErrorFrame builds the outbound {"event":"error"} frame.
func ErrorFrame(clubID, message string) []byte {
	data, _ := json.Marshal(domain.Envelope{
		Event: domain.SocketEventError,
		Data: map[string]string{
			"clubId":  clubID,
			"message": message,
		},
	})
	return data
}
