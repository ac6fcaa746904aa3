package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Stream event names.
const (
	EventCards = "cards"
	EventPing  = "ping"

	PingData = "keep-alive"
)

const (
	TypeCardsChanged = "cards-changed"

	// ScopeAny tells clients to refetch every card list they show.
	ScopeAny = "any"
)

// ChangeEvent is the payload of an EventCards frame. Clients treat it as a
// hint to refetch; it carries no card data.
type ChangeEvent struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
	TS    int64  `json:"ts"`
}

func NewChangeEvent(scope string, now time.Time) ChangeEvent {
	if scope == "" {
		scope = ScopeAny
	}
	return ChangeEvent{Type: TypeCardsChanged, Scope: scope, TS: now.Unix()}
}

func (e ChangeEvent) Validate() error {
	if e.Type != TypeCardsChanged {
		return fmt.Errorf("unsupported event type: %q", e.Type)
	}
	if e.Scope == "" {
		return errors.New("missing scope")
	}
	if e.TS <= 0 {
		return errors.New("missing ts")
	}
	return nil
}

// FrameVersion is the version of the WebSocket frame layout.
const FrameVersion = 1

// Frame is one WebSocket text message. Data is a ChangeEvent for EventCards
// and the JSON string PingData for EventPing.
type Frame struct {
	V     int             `json:"v"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func cardsFrame(ev ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{V: FrameVersion, Event: EventCards, Data: data})
}

func pingFrame() []byte {
	b, _ := json.Marshal(Frame{V: FrameVersion, Event: EventPing, Data: json.RawMessage(`"` + PingData + `"`)})
	return b
}
