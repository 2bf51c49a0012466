package types

import "time"

// Message 点对点直发消息
type Message struct {
	ID      string
	From    PeerID
	To      PeerID
	Payload []byte
	SentAt  time.Time
}

// EvtMessageReceived 收到对端消息
type EvtMessageReceived struct {
	BaseEvent
	Message Message
}
