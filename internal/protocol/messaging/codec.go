package messaging

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-nest/pkg/lib/frame"
)

// msgKind 消息类别
type msgKind uint64

const (
	kindMsg msgKind = iota + 1
	kindAck
)

func (k msgKind) String() string {
	switch k {
	case kindMsg:
		return "MSG"
	case kindAck:
		return "ACK"
	default:
		return fmt.Sprintf("kind(%d)", uint64(k))
	}
}

const (
	fieldKind    protowire.Number = 1
	fieldID      protowire.Number = 2
	fieldPayload protowire.Number = 3
	fieldSentAt  protowire.Number = 4
)

// frameSlack 负载之外的帧头余量
const frameSlack = 1024

// maxIDLen 消息 ID 长度上限
const maxIDLen = 128

// wireMsg 协议消息
type wireMsg struct {
	kind    msgKind
	id      string
	payload []byte
	sentAt  time.Time
}

func (m *wireMsg) encode() []byte {
	b := frame.AppendVarint(nil, fieldKind, uint64(m.kind))
	b = frame.AppendString(b, fieldID, m.id)
	if m.kind == kindMsg {
		b = frame.AppendBytes(b, fieldPayload, m.payload)
		if !m.sentAt.IsZero() {
			b = frame.AppendVarint(b, fieldSentAt, uint64(m.sentAt.UnixMilli()))
		}
	}
	return b
}

func decodeWire(body []byte) (*wireMsg, error) {
	m := &wireMsg{}
	err := frame.Fields(body, func(f frame.Field) error {
		switch f.Num {
		case fieldKind:
			m.kind = msgKind(f.Varint)
		case fieldID:
			m.id = string(f.Bytes)
		case fieldPayload:
			m.payload = f.Bytes
		case fieldSentAt:
			m.sentAt = time.UnixMilli(int64(f.Varint))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.kind != kindMsg && m.kind != kindAck {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidMessage, uint64(m.kind))
	}
	if m.id == "" || len(m.id) > maxIDLen {
		return nil, fmt.Errorf("%w: %s with bad id", ErrInvalidMessage, m.kind)
	}
	return m, nil
}

func ackMsg(id string) []byte {
	m := wireMsg{kind: kindAck, id: id}
	return m.encode()
}
