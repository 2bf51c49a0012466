package advertise

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-nest/pkg/lib/frame"
	"github.com/dep2p/go-nest/pkg/types"
)

// msgKind 消息类别
type msgKind uint64

const (
	kindQuery msgKind = iota + 1
	kindAnswer
	kindSet
	kindSetResult
)

func (k msgKind) String() string {
	switch k {
	case kindQuery:
		return "QUERY"
	case kindAnswer:
		return "ANSWER"
	case kindSet:
		return "SET"
	case kindSetResult:
		return "SET_RESULT"
	default:
		return fmt.Sprintf("kind(%d)", uint64(k))
	}
}

const (
	fieldKind protowire.Number = 1
	fieldReq  protowire.Number = 2
	fieldFlag protowire.Number = 3
	fieldPeer protowire.Number = 4
)

type message struct {
	kind  msgKind
	req   uint64
	flag  bool
	peers []types.PeerID
}

func (m *message) encode() []byte {
	b := frame.AppendVarint(nil, fieldKind, uint64(m.kind))
	b = frame.AppendVarint(b, fieldReq, m.req)
	if m.kind != kindQuery {
		b = frame.AppendBool(b, fieldFlag, m.flag)
	}
	for _, p := range m.peers {
		b = frame.AppendString(b, fieldPeer, string(p))
	}
	return b
}

func decodeMessage(body []byte) (*message, error) {
	m := &message{}
	var hasReq bool
	err := frame.Fields(body, func(f frame.Field) error {
		switch f.Num {
		case fieldKind:
			m.kind = msgKind(f.Varint)
		case fieldReq:
			m.req = f.Varint
			hasReq = true
		case fieldFlag:
			m.flag = f.Varint != 0
		case fieldPeer:
			if len(f.Bytes) == 0 {
				return fmt.Errorf("%w: empty peer", ErrInvalidMessage)
			}
			m.peers = append(m.peers, types.PeerID(f.Bytes))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.kind < kindQuery || m.kind > kindSetResult {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidMessage, uint64(m.kind))
	}
	if !hasReq {
		return nil, fmt.Errorf("%w: %s without req", ErrInvalidMessage, m.kind)
	}
	if len(m.peers) > 0 && m.kind != kindAnswer {
		return nil, fmt.Errorf("%w: peers in %s", ErrInvalidMessage, m.kind)
	}
	return m, nil
}
