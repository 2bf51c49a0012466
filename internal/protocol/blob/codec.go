package blob

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-nest/pkg/lib/frame"
	"github.com/dep2p/go-nest/pkg/types"
)

// msgKind 消息类别
type msgKind uint64

const (
	kindOffer msgKind = iota + 1
	kindAccept
	kindReject
	kindChunk
	kindAck
	kindCancel
	kindAbort
)

// String 返回消息类别名称
func (k msgKind) String() string {
	switch k {
	case kindOffer:
		return "OFFER"
	case kindAccept:
		return "ACCEPT"
	case kindReject:
		return "REJECT"
	case kindChunk:
		return "CHUNK"
	case kindAck:
		return "ACK"
	case kindCancel:
		return "CANCEL"
	case kindAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("kind(%d)", uint64(k))
	}
}

const (
	fieldKind        protowire.Number = 1
	fieldID          protowire.Number = 2
	fieldSize        protowire.Number = 3
	fieldName        protowire.Number = 4
	fieldDigest      protowire.Number = 5
	fieldCompression protowire.Number = 6
	fieldReason      protowire.Number = 7
	fieldSeq         protowire.Number = 8
	fieldData        protowire.Number = 9
	fieldFinal       protowire.Number = 10
	fieldCompressed  protowire.Number = 11
)

// frameSlack 数据块之外的帧头余量
const frameSlack = 1024

// maxNameLen 文件名长度上限
const maxNameLen = 255

var errMalformed = errors.New("malformed blob message")

// message 协议消息，按类别使用其中的字段
type message struct {
	kind msgKind
	id   types.BlobID

	// OFFER
	size        uint64
	name        string
	compression types.Compression

	// REJECT / ABORT 的原因；ABORT 使用 FailureKind
	reason uint64

	// CHUNK / ACK
	seq        uint64
	data       []byte
	final      bool
	compressed bool

	// OFFER 中的声明摘要，或最后一个 CHUNK 中的计算摘要
	digest []byte
}

func (m *message) encode() []byte {
	b := frame.AppendVarint(nil, fieldKind, uint64(m.kind))
	b = frame.AppendVarint(b, fieldID, uint64(m.id))

	switch m.kind {
	case kindOffer:
		b = frame.AppendVarint(b, fieldSize, m.size)
		if m.name != "" {
			b = frame.AppendString(b, fieldName, m.name)
		}
		if len(m.digest) > 0 {
			b = frame.AppendBytes(b, fieldDigest, m.digest)
		}
		if m.compression != types.CompressionNone {
			b = frame.AppendString(b, fieldCompression, string(m.compression))
		}
	case kindReject, kindAbort:
		b = frame.AppendVarint(b, fieldReason, m.reason)
	case kindChunk:
		b = frame.AppendVarint(b, fieldSeq, m.seq)
		b = frame.AppendBytes(b, fieldData, m.data)
		b = frame.AppendBool(b, fieldFinal, m.final)
		b = frame.AppendBool(b, fieldCompressed, m.compressed)
		if len(m.digest) > 0 {
			b = frame.AppendBytes(b, fieldDigest, m.digest)
		}
	case kindAck:
		b = frame.AppendVarint(b, fieldSeq, m.seq)
		b = frame.AppendBool(b, fieldFinal, m.final)
	}
	return b
}

func decodeMessage(body []byte) (*message, error) {
	m := &message{}
	var hasID bool
	err := frame.Fields(body, func(f frame.Field) error {
		switch f.Num {
		case fieldKind:
			m.kind = msgKind(f.Varint)
		case fieldID:
			m.id = types.BlobID(f.Varint)
			hasID = true
		case fieldSize:
			m.size = f.Varint
		case fieldName:
			m.name = string(f.Bytes)
		case fieldDigest:
			m.digest = f.Bytes
		case fieldCompression:
			m.compression = types.Compression(f.Bytes)
		case fieldReason:
			m.reason = f.Varint
		case fieldSeq:
			m.seq = f.Varint
		case fieldData:
			m.data = f.Bytes
		case fieldFinal:
			m.final = f.Varint != 0
		case fieldCompressed:
			m.compressed = f.Varint != 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.kind < kindOffer || m.kind > kindAbort {
		return nil, fmt.Errorf("%w: unknown kind %d", errMalformed, uint64(m.kind))
	}
	if !hasID {
		return nil, fmt.Errorf("%w: %s without id", errMalformed, m.kind)
	}
	return m, nil
}

// peekTransfer 从可能损坏的帧中尽量读出消息类别与传输编号
func peekTransfer(body []byte) (msgKind, types.BlobID, bool) {
	var (
		kind  msgKind
		id    types.BlobID
		hasID bool
	)
	_ = frame.Fields(body, func(f frame.Field) error {
		switch f.Num {
		case fieldKind:
			kind = msgKind(f.Varint)
		case fieldID:
			id, hasID = types.BlobID(f.Varint), true
		}
		return nil
	})
	if !hasID || kind < kindOffer || kind > kindAbort {
		return 0, 0, false
	}
	return kind, id, true
}

func offerMsg(id types.BlobID, d types.BlobDescriptor) []byte {
	m := message{kind: kindOffer, id: id, size: d.Size, name: d.Name, digest: d.Digest, compression: d.Compression}
	return m.encode()
}

func acceptMsg(id types.BlobID) []byte {
	m := message{kind: kindAccept, id: id}
	return m.encode()
}

func rejectMsg(id types.BlobID, reason types.RejectReason) []byte {
	m := message{kind: kindReject, id: id, reason: uint64(reason)}
	return m.encode()
}

func ackMsg(id types.BlobID, seq uint64, final bool) []byte {
	m := message{kind: kindAck, id: id, seq: seq, final: final}
	return m.encode()
}

func cancelMsg(id types.BlobID) []byte {
	m := message{kind: kindCancel, id: id}
	return m.encode()
}

func abortMsg(id types.BlobID, kind types.FailureKind) []byte {
	m := message{kind: kindAbort, id: id, reason: uint64(kind)}
	return m.encode()
}
