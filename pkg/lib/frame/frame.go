// Package frame 实现协议流上的长度前缀帧
//
// 帧格式：uvarint 长度前缀 + protobuf wire 格式的消息体。
// 帧体内第 1 个字段约定为消息类别，其余字段由各协议自行定义。
package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrFrameTooLarge 帧长度超过上限
	ErrFrameTooLarge = errors.New("frame: frame too large")

	// ErrMalformed 帧体不是合法的 wire 格式
	ErrMalformed = errors.New("frame: malformed body")
)

// DefaultMaxSize 默认最大帧长度
const DefaultMaxSize = 1 << 20

// ============================================================================
//                              写入
// ============================================================================

// Append 将带长度前缀的帧追加到 dst
func Append(dst, body []byte) []byte {
	dst = append(dst, varint.ToUvarint(uint64(len(body)))...)
	return append(dst, body...)
}

// Write 将一帧写入 w（单次 Write 调用）
func Write(w io.Writer, body []byte) error {
	buf := Append(make([]byte, 0, varint.UvarintSize(uint64(len(body)))+len(body)), body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ============================================================================
//                              读取
// ============================================================================

// Reader 从流中逐帧读取
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader 创建帧读取器，max <= 0 时使用 DefaultMaxSize
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxSize
	}
	return &Reader{br: bufio.NewReader(r), max: max}
}

// Next 读取下一帧的帧体
//
// 流在帧边界处结束时返回 io.EOF，帧中途结束返回 io.ErrUnexpectedEOF。
func (r *Reader) Next() ([]byte, error) {
	length, err := varint.ReadUvarint(r.br)
	if err != nil {
		return nil, err
	}
	if length > uint64(r.max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, r.max)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r.br, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// ============================================================================
//                              帧体字段
// ============================================================================

// Field 帧体中的一个字段
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64
	Bytes  []byte
}

// Fields 依次遍历帧体中的字段
//
// 只认识 varint 与 bytes 两种类型，其他类型被跳过。
func Fields(body []byte, fn func(f Field) error) error {
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		body = body[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(body)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			f.Varint = v
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(body)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			f.Bytes = v
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, body)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			body = body[m:]
			continue
		}
		body = body[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// AppendVarint 追加 varint 字段
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendBytes 追加 bytes 字段
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendString 追加 string 字段
func AppendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendBool 追加 bool 字段
func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	return AppendVarint(b, num, protowire.EncodeBool(v))
}
