package engine

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-nest/internal/core/identity"
	"github.com/dep2p/go-nest/pkg/lib/frame"
	"github.com/dep2p/go-nest/pkg/types"
)

// HandshakeProtocol 握手协议标识
const HandshakeProtocol = "/nest/handshake/1.0.0"

const (
	nonceSize        = 32
	maxHandshakeSize = 1024

	fieldHelloProtocol = 1
	fieldHelloPubKey   = 2
	fieldHelloNonce    = 3
	fieldProofSig      = 1
)

var signaturePrefix = []byte("nest-handshake:")

// ErrHandshake 握手失败
var ErrHandshake = errors.New("engine: handshake failed")

type hello struct {
	protocol string
	pubKey   []byte
	nonce    []byte
}

// handshake 在原始连接上互相证明身份，返回对端 PeerID
//
// 双方同时发送 hello（公钥 + 随机数），再各自对对端随机数签名。
// 签名内容包含签名方公钥，防止证明被转发到其他连接。
func handshake(rw io.ReadWriter, id *identity.Identity) (types.PeerID, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := frame.AppendString(nil, fieldHelloProtocol, HandshakeProtocol)
	out = frame.AppendBytes(out, fieldHelloPubKey, id.PublicKey())
	out = frame.AppendBytes(out, fieldHelloNonce, nonce)
	if err := frame.Write(rw, out); err != nil {
		return "", fmt.Errorf("%w: write hello: %v", ErrHandshake, err)
	}

	body, err := readFrame(rw)
	if err != nil {
		return "", fmt.Errorf("%w: read hello: %v", ErrHandshake, err)
	}
	remote, err := decodeHello(body)
	if err != nil {
		return "", err
	}
	if remote.protocol != HandshakeProtocol {
		return "", fmt.Errorf("%w: unsupported protocol %q", ErrHandshake, remote.protocol)
	}
	if len(remote.nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad nonce", ErrHandshake)
	}
	if bytes.Equal(remote.pubKey, id.PublicKey()) {
		return "", fmt.Errorf("%w: connected to self", ErrHandshake)
	}

	sig := id.Sign(proofMessage(remote.nonce, id.PublicKey()))
	if err := frame.Write(rw, frame.AppendBytes(nil, fieldProofSig, sig)); err != nil {
		return "", fmt.Errorf("%w: write proof: %v", ErrHandshake, err)
	}

	body, err = readFrame(rw)
	if err != nil {
		return "", fmt.Errorf("%w: read proof: %v", ErrHandshake, err)
	}
	var remoteSig []byte
	err = frame.Fields(body, func(f frame.Field) error {
		if f.Num == fieldProofSig {
			remoteSig = f.Bytes
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	peer, err := identity.Verify(remote.pubKey, proofMessage(nonce, remote.pubKey), remoteSig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return peer, nil
}

func decodeHello(body []byte) (hello, error) {
	var h hello
	err := frame.Fields(body, func(f frame.Field) error {
		switch f.Num {
		case fieldHelloProtocol:
			h.protocol = string(f.Bytes)
		case fieldHelloPubKey:
			h.pubKey = append([]byte(nil), f.Bytes...)
		case fieldHelloNonce:
			h.nonce = append([]byte(nil), f.Bytes...)
		}
		return nil
	})
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return h, nil
}

// readFrame 不带缓冲地读取一帧，握手之后的字节留给 yamux
func readFrame(r io.Reader) ([]byte, error) {
	length, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, err
	}
	if length > maxHandshakeSize {
		return nil, frame.ErrFrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func proofMessage(nonce, pubKey []byte) []byte {
	msg := make([]byte, 0, len(signaturePrefix)+len(nonce)+len(pubKey))
	msg = append(msg, signaturePrefix...)
	msg = append(msg, nonce...)
	return append(msg, pubKey...)
}
