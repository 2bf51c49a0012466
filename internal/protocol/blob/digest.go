package blob

import (
	"bytes"
	"fmt"
	"hash"

	mh "github.com/multiformats/go-multihash"
	"lukechampine.com/blake3"
)

const digestSize = 32

func newHasher() hash.Hash {
	return blake3.New(digestSize, nil)
}

// encodeDigest 将 blake3 摘要包装为 multihash
func encodeDigest(sum []byte) []byte {
	out, err := mh.Encode(sum, mh.BLAKE3)
	if err != nil {
		return nil
	}
	return out
}

// Digest 计算数据的 blake3 multihash 摘要
func Digest(data []byte) []byte {
	h := newHasher()
	h.Write(data)
	return encodeDigest(h.Sum(nil))
}

// validDigest 检查 multihash 是否为支持的 blake3 摘要
func validDigest(d []byte) error {
	dec, err := mh.Decode(d)
	if err != nil {
		return err
	}
	if dec.Code != mh.BLAKE3 {
		return fmt.Errorf("unsupported digest %s", dec.Name)
	}
	if dec.Length != digestSize {
		return fmt.Errorf("digest length %d", dec.Length)
	}
	return nil
}

// matchDigest 比较期望摘要与实际计算的 blake3 值
func matchDigest(expected, sum []byte) bool {
	dec, err := mh.Decode(expected)
	if err != nil || dec.Code != mh.BLAKE3 {
		return false
	}
	return bytes.Equal(dec.Digest, sum)
}
