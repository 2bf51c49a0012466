package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPeerIDFromPublicKey 测试从公钥派生 PeerID
func TestPeerIDFromPublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	id, err := PeerIDFromPublicKey(pub)
	require.NoError(t, err)
	assert.False(t, id.IsEmpty())
	assert.NoError(t, id.Validate())

	// 同一公钥派生的 ID 稳定
	again, err := PeerIDFromPublicKey(pub)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	parsed, err := ParsePeerID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Len(t, id.ShortString(), 8)
}

// TestPeerID_Validate 测试非法 PeerID
func TestPeerID_Validate(t *testing.T) {
	assert.ErrorIs(t, EmptyPeerID.Validate(), ErrEmptyPeerID)
	assert.ErrorIs(t, PeerID("0OIl").Validate(), ErrInvalidPeerID)
	assert.ErrorIs(t, PeerID("abc").Validate(), ErrInvalidPeerID)

	_, err := PeerIDFromPublicKey(nil)
	assert.ErrorIs(t, err, ErrInvalidPeerID)
}

// TestTransferKey_String 测试复合键展示
func TestTransferKey_String(t *testing.T) {
	k := TransferKey{Peer: "12D3KooWabcdefgh", ID: 42}
	assert.Equal(t, "12D3KooW/42", k.String())
}
