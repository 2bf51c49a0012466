package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("core/identity")

const pemTypeEd25519Private = "ED25519 PRIVATE KEY"

// 错误定义
var (
	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("invalid PEM data")
	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalidKey 密钥长度不正确
	ErrInvalidKey = errors.New("invalid ed25519 key")
)

// Identity 节点身份
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.PeerID
}

// Generate 生成新的随机身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 从私钥构造身份
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}
	pub := priv.Public().(ed25519.PublicKey)
	id, err := types.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, pub: pub, id: id}, nil
}

// PeerID 返回节点 ID
func (i *Identity) PeerID() types.PeerID {
	return i.id
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.pub
}

// Sign 对消息签名
func (i *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(i.priv, msg)
}

// Verify 用公钥验证签名，并返回该公钥对应的 PeerID
func Verify(pub []byte, msg, sig []byte) (types.PeerID, error) {
	if len(pub) != ed25519.PublicKeySize {
		return types.EmptyPeerID, ErrInvalidKey
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return types.EmptyPeerID, errors.New("identity: signature verification failed")
	}
	return types.PeerIDFromPublicKey(pub)
}

// ============================================================================
//                              私钥持久化
// ============================================================================

// Save 保存私钥到 PEM 文件
//
// 使用临时文件 + rename 的原子写，文件权限 0600。
func (i *Identity) Save(path string) error {
	data := pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeEd25519Private,
		Bytes: i.priv.Seed(),
	})

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".key-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load 从 PEM 文件加载身份
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeEd25519Private {
		return nil, ErrInvalidPEM
	}
	if len(block.Bytes) != ed25519.SeedSize {
		return nil, ErrInvalidKey
	}
	return FromPrivateKey(ed25519.NewKeyFromSeed(block.Bytes))
}

// LoadOrGenerate 加载密钥文件，不存在且允许时生成并保存
//
// path 为空时直接生成临时身份。
func LoadOrGenerate(path string, autoGenerate bool) (*Identity, error) {
	if path == "" {
		return Generate()
	}

	id, err := Load(path)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrKeyNotFound) || !autoGenerate {
		return nil, fmt.Errorf("load identity %s: %w", path, err)
	}

	id, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := id.Save(path); err != nil {
		return nil, fmt.Errorf("save identity %s: %w", path, err)
	}
	logger.Info("已生成新的节点身份", "peer", id.PeerID().ShortString(), "path", path)
	return id, nil
}
