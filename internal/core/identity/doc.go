// Package identity 提供节点身份
//
// 身份为 Ed25519 密钥对：
//   - PeerID 由公钥的 sha2-256 multihash 经 Base58 编码派生
//   - 私钥以 PEM 格式持久化（原子写，权限 0600）
//   - 引擎握手时用私钥对挑战签名
package identity
