// Package memnet 提供进程内网络引擎
//
// 同一个 Network 中的引擎通过 net.Pipe 互联，连接、流与协议协商
// 的语义与 TCP 引擎一致，用于测试和嵌入场景。
//
// 使用示例：
//
//	mn := memnet.NewNetwork()
//	a, _ := mn.NewPeer()
//	b, _ := mn.NewPeer()
//	addr, _ := b.Listen("")
//	peer, _ := a.Dial(ctx, addr)
package memnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/dep2p/go-nest/internal/core/engine"
	"github.com/dep2p/go-nest/internal/core/identity"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("core/engine/memnet")

// AddrPrefix 内存地址前缀
const AddrPrefix = "mem://"

var (
	// ErrUnknownAddr 地址上没有监听者
	ErrUnknownAddr = errors.New("memnet: no listener at address")

	// ErrSelfDial 拨号到自身
	ErrSelfDial = errors.New("memnet: dial to self")

	// ErrAddrInUse 地址已被占用
	ErrAddrInUse = errors.New("memnet: address in use")

	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("memnet: engine closed")

	// ErrProtocolNotSupported 对端不支持协议
	ErrProtocolNotSupported = errors.New("memnet: protocol not supported by remote")
)

// ============================================================================
//                              Network
// ============================================================================

// Network 进程内网络
//
// 所有连接状态由 Network 的互斥锁保护。
type Network struct {
	mu        sync.Mutex
	listeners map[string]*Engine
	engines   map[types.PeerID]*Engine
	nextAddr  int
}

// NewNetwork 创建进程内网络
func NewNetwork() *Network {
	return &Network{
		listeners: make(map[string]*Engine),
		engines:   make(map[types.PeerID]*Engine),
	}
}

// NewPeer 使用新生成的身份创建引擎
func (n *Network) NewPeer() (*Engine, error) {
	id, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	return n.NewEngine(id.PeerID()), nil
}

// NewEngine 创建本地节点为 local 的引擎
func (n *Network) NewEngine(local types.PeerID) *Engine {
	e := &Engine{
		net:       n,
		local:     local,
		conns:     make(map[types.PeerID]*link),
		protocols: make(map[types.ProtocolID]struct{}),
		events:    engine.NewEventQueue(),
	}
	n.mu.Lock()
	n.engines[local] = e
	n.mu.Unlock()
	return e
}

// Sever 模拟两端之间的传输中断，双方都收到以 cause 为原因的连接关闭事件
func (n *Network) Sever(a, b types.PeerID, cause error) {
	if cause == nil {
		cause = types.ErrTransportLost
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.engines[a]
	if !ok {
		return
	}
	l, ok := e.conns[b]
	if !ok {
		logger.Debug("未找到要中断的连接", "a", a.ShortString(), "b", b.ShortString())
		return
	}
	n.teardown(l, cause, cause)
}

// teardown 拆除一条连接（调用方持有 n.mu）
func (n *Network) teardown(l *link, localCause, remoteCause error) {
	a, b := l.a, l.b
	if a.conns[b.local] != l {
		return
	}
	delete(a.conns, b.local)
	delete(b.conns, a.local)
	for s := range l.streams {
		_ = s.conn.Close()
	}
	l.streams = nil

	a.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineConnClosed, Peer: b.local, Err: localCause})
	b.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineConnClosed, Peer: a.local, Err: remoteCause})
}

// link 两个引擎之间的一条连接
type link struct {
	a, b    *Engine
	streams map[*stream]struct{}
}

func (l *link) other(e *Engine) *Engine {
	if l.a == e {
		return l.b
	}
	return l.a
}

// ============================================================================
//                              Engine
// ============================================================================

// Engine 进程内网络引擎
type Engine struct {
	net   *Network
	local types.PeerID

	// 以下字段由 net.mu 保护
	addrs     []string
	conns     map[types.PeerID]*link
	protocols map[types.ProtocolID]struct{}
	closed    bool

	events *engine.EventQueue
}

var _ interfaces.Engine = (*Engine)(nil)

// LocalPeer 返回本地节点 ID
func (e *Engine) LocalPeer() types.PeerID {
	return e.local
}

// Listen 注册监听地址，空地址或 "mem://" 自动分配
func (e *Engine) Listen(addr string) (string, error) {
	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if e.closed {
		return "", ErrClosed
	}
	if addr == "" || addr == AddrPrefix {
		n.nextAddr++
		addr = fmt.Sprintf("%s%d", AddrPrefix, n.nextAddr)
	}
	if _, ok := n.listeners[addr]; ok {
		return "", fmt.Errorf("%w: %s", ErrAddrInUse, addr)
	}
	n.listeners[addr] = e
	e.addrs = append(e.addrs, addr)
	e.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineListening, Addr: addr})
	return addr, nil
}

// ListenAddrs 返回监听地址
func (e *Engine) ListenAddrs() []string {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	return append([]string(nil), e.addrs...)
}

// Dial 连接到 addr 上的引擎，已连接时直接返回对端 ID
func (e *Engine) Dial(ctx context.Context, addr string) (types.PeerID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()

	if e.closed {
		return "", ErrClosed
	}
	remote, ok := n.listeners[addr]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAddr, addr)
	}
	if remote == e || remote.local == e.local {
		return "", ErrSelfDial
	}
	if _, ok := e.conns[remote.local]; ok {
		return remote.local, nil
	}

	l := &link{a: e, b: remote, streams: make(map[*stream]struct{})}
	e.conns[remote.local] = l
	remote.conns[e.local] = l

	e.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineConnEstablished, Peer: remote.local, Addr: addr, Outbound: true})
	remote.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineConnEstablished, Peer: e.local, Addr: AddrPrefix + "inbound"})
	logger.Debug("内存连接已建立", "local", e.local.ShortString(), "remote", remote.local.ShortString())
	return remote.local, nil
}

// Disconnect 断开与对端的连接
func (e *Engine) Disconnect(peer types.PeerID) error {
	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()

	l, ok := e.conns[peer]
	if !ok {
		return types.ErrNotConnected
	}
	n.teardown(l, nil, types.ErrTransportLost)
	return nil
}

// IsConnected 检查连接状态
func (e *Engine) IsConnected(peer types.PeerID) bool {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	_, ok := e.conns[peer]
	return ok
}

// Peers 返回已连接对端
func (e *Engine) Peers() []types.PeerID {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	peers := make([]types.PeerID, 0, len(e.conns))
	for p := range e.conns {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// SetProtocols 设置入站可协商的协议
func (e *Engine) SetProtocols(protocols []types.ProtocolID) {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	e.protocols = make(map[types.ProtocolID]struct{}, len(protocols))
	for _, p := range protocols {
		e.protocols[p] = struct{}{}
	}
}

// OpenStream 打开到对端的协议流
func (e *Engine) OpenStream(ctx context.Context, peer types.PeerID, protocol types.ProtocolID) (interfaces.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()

	l, ok := e.conns[peer]
	if !ok {
		return nil, types.ErrNotConnected
	}
	remote := l.other(e)
	if _, ok := remote.protocols[protocol]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotSupported, protocol)
	}

	c1, c2 := net.Pipe()
	local := &stream{conn: c1, proto: protocol, remote: peer, link: l, net: n}
	inbound := &stream{conn: c2, proto: protocol, remote: e.local, link: l, net: n}
	l.streams[local] = struct{}{}
	l.streams[inbound] = struct{}{}

	remote.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineInboundStream, Peer: e.local, Stream: inbound})
	return local, nil
}

// Events 返回引擎事件通道
func (e *Engine) Events() <-chan interfaces.EngineEvent {
	return e.events.Events()
}

// Close 关闭引擎，对端收到连接关闭事件
func (e *Engine) Close() error {
	n := e.net
	n.mu.Lock()
	if e.closed {
		n.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, addr := range e.addrs {
		if n.listeners[addr] == e {
			delete(n.listeners, addr)
		}
	}
	for _, l := range e.conns {
		n.teardown(l, nil, types.ErrTransportLost)
	}
	delete(n.engines, e.local)
	n.mu.Unlock()

	e.events.Close()
	return nil
}

// ============================================================================
//                              stream
// ============================================================================

type stream struct {
	conn   net.Conn
	proto  types.ProtocolID
	remote types.PeerID
	link   *link
	net    *Network
}

var _ interfaces.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.conn.Write(p) }

func (s *stream) Close() error {
	s.forget()
	return s.conn.Close()
}

func (s *stream) Reset() error {
	return s.Close()
}

func (s *stream) Protocol() types.ProtocolID { return s.proto }
func (s *stream) RemotePeer() types.PeerID   { return s.remote }

func (s *stream) forget() {
	s.net.mu.Lock()
	delete(s.link.streams, s)
	s.net.mu.Unlock()
}
