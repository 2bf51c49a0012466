package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"
	tec "github.com/jbenet/go-temp-err-catcher"
	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/identity"
	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/log"
	"github.com/dep2p/go-nest/pkg/types"
)

var logger = log.Logger("core/engine")

var (
	// ErrEngineClosed 引擎已关闭
	ErrEngineClosed = errors.New("engine closed")

	// ErrSelfDial 拨号到自身
	ErrSelfDial = errors.New("engine: dial to self")
)

// ============================================================================
//                              Engine
// ============================================================================

// Engine TCP 参考网络引擎
//
// 每条 TCP 连接先完成 Ed25519 握手，然后以 yamux 多路复用；
// 每条流用 multistream-select 协商协议。同一对端只保留一条连接。
type Engine struct {
	id  *identity.Identity
	cfg config.TransportConfig
	ymx *yamux.Config

	mu        sync.Mutex
	listeners []net.Listener
	addrs     []string
	conns     map[types.PeerID]*conn
	mux       *mss.MultistreamMuxer[string]

	events *EventQueue
	group  errgroup.Group
	closed atomic.Bool
}

var _ interfaces.Engine = (*Engine)(nil)

// conn 到单个对端的多路复用连接
type conn struct {
	peer     types.PeerID
	addr     string
	outbound bool
	sess     *yamux.Session

	// localClose 由本端 Disconnect 关闭
	localClose atomic.Bool
}

// New 创建 TCP 引擎
func New(id *identity.Identity, cfg config.TransportConfig) (*Engine, error) {
	if id == nil {
		return nil, fmt.Errorf("%w: identity is nil", types.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ymx := yamux.DefaultConfig()
	ymx.EnableKeepAlive = true
	ymx.KeepAliveInterval = cfg.KeepAliveInterval.Duration()
	ymx.MaxStreamWindowSize = cfg.MaxStreamWindowSize
	ymx.StreamOpenTimeout = cfg.StreamOpenTimeout.Duration()
	ymx.LogOutput = io.Discard
	if err := yamux.VerifyConfig(ymx); err != nil {
		return nil, fmt.Errorf("yamux config: %w", err)
	}

	return &Engine{
		id:     id,
		cfg:    cfg,
		ymx:    ymx,
		conns:  make(map[types.PeerID]*conn),
		mux:    mss.NewMultistreamMuxer[string](),
		events: NewEventQueue(),
	}, nil
}

// LocalPeer 返回本地节点 ID
func (e *Engine) LocalPeer() types.PeerID {
	return e.id.PeerID()
}

// ============================================================================
//                              监听
// ============================================================================

// Listen 在 host:port 上监听 TCP，返回实际绑定的地址
func (e *Engine) Listen(addr string) (string, error) {
	if e.closed.Load() {
		return "", ErrEngineClosed
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	bound := l.Addr().String()

	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.addrs = append(e.addrs, bound)
	e.mu.Unlock()

	e.group.Go(func() error {
		return e.acceptLoop(l)
	})

	logger.Info("开始监听", "addr", bound)
	e.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineListening, Addr: bound})
	return bound, nil
}

// ListenAddrs 返回监听地址
func (e *Engine) ListenAddrs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.addrs...)
}

func (e *Engine) acceptLoop(l net.Listener) error {
	catcher := &tec.TempErrCatcher{}
	for {
		c, err := l.Accept()
		if err != nil {
			if e.closed.Load() {
				return nil
			}
			if catcher.IsTemporary(err) {
				continue
			}
			logger.Warn("接受连接失败，停止监听", "addr", l.Addr().String(), "error", err)
			return nil
		}
		e.group.Go(func() error {
			e.handleInbound(c)
			return nil
		})
	}
}

func (e *Engine) handleInbound(c net.Conn) {
	_ = c.SetDeadline(time.Now().Add(e.cfg.HandshakeTimeout.Duration()))
	peer, err := handshake(c, e.id)
	if err != nil {
		logger.Debug("入站握手失败", "remote", c.RemoteAddr().String(), "error", err)
		_ = c.Close()
		return
	}
	_ = c.SetDeadline(time.Time{})

	sess, err := yamux.Server(c, e.ymx)
	if err != nil {
		_ = c.Close()
		return
	}
	e.addConn(peer, c.RemoteAddr().String(), false, sess)
}

// ============================================================================
//                              拨号与连接
// ============================================================================

// Dial 拨号并完成握手，已连接时直接返回对端 ID
func (e *Engine) Dial(ctx context.Context, addr string) (types.PeerID, error) {
	if e.closed.Load() {
		return "", ErrEngineClosed
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout.Duration())
	defer cancel()

	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}

	deadline, _ := ctx.Deadline()
	_ = c.SetDeadline(deadline)
	peer, err := handshake(c, e.id)
	if err != nil {
		_ = c.Close()
		return "", err
	}
	_ = c.SetDeadline(time.Time{})

	if peer == e.LocalPeer() {
		_ = c.Close()
		return "", ErrSelfDial
	}

	sess, err := yamux.Client(c, e.ymx)
	if err != nil {
		_ = c.Close()
		return "", err
	}
	e.addConn(peer, addr, true, sess)
	return peer, nil
}

// addConn 登记新连接；与同一对端已有连接时关闭新连接
func (e *Engine) addConn(peer types.PeerID, addr string, outbound bool, sess *yamux.Session) {
	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		_ = sess.Close()
		return
	}
	if existing, ok := e.conns[peer]; ok && !existing.sess.IsClosed() {
		e.mu.Unlock()
		logger.Debug("已存在到对端的连接，关闭重复连接", "peer", peer.ShortString())
		_ = sess.Close()
		return
	}
	c := &conn{peer: peer, addr: addr, outbound: outbound, sess: sess}
	e.conns[peer] = c
	e.mu.Unlock()

	logger.Info("连接已建立", "peer", peer.ShortString(), "addr", addr, "outbound", outbound)
	e.events.Push(interfaces.EngineEvent{
		Kind:     interfaces.EngineConnEstablished,
		Peer:     peer,
		Addr:     addr,
		Outbound: outbound,
	})

	e.group.Go(func() error {
		e.serveConn(c)
		return nil
	})
}

// serveConn 接受入站流直到连接关闭
func (e *Engine) serveConn(c *conn) {
	for {
		s, err := c.sess.AcceptStream()
		if err != nil {
			break
		}
		e.group.Go(func() error {
			e.negotiateInbound(c, s)
			return nil
		})
	}

	e.mu.Lock()
	if e.conns[c.peer] == c {
		delete(e.conns, c.peer)
	}
	e.mu.Unlock()

	var cause error
	if !c.localClose.Load() {
		cause = types.ErrTransportLost
	}
	logger.Info("连接已关闭", "peer", c.peer.ShortString(), "local", c.localClose.Load())
	e.events.Push(interfaces.EngineEvent{Kind: interfaces.EngineConnClosed, Peer: c.peer, Err: cause})
}

func (e *Engine) negotiateInbound(c *conn, s *yamux.Stream) {
	e.mu.Lock()
	mux := e.mux
	e.mu.Unlock()

	_ = s.SetDeadline(time.Now().Add(e.cfg.StreamOpenTimeout.Duration()))
	proto, _, err := mux.Negotiate(s)
	if err != nil {
		logger.Debug("入站流协议协商失败", "peer", c.peer.ShortString(), "error", err)
		_ = s.Close()
		return
	}
	_ = s.SetDeadline(time.Time{})

	e.events.Push(interfaces.EngineEvent{
		Kind:   interfaces.EngineInboundStream,
		Peer:   c.peer,
		Stream: &stream{s: s, proto: types.ProtocolID(proto), peer: c.peer},
	})
}

// Disconnect 关闭与对端的连接
func (e *Engine) Disconnect(peer types.PeerID) error {
	e.mu.Lock()
	c, ok := e.conns[peer]
	e.mu.Unlock()
	if !ok {
		return types.ErrNotConnected
	}
	c.localClose.Store(true)
	return c.sess.Close()
}

// IsConnected 检查连接状态
func (e *Engine) IsConnected(peer types.PeerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[peer]
	return ok && !c.sess.IsClosed()
}

// Peers 返回已连接对端
func (e *Engine) Peers() []types.PeerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	peers := make([]types.PeerID, 0, len(e.conns))
	for p := range e.conns {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// ============================================================================
//                              协议流
// ============================================================================

// SetProtocols 替换入站可协商的协议集合
func (e *Engine) SetProtocols(protocols []types.ProtocolID) {
	mux := mss.NewMultistreamMuxer[string]()
	for _, p := range protocols {
		mux.AddHandler(string(p), nil)
	}
	e.mu.Lock()
	e.mux = mux
	e.mu.Unlock()
}

// OpenStream 打开到对端的流并协商协议
func (e *Engine) OpenStream(ctx context.Context, peer types.PeerID, protocol types.ProtocolID) (interfaces.Stream, error) {
	e.mu.Lock()
	c, ok := e.conns[peer]
	e.mu.Unlock()
	if !ok {
		return nil, types.ErrNotConnected
	}

	s, err := c.sess.OpenStream()
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	deadline := time.Now().Add(e.cfg.StreamOpenTimeout.Duration())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.SetDeadline(deadline)
	if err := mss.SelectProtoOrFail(string(protocol), s); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("select %s: %w", protocol, err)
	}
	_ = s.SetDeadline(time.Time{})

	return &stream{s: s, proto: protocol, peer: peer}, nil
}

// Events 返回引擎事件通道
func (e *Engine) Events() <-chan interfaces.EngineEvent {
	return e.events.Events()
}

// Close 关闭监听器与所有连接，等待后台 goroutine 退出
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	listeners := e.listeners
	e.listeners = nil
	conns := make([]*conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	for _, c := range conns {
		c.localClose.Store(true)
		err = multierr.Append(err, c.sess.Close())
	}
	err = multierr.Append(err, e.group.Wait())
	e.events.Close()

	logger.Info("网络引擎已关闭")
	return err
}

// ============================================================================
//                              stream
// ============================================================================

type stream struct {
	s     *yamux.Stream
	proto types.ProtocolID
	peer  types.PeerID
}

var _ interfaces.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error)  { return s.s.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.s.Write(p) }
func (s *stream) Close() error                { return s.s.Close() }

// Reset yamux 流没有单独的复位帧，直接关闭
func (s *stream) Reset() error { return s.s.Close() }

func (s *stream) Protocol() types.ProtocolID { return s.proto }
func (s *stream) RemotePeer() types.PeerID   { return s.peer }
