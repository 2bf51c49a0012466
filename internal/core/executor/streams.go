package executor

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/lib/frame"
	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              循环内部消息
// ============================================================================

type frameMsg struct {
	proto types.ProtocolID
	peer  types.PeerID
	body  []byte
}

type inboundClosed struct {
	in *inStream
}

type outboundFailed struct {
	o   *outStream
	err error
}

type dialDone struct {
	id   types.CorrelationID
	addr string
	peer types.PeerID
	err  error
}

type listenDone struct {
	id   types.CorrelationID
	addr string
	err  error
}

type handlerMsg struct {
	proto types.ProtocolID
	msg   any
}

// ============================================================================
//                              出站流
// ============================================================================

type streamKey struct {
	peer  types.PeerID
	proto types.ProtocolID
}

// outStream 到 (peer, protocol) 的出站帧队列
//
// 写 goroutine 惰性打开流并按入队顺序写出，保证同一对端同一协议的帧有序。
// 队列不设上限：入队永不失败，积压由各协议自己的窗口约束。
type outStream struct {
	key    streamKey
	signal chan struct{}
	quit   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	pending   [][]byte
	stream    interfaces.Stream
}

func newOutStream(key streamKey) *outStream {
	return &outStream{
		key:    key,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
}

// push 入队一帧并唤醒写 goroutine
func (o *outStream) push(body []byte) {
	o.mu.Lock()
	o.pending = append(o.pending, body)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

// take 取出当前积压的全部帧
func (o *outStream) take() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}

func (o *outStream) close() {
	o.closeOnce.Do(func() {
		close(o.quit)
		o.mu.Lock()
		o.pending = nil
		if o.stream != nil {
			_ = o.stream.Close()
		}
		o.mu.Unlock()
	})
}

// sendFrame 将帧排入出站队列（仅循环内调用）
//
// 只有对端未连接时失败，队列积压不会让发送失败。
func (e *Executor) sendFrame(proto types.ProtocolID, peer types.PeerID, body []byte) error {
	if _, ok := e.connected[peer]; !ok {
		return types.ErrNotConnected
	}

	key := streamKey{peer: peer, proto: proto}
	o, ok := e.outbound[key]
	if !ok {
		o = newOutStream(key)
		e.outbound[key] = o
		e.wg.Add(1)
		go e.writeLoop(o)
	}
	o.push(body)
	return nil
}

func (e *Executor) writeLoop(o *outStream) {
	defer e.wg.Done()

	fail := func(err error) {
		o.close()
		e.post(&outboundFailed{o: o, err: err})
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.DialTimeout.Duration())
	s, err := e.engine.OpenStream(ctx, o.key.peer, o.key.proto)
	cancel()
	if err != nil {
		fail(err)
		return
	}

	o.mu.Lock()
	select {
	case <-o.quit:
		o.mu.Unlock()
		_ = s.Reset()
		return
	default:
	}
	o.stream = s
	o.mu.Unlock()

	for {
		select {
		case <-o.quit:
			return
		case <-o.signal:
		}
		for _, body := range o.take() {
			if err := frame.Write(s, body); err != nil {
				_ = s.Reset()
				fail(err)
				return
			}
		}
	}
}

// ============================================================================
//                              入站流
// ============================================================================

type inStream struct {
	proto  types.ProtocolID
	peer   types.PeerID
	stream interfaces.Stream
}

func (in *inStream) reset() {
	_ = in.stream.Reset()
}

func (e *Executor) startInbound(slot *handlerSlot, s interfaces.Stream) {
	in := &inStream{proto: slot.proto, peer: s.RemotePeer(), stream: s}
	e.inbound[in] = struct{}{}
	e.wg.Add(1)
	go e.readLoop(in, slot.maxFrame)
}

// readLoop 读取入站流的帧并投递到循环
func (e *Executor) readLoop(in *inStream, maxFrame int) {
	defer e.wg.Done()

	r := frame.NewReader(in.stream, maxFrame)
	for {
		body, err := r.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("入站流读取结束", "peer", in.peer.ShortString(), "protocol", in.proto, "error", err)
			}
			if errors.Is(err, frame.ErrFrameTooLarge) || errors.Is(err, frame.ErrMalformed) {
				in.reset()
			} else {
				_ = in.stream.Close()
			}
			e.post(&inboundClosed{in: in})
			return
		}
		if !e.post(&frameMsg{proto: in.proto, peer: in.peer, body: body}) {
			return
		}
	}
}
