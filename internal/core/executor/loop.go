package executor

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              控制循环
// ============================================================================

// run 控制循环
//
// 每次迭代等待任一来源就绪，然后对每个来源最多处理 FairnessLimit 条，
// 最后执行期限检查。所有处理器回调都在此 goroutine 内串行执行。
func (e *Executor) run() {
	ticker := e.clock.Ticker(e.cfg.TickInterval.Duration())
	defer ticker.Stop()

	engineEvents := e.engine.Events()

	for {
		select {
		case <-e.stopping:
			e.shutdown()
			return
		case req := <-e.cmds:
			e.dispatch(req)
		case ev, ok := <-engineEvents:
			if !ok {
				engineEvents = nil
				logger.Error("网络引擎事件通道已关闭")
				break
			}
			e.handleEngineEvent(ev)
		case msg := <-e.inbox:
			e.handleInbox(msg)
		case <-ticker.C:
		}

		e.drainCommands()
		engineEvents = e.drainEngine(engineEvents)
		e.drainInbox()
		e.sweep(e.clock.Now())
		e.metrics.LoopIteration()
	}
}

func (e *Executor) drainCommands() {
	for i := 0; i < e.cfg.FairnessLimit; i++ {
		select {
		case req := <-e.cmds:
			e.dispatch(req)
		default:
			return
		}
	}
}

func (e *Executor) drainEngine(ch <-chan interfaces.EngineEvent) <-chan interfaces.EngineEvent {
	if ch == nil {
		return nil
	}
	for i := 0; i < e.cfg.FairnessLimit; i++ {
		select {
		case ev, ok := <-ch:
			if !ok {
				logger.Error("网络引擎事件通道已关闭")
				return nil
			}
			e.handleEngineEvent(ev)
		default:
			return ch
		}
	}
	return ch
}

func (e *Executor) drainInbox() {
	for i := 0; i < e.cfg.FairnessLimit; i++ {
		select {
		case msg := <-e.inbox:
			e.handleInbox(msg)
		default:
			return
		}
	}
}

// sweep 期限检查：挂起表与各处理器的带期限记录
func (e *Executor) sweep(now time.Time) {
	e.pending.sweep(now)
	e.metrics.SetPending(e.pending.len())

	for _, slot := range e.order {
		s := slot
		e.guard(s, "", nil, func() error {
			s.h.Sweep(now)
			return nil
		})
	}
}

// shutdown 停止流程，只在循环 goroutine 内调用一次
func (e *Executor) shutdown() {
	logger.Info("执行器正在停止", "pending", e.pending.len())

	e.cancel()

	for _, slot := range e.order {
		s := slot
		e.guard(s, "", nil, func() error {
			s.h.Close()
			return nil
		})
	}

	e.pending.failAll(types.ErrExecutorShutDown)

	for key, o := range e.outbound {
		o.close()
		delete(e.outbound, key)
	}
	for in := range e.inbound {
		in.reset()
		delete(e.inbound, in)
	}

	if err := e.engine.Close(); err != nil {
		logger.Warn("关闭网络引擎失败", "error", err)
	}

	// 排队中尚未处理的命令
	for {
		select {
		case req := <-e.cmds:
			req.Reply(nil, types.ErrExecutorShutDown)
			continue
		default:
		}
		break
	}

	e.bus.Close()
	e.wg.Wait()
	close(e.done)
	logger.Info("执行器已停止")
}

// ============================================================================
//                              命令分派
// ============================================================================

func (e *Executor) dispatch(req *types.Request) {
	e.metrics.CommandHandled(fmt.Sprintf("%T", req.Cmd))

	proto := req.Cmd.Protocol()
	if proto.IsEmpty() {
		e.handleSwarmCommand(req)
		return
	}

	slot, ok := e.handlers[proto]
	if !ok {
		req.Reply(nil, fmt.Errorf("%w: %s", types.ErrUnknownProtocol, proto))
		return
	}

	failed := e.guard(slot, "", nil, func() error {
		slot.h.HandleCommand(req)
		return nil
	})
	if failed {
		req.Reply(nil, fmt.Errorf("%w: %s", types.ErrHandlerFailed, proto))
	}
}

// guard 调用处理器回调，panic 与错误被转换为 EvtHandlerFailed
//
// input 为回调处理的帧或内部消息，用于定位受影响的实体，可为 nil。
// 返回回调是否失败。执行器在处理器失败后继续运行。
func (e *Executor) guard(slot *handlerSlot, peer types.PeerID, input any, fn func() error) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			failed = true
			err := fmt.Errorf("%w: panic: %v", types.ErrHandlerFailed, r)
			logger.Error("协议处理器崩溃",
				"protocol", slot.proto,
				"peer", peer.ShortString(),
				"panic", r,
				"stack", string(debug.Stack()))
			e.handlerFailed(slot, peer, input, err)
		}
	}()

	if err := fn(); err != nil {
		logger.Debug("协议处理器返回错误", "protocol", slot.proto, "peer", peer.ShortString(), "error", err)
		e.handlerFailed(slot, peer, input, err)
		return true
	}
	return false
}

func (e *Executor) handlerFailed(slot *handlerSlot, peer types.PeerID, input any, err error) {
	e.metrics.HandlerFailed(slot.proto)
	entity := e.failEntity(slot, peer, input, err)
	e.publish(&types.EvtHandlerFailed{
		BaseEvent: types.NewBaseEventAt(types.EventTypeHandlerFailed, e.clock.Now()),
		Protocol:  slot.proto,
		Peer:      peer,
		Entity:    entity,
		Err:       err,
	})
}

// failEntity 交由处理器终结出错的实体，自身 panic 时放弃
func (e *Executor) failEntity(slot *handlerSlot, peer types.PeerID, input any, err error) (entity string) {
	if input == nil {
		return ""
	}
	f, ok := slot.h.(entityFailer)
	if !ok {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("终结实体时处理器崩溃", "protocol", slot.proto, "panic", r)
			entity = ""
		}
	}()
	return f.FailEntity(peer, input, err)
}

// ============================================================================
//                              引擎事件
// ============================================================================

func (e *Executor) handleEngineEvent(ev interfaces.EngineEvent) {
	switch ev.Kind {
	case interfaces.EngineConnEstablished:
		e.onConnected(ev.Peer, ev.Addr, ev.Outbound)

	case interfaces.EngineConnClosed:
		e.onDisconnected(ev.Peer, ev.Err)

	case interfaces.EngineInboundStream:
		e.onInboundStream(ev.Stream)

	case interfaces.EngineListening:
		e.publish(&types.EvtListening{
			BaseEvent: types.NewBaseEventAt(types.EventTypeListening, e.clock.Now()),
			Addr:      ev.Addr,
		})

	default:
		e.publish(&types.EvtEngine{
			BaseEvent: types.NewBaseEventAt(types.EventTypeEngine, e.clock.Now()),
			Payload:   ev.Payload,
		})
	}
}

func (e *Executor) onConnected(peer types.PeerID, addr string, outbound bool) {
	if _, ok := e.connected[peer]; ok {
		return
	}
	e.connected[peer] = struct{}{}
	logger.Debug("连接已建立", "peer", peer.ShortString(), "addr", addr, "outbound", outbound)

	e.publish(&types.EvtConnectionEstablished{
		BaseEvent: types.NewBaseEventAt(types.EventTypeConnectionEstablished, e.clock.Now()),
		Peer:      peer,
		Addr:      addr,
		Outbound:  outbound,
	})

	for _, slot := range e.order {
		s := slot
		e.guard(s, peer, nil, func() error {
			s.h.PeerConnected(peer)
			return nil
		})
	}
}

func (e *Executor) onDisconnected(peer types.PeerID, cause error) {
	if _, ok := e.connected[peer]; !ok {
		return
	}
	delete(e.connected, peer)

	for key, o := range e.outbound {
		if key.peer == peer {
			o.close()
			delete(e.outbound, key)
		}
	}

	if cause == nil {
		cause = types.ErrTransportLost
	}
	logger.Debug("连接已关闭", "peer", peer.ShortString(), "cause", cause)

	e.publish(&types.EvtConnectionClosed{
		BaseEvent: types.NewBaseEventAt(types.EventTypeConnectionClosed, e.clock.Now()),
		Peer:      peer,
		Cause:     cause,
	})

	for _, slot := range e.order {
		s := slot
		e.guard(s, peer, nil, func() error {
			s.h.PeerDisconnected(peer, cause)
			return nil
		})
	}
}

func (e *Executor) onInboundStream(s interfaces.Stream) {
	if s == nil {
		return
	}
	slot, ok := e.handlers[s.Protocol()]
	if !ok {
		logger.Debug("入站流协议未注册", "protocol", s.Protocol(), "peer", s.RemotePeer().ShortString())
		_ = s.Reset()
		return
	}
	e.startInbound(slot, s)
}

// ============================================================================
//                              内部消息
// ============================================================================

func (e *Executor) handleInbox(msg any) {
	switch m := msg.(type) {
	case *frameMsg:
		e.onFrame(m)

	case *inboundClosed:
		delete(e.inbound, m.in)

	case *outboundFailed:
		if cur, ok := e.outbound[m.o.key]; ok && cur == m.o {
			delete(e.outbound, m.o.key)
		}
		logger.Warn("出站流失败", "peer", m.o.key.peer.ShortString(), "protocol", m.o.key.proto, "error", m.err)

	case *dialDone:
		e.onDialDone(m)

	case *listenDone:
		e.onListenDone(m)

	case *handlerMsg:
		slot, ok := e.handlers[m.proto]
		if !ok {
			return
		}
		e.guard(slot, "", m.msg, func() error {
			slot.h.HandleInternal(m.msg)
			return nil
		})

	default:
		logger.Warn("未知的内部消息", "type", fmt.Sprintf("%T", msg))
	}
}

func (e *Executor) onFrame(m *frameMsg) {
	// 连接关闭后到达的残余帧
	if _, ok := e.connected[m.peer]; !ok {
		return
	}
	slot, ok := e.handlers[m.proto]
	if !ok {
		return
	}
	e.guard(slot, m.peer, m.body, func() error {
		return slot.h.HandleFrame(m.peer, m.body)
	})
}

func (e *Executor) onDialDone(m *dialDone) {
	if m.err != nil {
		logger.Debug("拨号失败", "addr", m.addr, "error", m.err)
		e.publish(&types.EvtDialFailed{
			BaseEvent: types.NewBaseEventAt(types.EventTypeDialFailed, e.clock.Now()),
			Addr:      m.addr,
			Err:       m.err,
		})
		e.pending.resolve(m.id, nil, m.err)
		return
	}

	// 拨号结果可能先于引擎的连接事件到达
	if e.engine.IsConnected(m.peer) {
		e.onConnected(m.peer, m.addr, true)
	}
	e.pending.resolve(m.id, m.peer, nil)
}

func (e *Executor) onListenDone(m *listenDone) {
	if m.err != nil {
		logger.Warn("监听失败", "addr", m.addr, "error", m.err)
	}
	e.pending.resolve(m.id, m.addr, m.err)
}
