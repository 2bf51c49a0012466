package executor

import (
	"time"

	"github.com/dep2p/go-nest/pkg/interfaces"
	"github.com/dep2p/go-nest/pkg/types"
)

// handlerCtx 交给单个协议处理器的执行器能力
type handlerCtx struct {
	e    *Executor
	slot *handlerSlot
}

var _ interfaces.HandlerContext = (*handlerCtx)(nil)

func (c *handlerCtx) LocalPeer() types.PeerID {
	return c.e.engine.LocalPeer()
}

func (c *handlerCtx) Now() time.Time {
	return c.e.clock.Now()
}

func (c *handlerCtx) Emit(ev types.Event) {
	if ev == nil {
		return
	}
	c.e.publish(ev)
}

func (c *handlerCtx) SendFrame(peer types.PeerID, frame []byte) error {
	return c.e.sendFrame(c.slot.proto, peer, frame)
}

func (c *handlerCtx) Disconnect(peer types.PeerID) {
	if err := c.e.engine.Disconnect(peer); err != nil {
		logger.Debug("断开对端失败", "peer", peer.ShortString(), "protocol", c.slot.proto, "error", err)
	}
}

func (c *handlerCtx) IsConnected(peer types.PeerID) bool {
	_, ok := c.e.connected[peer]
	return ok
}

func (c *handlerCtx) Park(req *types.Request, deadline time.Time) types.CorrelationID {
	return c.e.pending.park(req, deadline)
}

func (c *handlerCtx) Resolve(id types.CorrelationID, v any, err error) bool {
	return c.e.pending.resolve(id, v, err)
}

func (c *handlerCtx) Post(msg any) bool {
	return c.e.post(&handlerMsg{proto: c.slot.proto, msg: msg})
}
