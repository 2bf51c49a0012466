package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-nest/pkg/types"
)

// ============================================================================
//                              Swarm 命令
// ============================================================================

// swarmCommand 由执行器自身处理的命令
type swarmCommand struct{}

// Protocol 执行器命令没有协议
func (swarmCommand) Protocol() types.ProtocolID { return "" }

// CmdListen 在地址上开始监听，应答实际绑定的地址（string）
type CmdListen struct {
	swarmCommand
	Addr string
}

// CmdDial 拨号，应答对端节点 ID（types.PeerID）
type CmdDial struct {
	swarmCommand
	Addr string
}

// CmdDisconnect 断开对端，应答 nil
type CmdDisconnect struct {
	swarmCommand
	Peer types.PeerID
}

// CmdIsConnected 检查连接状态，应答 bool
type CmdIsConnected struct {
	swarmCommand
	Peer types.PeerID
}

// CmdListConnected 列出已连接对端，应答 []types.PeerID（有序）
type CmdListConnected struct {
	swarmCommand
}

// CmdListListeners 列出监听地址，应答 []string
type CmdListListeners struct {
	swarmCommand
}

// handleSwarmCommand 处理执行器自身的命令
//
// 调用方已放弃的命令仍然执行，只是应答被丢弃。
func (e *Executor) handleSwarmCommand(req *types.Request) {
	switch cmd := req.Cmd.(type) {
	case *CmdListen:
		id := e.pending.park(req, time.Time{})
		addr := cmd.Addr
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			bound, err := e.engine.Listen(addr)
			if err != nil {
				e.post(&listenDone{id: id, addr: addr, err: err})
				return
			}
			e.post(&listenDone{id: id, addr: bound})
		}()

	case *CmdDial:
		deadline := e.clock.Now().Add(e.cfg.DialTimeout.Duration())
		id := e.pending.park(req, deadline)
		addr := cmd.Addr
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			ctx, cancel := context.WithTimeout(e.ctx, e.cfg.DialTimeout.Duration())
			defer cancel()
			peer, err := e.engine.Dial(ctx, addr)
			e.post(&dialDone{id: id, addr: addr, peer: peer, err: err})
		}()

	case *CmdDisconnect:
		if err := cmd.Peer.Validate(); err != nil {
			req.Reply(nil, err)
			return
		}
		if err := e.engine.Disconnect(cmd.Peer); err != nil {
			req.Reply(nil, err)
			return
		}
		req.Reply(nil, nil)

	case *CmdIsConnected:
		_, ok := e.connected[cmd.Peer]
		req.Reply(ok, nil)

	case *CmdListConnected:
		req.Reply(e.connectedPeers(), nil)

	case *CmdListListeners:
		req.Reply(e.engine.ListenAddrs(), nil)

	default:
		req.Reply(nil, fmt.Errorf("%w: %T", types.ErrUnknownCommand, req.Cmd))
	}
}
