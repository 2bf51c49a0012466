package executor

import (
	"time"

	"github.com/dep2p/go-nest/pkg/types"
)

// pendingTable 挂起请求表
//
// 请求在等待网络往返期间停放在这里，由关联 ID 找回。
// 只在循环 goroutine 内访问。
type pendingTable struct {
	next    types.CorrelationID
	entries map[types.CorrelationID]*pendingEntry
}

type pendingEntry struct {
	req      *types.Request
	deadline time.Time
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: make(map[types.CorrelationID]*pendingEntry),
	}
}

// park 停放请求，deadline 为零表示不限时
func (t *pendingTable) park(req *types.Request, deadline time.Time) types.CorrelationID {
	t.next++
	id := t.next
	t.entries[id] = &pendingEntry{req: req, deadline: deadline}
	return id
}

// resolve 应答并移除请求，返回请求是否仍在表中
func (t *pendingTable) resolve(id types.CorrelationID, v any, err error) bool {
	entry, ok := t.entries[id]
	if !ok {
		return false
	}
	delete(t.entries, id)
	entry.req.Reply(v, err)
	return true
}

// sweep 移除调用方已放弃的请求，到期请求以 ErrTimeout 应答
func (t *pendingTable) sweep(now time.Time) int {
	removed := 0
	for id, entry := range t.entries {
		switch {
		case entry.req.Abandoned():
			delete(t.entries, id)
			removed++
		case !entry.deadline.IsZero() && !now.Before(entry.deadline):
			delete(t.entries, id)
			entry.req.Reply(nil, types.ErrTimeout)
			removed++
		}
	}
	return removed
}

// failAll 以 err 应答所有请求并清空表
func (t *pendingTable) failAll(err error) {
	for id, entry := range t.entries {
		entry.req.Reply(nil, err)
		delete(t.entries, id)
	}
}

func (t *pendingTable) len() int {
	return len(t.entries)
}
