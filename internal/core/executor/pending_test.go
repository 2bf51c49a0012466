package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nest/pkg/types"
)

type nopCmd struct{}

func (nopCmd) Protocol() types.ProtocolID { return "/test/nop" }

// TestPendingTable_ParkResolve 测试停放与解决
func TestPendingTable_ParkResolve(t *testing.T) {
	pt := newPendingTable()
	req := types.NewRequest(context.Background(), nopCmd{})

	id1 := pt.park(req, time.Time{})
	id2 := pt.park(types.NewRequest(context.Background(), nopCmd{}), time.Time{})
	assert.Less(t, uint64(id1), uint64(id2), "关联 ID 单调递增")
	assert.Equal(t, 2, pt.len())

	assert.True(t, pt.resolve(id1, "ok", nil))
	assert.False(t, pt.resolve(id1, "again", nil), "同一 ID 只能解决一次")

	v, err := req.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, pt.len())
}

// TestPendingTable_SweepDeadline 测试到期请求以超时应答
func TestPendingTable_SweepDeadline(t *testing.T) {
	pt := newPendingTable()
	now := time.Unix(1000, 0)

	expiring := types.NewRequest(context.Background(), nopCmd{})
	unbounded := types.NewRequest(context.Background(), nopCmd{})
	pt.park(expiring, now.Add(time.Second))
	pt.park(unbounded, time.Time{})

	assert.Equal(t, 0, pt.sweep(now.Add(999*time.Millisecond)), "期限之前不超时")
	assert.Equal(t, 1, pt.sweep(now.Add(time.Second)))

	_, err := expiring.Wait(context.Background())
	assert.ErrorIs(t, err, types.ErrTimeout)
	assert.Equal(t, 1, pt.len(), "零期限请求不会超时")
}

// TestPendingTable_SweepAbandoned 测试调用方放弃的请求被惰性移除
func TestPendingTable_SweepAbandoned(t *testing.T) {
	pt := newPendingTable()
	ctx, cancel := context.WithCancel(context.Background())

	req := types.NewRequest(ctx, nopCmd{})
	id := pt.park(req, time.Time{})
	assert.Equal(t, 0, pt.sweep(time.Now()))

	cancel()
	assert.Equal(t, 1, pt.sweep(time.Now()))
	assert.Equal(t, 0, pt.len())
	assert.False(t, pt.resolve(id, nil, nil))
}

// TestPendingTable_FailAll 测试停止时全部失败
func TestPendingTable_FailAll(t *testing.T) {
	pt := newPendingTable()
	reqs := make([]*types.Request, 3)
	for i := range reqs {
		reqs[i] = types.NewRequest(context.Background(), nopCmd{})
		pt.park(reqs[i], time.Time{})
	}

	pt.failAll(types.ErrExecutorShutDown)
	assert.Equal(t, 0, pt.len())
	for _, req := range reqs {
		_, err := req.Wait(context.Background())
		assert.ErrorIs(t, err, types.ErrExecutorShutDown)
	}
}
