package types

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCmd struct{}

func (testCmd) Protocol() ProtocolID { return "/test/1.0.0" }

// TestRequest_ReplyOnce 测试应答只投递一次
func TestRequest_ReplyOnce(t *testing.T) {
	req := NewRequest(context.Background(), testCmd{})
	require.True(t, req.ExpectsReply())

	assert.True(t, req.Reply(1, nil))
	assert.False(t, req.Reply(2, errors.New("late")))

	v, err := req.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// TestRequest_Notification 测试无应答请求
func TestRequest_Notification(t *testing.T) {
	req := NewNotification(testCmd{})
	assert.False(t, req.ExpectsReply())
	assert.False(t, req.Reply(nil, nil))
	assert.False(t, req.Abandoned())

	v, err := req.Wait(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, v)
}

// TestRequest_Abandoned 测试调用方取消
func TestRequest_Abandoned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := NewRequest(ctx, testCmd{})
	assert.False(t, req.Abandoned())

	cancel()
	assert.True(t, req.Abandoned())

	_, err := req.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// 放弃后的应答不会阻塞
	done := make(chan struct{})
	go func() {
		req.Reply(nil, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reply blocked after caller gave up")
	}
}

// TestTransferError_Unwrap 测试传输错误包装
func TestTransferError_Unwrap(t *testing.T) {
	err := &TransferError{Peer: "peer", ID: 7, Direction: DirRecv, Kind: FailTimeout, Err: ErrTimeout}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "recv")
	assert.Contains(t, err.Error(), "timeout")
}
