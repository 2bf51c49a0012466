package blob

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/internal/core/engine/memnet"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/internal/core/executor"
	"github.com/dep2p/go-nest/internal/testutil"
	"github.com/dep2p/go-nest/pkg/types"
)

// terminalTypes 传输的终态事件类型
var terminalTypes = []string{
	types.EventTypeBlobCompleted,
	types.EventTypeBlobRejected,
	types.EventTypeBlobTimedOut,
	types.EventTypeBlobFailed,
	types.EventTypeBlobCancelled,
}

// TestBlob_ManyConcurrentTransfers 测试在途数据块总数远超单条传输窗口时全部完成
func TestBlob_ManyConcurrentTransfers(t *testing.T) {
	mn := memnet.NewNetwork()
	cfg := config.DefaultBlobConfig()
	cfg.ChunkSize = 4 * 1024
	cfg.MaxPendingRecv = 64
	sender := newBlobNode(t, mn, cfg)
	receiver := newBlobNode(t, mn, cfg)
	connect(t, sender, receiver)

	results := sender.e.Subscribe(eventbus.WithTypes(types.EventTypeBlobCompleted, types.EventTypeBlobFailed))
	defer results.Close()

	const transfers = 64
	size := cfg.ChunkWindow * cfg.ChunkSize * 4
	ctx := testCtx(t)

	payloads := make(map[types.BlobID][]byte, transfers)
	for i := 0; i < transfers; i++ {
		data := bytes.Repeat([]byte{byte(i)}, size)
		id, err := sender.c.SendBytes(ctx, receiver.id(), fmt.Sprintf("f%d", i), data)
		require.NoError(t, err)
		payloads[id] = data
	}

	var pending []types.BlobInfo
	testutil.Eventually(t, waitTimeout, func() bool {
		var err error
		pending, err = receiver.c.ListPendingRecv(ctx)
		return err == nil && len(pending) == transfers
	}, "所有邀约都应进入挂起接收")

	sinks := make(map[types.BlobID]*safeBuffer, transfers)
	for _, info := range pending {
		sink := &safeBuffer{}
		sinks[info.ID] = sink
		require.NoError(t, receiver.c.Accept(ctx, sender.id(), info.ID, sink))
	}

	for done := 0; done < transfers; done++ {
		ev := testutil.WaitEvent[types.Event](t, results, waitTimeout, nil)
		if failed, ok := ev.(*types.EvtBlobFailed); ok {
			t.Fatalf("传输 %d 失败: %v", failed.ID, failed.Err)
		}
	}

	for id, sink := range sinks {
		testutil.Eventually(t, waitTimeout, sink.Closed, "接收端应已关闭")
		assert.True(t, bytes.Equal(payloads[id], sink.Bytes()), "传输 %d 内容不符", id)
	}

	t.Log("✅ 64 条并发传输全部完成")
}

// TestBlob_OfferBurst 测试 N+1 个并发邀约恰好 N 个进入挂起接收
func TestBlob_OfferBurst(t *testing.T) {
	mn := memnet.NewNetwork()
	cfg := config.DefaultBlobConfig()
	cfg.MaxPendingRecv = 200
	sender := newBlobNode(t, mn, config.DefaultBlobConfig())
	receiver := newBlobNode(t, mn, cfg)
	connect(t, sender, receiver)

	outcomes := sender.e.Subscribe(eventbus.WithTypes(terminalTypes...))
	defer outcomes.Close()

	ctx := testCtx(t)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i <= cfg.MaxPendingRecv; i++ {
		g.Go(func() error {
			_, err := sender.c.SendBytes(gctx, receiver.id(), "burst", []byte("x"))
			return err
		})
	}
	require.NoError(t, g.Wait(), "本地排队不应失败")

	testutil.Eventually(t, waitTimeout, func() bool {
		pending, err := receiver.c.ListPendingRecv(ctx)
		return err == nil && len(pending) == cfg.MaxPendingRecv
	}, "挂起接收应恰好达到上限")

	ev := testutil.WaitEvent[types.Event](t, outcomes, waitTimeout, nil)
	rejected, ok := ev.(*types.EvtBlobRejected)
	require.True(t, ok, "意外的终态事件 %T", ev)
	assert.Equal(t, types.RejectCapacity, rejected.Reason)

	extra := testutil.CollectEvents[types.Event](outcomes, 200*time.Millisecond)
	assert.Empty(t, extra, "只有一个邀约被拒绝")

	sends, err := sender.c.ListPendingSend(ctx)
	require.NoError(t, err)
	assert.Len(t, sends, cfg.MaxPendingRecv)
}

// TestBlob_OngoingRecvIdleTimeout 测试接收方空闲超时并通知发送方
func TestBlob_OngoingRecvIdleTimeout(t *testing.T) {
	mn := memnet.NewNetwork()
	mock := clock.NewMock()
	cfg := config.DefaultBlobConfig()
	timeout := cfg.OngoingRecvTimeout.Duration()

	raw := newRawHandler()
	sender := newNode(t, mn, raw)
	receiver := newBlobNode(t, mn, cfg, executor.WithClock(mock))
	connect(t, sender, receiver)

	ctx := testCtx(t)
	sendRaw(t, sender, receiver.id(), &message{kind: kindOffer, id: 1, size: 10})
	waitRequested(t, receiver, 1)
	require.NoError(t, receiver.c.Accept(ctx, sender.id(), 1, &safeBuffer{}))
	raw.waitKind(t, kindAccept, 1)

	sendRaw(t, sender, receiver.id(), &message{kind: kindChunk, id: 1, seq: 0, data: []byte("abcde")})
	raw.waitKind(t, kindAck, 1)

	mock.Add(timeout - time.Millisecond)
	ongoing, err := receiver.c.ListOngoing(ctx)
	require.NoError(t, err)
	require.Len(t, ongoing, 1, "期限之前不应超时")

	mock.Add(time.Millisecond)
	_, err = receiver.c.ListOngoing(ctx)
	require.NoError(t, err)

	failed := testutil.WaitEvent[*types.EvtBlobFailed](t, receiver.sub, waitTimeout, nil)
	assert.Equal(t, types.BlobID(1), failed.ID)
	assert.Equal(t, types.DirRecv, failed.Direction)
	assert.Equal(t, types.FailTimeout, failed.Kind)
	assert.ErrorIs(t, failed.Err, types.ErrTimeout)

	abort := raw.waitKind(t, kindAbort, 1)
	assert.Equal(t, uint64(types.FailTimeout), abort.reason)
}

// TestBlob_OngoingSendIdleTimeout 测试发送方等不到确认时超时
func TestBlob_OngoingSendIdleTimeout(t *testing.T) {
	mn := memnet.NewNetwork()
	mock := clock.NewMock()
	cfg := config.DefaultBlobConfig()

	raw := newRawHandler()
	sender := newBlobNode(t, mn, cfg, executor.WithClock(mock))
	receiver := newNode(t, mn, raw)
	connect(t, sender, receiver)

	ctx := testCtx(t)
	id, err := sender.c.SendBytes(ctx, receiver.id(), "f", []byte("never acked"))
	require.NoError(t, err)
	raw.waitKind(t, kindOffer, id)

	sendRaw(t, receiver, sender.id(), &message{kind: kindAccept, id: id})
	testutil.WaitEvent[*types.EvtBlobAccepted](t, sender.sub, waitTimeout, nil)
	raw.waitKind(t, kindChunk, id)

	mock.Add(cfg.OngoingSendTimeout.Duration())
	_, err = sender.c.ListOngoing(ctx)
	require.NoError(t, err)

	failed := testutil.WaitEvent[*types.EvtBlobFailed](t, sender.sub, waitTimeout, nil)
	assert.Equal(t, id, failed.ID)
	assert.Equal(t, types.DirSend, failed.Direction)
	assert.Equal(t, types.FailTimeout, failed.Kind)
	assert.ErrorIs(t, failed.Err, types.ErrTimeout)

	raw.waitKind(t, kindCancel, id)
}

// TestBlob_PendingSendTimeout 测试设置 pending_send_timeout 后发送方挂起超时
func TestBlob_PendingSendTimeout(t *testing.T) {
	mn := memnet.NewNetwork()
	mock := clock.NewMock()
	cfg := config.DefaultBlobConfig()
	cfg.PendingSendTimeout = config.Duration(5 * time.Second)

	sender := newBlobNode(t, mn, cfg, executor.WithClock(mock))
	receiver := newBlobNode(t, mn, config.DefaultBlobConfig())
	connect(t, sender, receiver)

	ctx := testCtx(t)
	id, err := sender.c.SendBytes(ctx, receiver.id(), "f", []byte("x"))
	require.NoError(t, err)
	waitRequested(t, receiver, id)

	sends, err := sender.c.ListPendingSend(ctx)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	assert.False(t, sends[0].Deadline.IsZero())

	mock.Add(5 * time.Second)
	_, err = sender.c.ListPendingSend(ctx)
	require.NoError(t, err)

	ev := testutil.WaitEvent[*types.EvtBlobTimedOut](t, sender.sub, waitTimeout, nil)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, types.DirSend, ev.Direction)

	cancelled := testutil.WaitEvent[*types.EvtBlobCancelled](t, receiver.sub, waitTimeout, nil)
	assert.Equal(t, id, cancelled.ID)
	assert.True(t, cancelled.Remote)
}

// TestBlob_SizeMismatch 测试最后一块到达时总长度与声明不符
func TestBlob_SizeMismatch(t *testing.T) {
	mn := memnet.NewNetwork()
	raw := newRawHandler()
	sender := newNode(t, mn, raw)
	receiver := newBlobNode(t, mn, config.DefaultBlobConfig())
	connect(t, sender, receiver)

	ctx := testCtx(t)
	sink := &safeBuffer{}
	sendRaw(t, sender, receiver.id(), &message{kind: kindOffer, id: 1, size: 10})
	waitRequested(t, receiver, 1)
	require.NoError(t, receiver.c.Accept(ctx, sender.id(), 1, sink))
	raw.waitKind(t, kindAccept, 1)

	sendRaw(t, sender, receiver.id(), &message{kind: kindChunk, id: 1, seq: 0, data: []byte("abc"), final: true})

	failed := testutil.WaitEvent[*types.EvtBlobFailed](t, receiver.sub, waitTimeout, nil)
	assert.Equal(t, types.FailIntegrity, failed.Kind)
	assert.ErrorIs(t, failed.Err, ErrSizeMismatch)
	assert.Contains(t, failed.Err.Error(), "received 3 of declared 10")

	abort := raw.waitKind(t, kindAbort, 1)
	assert.Equal(t, uint64(types.FailIntegrity), abort.reason)
	assert.Empty(t, sink.Bytes())
}

// TestBlob_DuplicateChunk 测试重复序号的数据块是协议违规
func TestBlob_DuplicateChunk(t *testing.T) {
	mn := memnet.NewNetwork()
	raw := newRawHandler()
	sender := newNode(t, mn, raw)
	receiver := newBlobNode(t, mn, config.DefaultBlobConfig())
	connect(t, sender, receiver)

	ctx := testCtx(t)
	sendRaw(t, sender, receiver.id(), &message{kind: kindOffer, id: 1, size: 10})
	waitRequested(t, receiver, 1)
	require.NoError(t, receiver.c.Accept(ctx, sender.id(), 1, &safeBuffer{}))
	raw.waitKind(t, kindAccept, 1)

	chunk := &message{kind: kindChunk, id: 1, seq: 0, data: []byte("abcde")}
	sendRaw(t, sender, receiver.id(), chunk)
	raw.waitKind(t, kindAck, 1)
	sendRaw(t, sender, receiver.id(), chunk)

	failed := testutil.WaitEvent[*types.EvtBlobFailed](t, receiver.sub, waitTimeout, nil)
	assert.Equal(t, types.FailProtocolViolation, failed.Kind)
	assert.ErrorIs(t, failed.Err, types.ErrProtocolViolation)
	assert.Contains(t, failed.Err.Error(), "chunk seq 0, expected 1")

	abort := raw.waitKind(t, kindAbort, 1)
	assert.Equal(t, uint64(types.FailProtocolViolation), abort.reason)
}

// TestBlob_SingleTerminalEvent 测试终结后的迟到消息与期限不产生第二个终态事件
func TestBlob_SingleTerminalEvent(t *testing.T) {
	t.Run("接收方", func(t *testing.T) {
		mn := memnet.NewNetwork()
		mock := clock.NewMock()
		raw := newRawHandler()
		sender := newNode(t, mn, raw)
		receiver := newBlobNode(t, mn, config.DefaultBlobConfig(), executor.WithClock(mock))
		connect(t, sender, receiver)

		terminal := receiver.e.Subscribe(eventbus.WithTypes(terminalTypes...))
		defer terminal.Close()

		ctx := testCtx(t)
		sendRaw(t, sender, receiver.id(), &message{kind: kindOffer, id: 1, size: 10})
		waitRequested(t, receiver, 1)
		require.NoError(t, receiver.c.Accept(ctx, sender.id(), 1, &safeBuffer{}))
		raw.waitKind(t, kindAccept, 1)

		sendRaw(t, sender, receiver.id(), &message{kind: kindCancel, id: 1})
		sendRaw(t, sender, receiver.id(), &message{kind: kindChunk, id: 1, seq: 0, data: []byte("late")})
		sendRaw(t, sender, receiver.id(), &message{kind: kindCancel, id: 1})

		mock.Add(time.Hour)
		_, err := receiver.c.ListOngoing(ctx)
		require.NoError(t, err)

		events := testutil.CollectEvents[types.Event](terminal, 300*time.Millisecond)
		require.Len(t, events, 1)
		cancelled, ok := events[0].(*types.EvtBlobCancelled)
		require.True(t, ok, "意外的终态事件 %T", events[0])
		assert.True(t, cancelled.Remote)
	})

	t.Run("发送方", func(t *testing.T) {
		mn := memnet.NewNetwork()
		mock := clock.NewMock()
		cfg := config.DefaultBlobConfig()
		cfg.PendingSendTimeout = config.Duration(time.Second)
		raw := newRawHandler()
		sender := newBlobNode(t, mn, cfg, executor.WithClock(mock))
		receiver := newNode(t, mn, raw)
		connect(t, sender, receiver)

		terminal := sender.e.Subscribe(eventbus.WithTypes(terminalTypes...))
		defer terminal.Close()

		ctx := testCtx(t)
		id, err := sender.c.SendBytes(ctx, receiver.id(), "f", []byte("x"))
		require.NoError(t, err)
		raw.waitKind(t, kindOffer, id)

		sendRaw(t, receiver, sender.id(), &message{kind: kindReject, id: id, reason: uint64(types.RejectDeclined)})
		sendRaw(t, receiver, sender.id(), &message{kind: kindAbort, id: id, reason: uint64(types.FailIO)})
		sendRaw(t, receiver, sender.id(), &message{kind: kindAccept, id: id})

		mock.Add(time.Hour)
		_, err = sender.c.ListPendingSend(ctx)
		require.NoError(t, err)

		events := testutil.CollectEvents[types.Event](terminal, 300*time.Millisecond)
		require.Len(t, events, 1)
		rejected, ok := events[0].(*types.EvtBlobRejected)
		require.True(t, ok, "意外的终态事件 %T", events[0])
		assert.Equal(t, types.RejectDeclined, rejected.Reason)
	})
}
