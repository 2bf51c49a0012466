package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	nest "github.com/dep2p/go-nest"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/pkg/types"
)

// send 子命令参数
var (
	sendPeer string
	sendFile string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "向对端发送一个文件",
	Long:  `拨号 --peer 地址，发送 --file 指定的文件并显示进度，传输结束后退出`,
	Args:  cobra.NoArgs,
	RunE:  sendBlob,
}

func init() {
	flags := sendCmd.Flags()
	flags.StringVar(&sendPeer, "peer", "", "对端地址 host:port")
	flags.StringVar(&sendFile, "file", "", "要发送的文件")
	_ = sendCmd.MarkFlagRequired("peer")
	_ = sendCmd.MarkFlagRequired("file")
}

func sendBlob(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fi, err := os.Stat(sendFile)
	if err != nil {
		return err
	}

	node, err := nest.New(nest.WithConfig(cfg), nest.WithListenAddrs())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = node.Close() }()

	peer, err := node.Dial(ctx, sendPeer)
	if err != nil {
		return fmt.Errorf("拨号 %s: %w", sendPeer, err)
	}

	sub := node.Subscribe(eventbus.WithName("send"))
	defer sub.Close()

	id, err := node.Blob().SendFile(ctx, peer, sendFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "已向 %s 发出邀约 #%s，等待对方接受...\n", peer.ShortString(), id)

	bar := progressbar.DefaultBytes(fi.Size(), filepath.Base(sendFile))
	err = waitTransfer(ctx, sub, id, bar)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = node.Blob().CancelSend(context.Background(), id)
		}
		return err
	}
	_ = bar.Finish()
	fmt.Fprintln(cmd.OutOrStdout(), "\n✅ 传输完成")
	return nil
}

// waitTransfer 跟踪发送进度直到终态事件
func waitTransfer(ctx context.Context, sub *eventbus.Subscription, id types.BlobID, bar *progressbar.ProgressBar) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lagged *eventbus.LaggedError
			if errors.As(err, &lagged) {
				continue
			}
			return err
		}

		switch e := ev.(type) {
		case *types.EvtBlobAccepted:
			if e.ID == id && e.Direction == types.DirSend {
				logger.Info("对方已接受", "id", id)
			}
		case *types.EvtBlobProgress:
			if e.ID == id && e.Direction == types.DirSend {
				_ = bar.Set64(int64(e.Transferred))
			}
		case *types.EvtBlobCompleted:
			if e.ID == id && e.Direction == types.DirSend {
				_ = bar.Set64(int64(e.Bytes))
				return nil
			}
		case *types.EvtBlobRejected:
			if e.ID == id && e.Direction == types.DirSend {
				return fmt.Errorf("对方拒绝: %s", e.Reason)
			}
		case *types.EvtBlobTimedOut:
			if e.ID == id && e.Direction == types.DirSend {
				return errors.New("等待对方接受超时")
			}
		case *types.EvtBlobFailed:
			if e.ID == id && e.Direction == types.DirSend {
				return fmt.Errorf("传输失败 (%s): %w", e.Kind, e.Err)
			}
		case *types.EvtBlobCancelled:
			if e.ID == id && e.Direction == types.DirSend {
				return errors.New("传输被取消")
			}
		case *types.EvtConnectionClosed:
			logger.Debug("连接关闭", "peer", e.Peer.ShortString())
		}
	}
}
