package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	nest "github.com/dep2p/go-nest"
	"github.com/dep2p/go-nest/internal/core/eventbus"
	"github.com/dep2p/go-nest/pkg/types"
)

// run 子命令参数
var (
	listenAddrs []string
	peerAddrs   []string
	provider    bool
	dataDir     string
	acceptDir   string
	metricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动节点并记录所有事件",
	Long: `启动节点，监听 --listen 地址，拨号 --peer 地址，并把每个事件写入日志。

设置 --accept-dir 时自动接受所有传入的文件块并写入该目录；
否则传入邀约保持挂起直到超时。`,
	Args: cobra.NoArgs,
	RunE: runNode,
}

func init() {
	flags := runCmd.Flags()
	flags.StringSliceVar(&listenAddrs, "listen", nil, "监听地址 host:port（可重复）")
	flags.StringSliceVar(&peerAddrs, "peer", nil, "启动后拨号的地址（可重复）")
	flags.BoolVar(&provider, "provider", false, "作为节点广告提供者")
	flags.StringVar(&dataDir, "data-dir", "", "文件块存储目录（默认内存）")
	flags.StringVar(&acceptDir, "accept-dir", "", "自动接受传入文件块并写入该目录")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus 指标监听地址，例如 127.0.0.1:9100")
}

func runNode(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := []nest.Option{nest.WithConfig(cfg)}
	if len(listenAddrs) > 0 {
		opts = append(opts, nest.WithListenAddrs(listenAddrs...))
	}
	if len(peerAddrs) > 0 {
		opts = append(opts, nest.WithKnownPeers(peerAddrs...))
	}
	if provider {
		opts = append(opts, nest.WithProvider(true))
	}
	if dataDir != "" {
		opts = append(opts, nest.WithDataDir(dataDir))
	}
	if acceptDir != "" {
		if err := os.MkdirAll(acceptDir, 0o755); err != nil {
			return err
		}
	}

	node, err := nest.New(opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := node.Subscribe(eventbus.WithName("cli"))
	if err := node.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = node.Close() }()

	fmt.Fprintf(cmd.OutOrStdout(), "📦 %s\n", nest.VersionInfo())
	fmt.Fprintf(cmd.OutOrStdout(), "节点 ID: %s\n", node.ID())
	if addrs, err := node.ListListeners(ctx); err == nil {
		for _, a := range addrs {
			fmt.Fprintf(cmd.OutOrStdout(), "监听: %s\n", a)
		}
	}

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: node.Metrics().Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("指标服务退出", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
		logger.Info("指标服务已启动", "addr", metricsAddr)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "节点已启动，按 Ctrl+C 退出")
	return logEvents(ctx, node, sub)
}

// logEvents 记录事件直到 ctx 结束
func logEvents(ctx context.Context, node *nest.Node, sub *eventbus.Subscription) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lagged *eventbus.LaggedError
			switch {
			case errors.As(err, &lagged):
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, eventbus.ErrClosed):
				return nil
			default:
				return err
			}
		}
		logEvent(ev)

		if req, ok := ev.(*types.EvtBlobRequested); ok && acceptDir != "" {
			autoAccept(ctx, node, req)
		}
	}
}

func logEvent(ev types.Event) {
	switch e := ev.(type) {
	case *types.EvtConnectionEstablished:
		logger.Info("连接建立", "peer", e.Peer.ShortString(), "addr", e.Addr, "outbound", e.Outbound)
	case *types.EvtConnectionClosed:
		logger.Info("连接关闭", "peer", e.Peer.ShortString(), "cause", e.Cause)
	case *types.EvtBlobRequested:
		logger.Info("收到传输邀约", "peer", e.Peer.ShortString(), "id", e.ID, "name", e.Descriptor.Name, "size", e.Descriptor.Size)
	case *types.EvtBlobProgress:
		logger.Debug("传输进度", "id", e.ID, "dir", e.Direction, "done", e.Transferred, "total", e.Total)
	case *types.EvtBlobCompleted:
		logger.Info("传输完成", "peer", e.Peer.ShortString(), "id", e.ID, "dir", e.Direction, "bytes", e.Bytes)
	case *types.EvtBlobFailed:
		logger.Warn("传输失败", "peer", e.Peer.ShortString(), "id", e.ID, "kind", e.Kind, "error", e.Err)
	case *types.EvtMessageReceived:
		logger.Info("收到消息", "peer", e.Message.From.ShortString(), "id", e.Message.ID, "payload", string(e.Message.Payload))
	case *types.EvtHandlerFailed:
		logger.Warn("协议处理器失败", "protocol", e.Protocol, "peer", e.Peer.ShortString(), "error", e.Err)
	default:
		logger.Info("事件", "type", ev.Type())
	}
}

func autoAccept(ctx context.Context, node *nest.Node, req *types.EvtBlobRequested) {
	name := filepath.Base(req.Descriptor.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = req.ID.String()
	}
	path := filepath.Join(acceptDir, fmt.Sprintf("%s-%s", req.ID, name))
	if err := node.Blob().AcceptToFile(ctx, req.Peer, req.ID, path); err != nil {
		logger.Warn("自动接受失败", "id", req.ID, "path", path, "error", err)
		return
	}
	logger.Info("已接受传输", "id", req.ID, "path", path)
}
