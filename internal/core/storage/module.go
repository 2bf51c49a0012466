package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-nest/config"
)

// Params 存储模块依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Result 存储模块输出
type Result struct {
	fx.Out

	DB    *DB
	Blobs *BlobStore
}

// Module 返回存储 Fx 模块
//
// 提供:
//   - *DB: BadgerDB 封装
//   - *BlobStore: 接收文件块的存储
//
// 生命周期:
//   - OnStop: 关闭数据库
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStorage),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideStorage 按配置打开数据库
func ProvideStorage(p Params) (Result, error) {
	cfg := config.DefaultStorageConfig()
	if p.Config != nil {
		cfg = p.Config.Storage
	}

	db, err := Open(cfg)
	if err != nil {
		logger.Error("打开存储失败", "error", err)
		return Result{}, err
	}
	return Result{DB: db, Blobs: NewBlobStore(db)}, nil
}

func registerLifecycle(lc fx.Lifecycle, db *DB) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭存储")
			if err := db.Close(); err != nil {
				logger.Warn("存储关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "storage"
	// Description 模块描述
	Description = "BadgerDB 存储：接收文件块的分段持久化"
)
