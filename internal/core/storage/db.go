package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-nest/config"
	"github.com/dep2p/go-nest/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// gcDiscardRatio 值日志文件中可回收空间占比超过该值时重写
const gcDiscardRatio = 0.5

// DB BadgerDB 封装
type DB struct {
	db     *badger.DB
	cfg    config.StorageConfig
	closed atomic.Bool

	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open 按配置打开数据库
func Open(cfg config.StorageConfig) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := cfg.DBPath()
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	d := &DB{db: db, cfg: cfg}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		d.startGC(cfg.GCInterval.Duration())
	}
	logger.Debug("存储已打开", "in_memory", cfg.InMemory, "path", cfg.DBPath())
	return d, nil
}

// Badger 返回底层 badger.DB
func (d *DB) Badger() *badger.DB {
	return d.db
}

// Close 停止垃圾回收并关闭数据库
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.gcCancel != nil {
		d.gcCancel()
		d.gcWg.Wait()
	}
	return d.db.Close()
}

func (d *DB) startGC(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	d.gcCancel = cancel

	d.gcWg.Add(1)
	go func() {
		defer d.gcWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.runGC()
			}
		}
	}()
}

// runGC 反复回收直到没有可重写的值日志文件
func (d *DB) runGC() {
	for !d.closed.Load() {
		err := d.db.RunValueLogGC(gcDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				logger.Debug("值日志垃圾回收结束", "error", err)
			}
			return
		}
	}
}
