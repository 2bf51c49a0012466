// Package storage 提供基于 BadgerDB 的文件块存储
//
// 接收方可以把文件块直接写入 BlobStore 而不是本地文件。
// 每个传输的数据按段保存，传输完成时写入清单：
//
//	前缀             | 内容
//	-----------------|-----------------------------
//	b/<peer>/<id>/   | 数据段（8 字节大端序号）
//	m/<peer>/<id>    | 清单（名称、大小、段数、存储时间）
//
// # 使用示例
//
//	db, err := storage.Open(config.DefaultStorageConfig())
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	store := storage.NewBlobStore(db)
//	sink := store.NewSink(peer, id, "report.pdf")
//	// 交给文件块协议的 Accept 命令写入
//
// 所有公开的类型和方法都是线程安全的；单个 Sink 只能被一个 goroutine 写入。
package storage
