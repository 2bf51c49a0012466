package storage

import "errors"

var (
	// ErrNotFound 文件块不存在或尚未完成
	ErrNotFound = errors.New("storage: blob not found")

	// ErrClosed 数据库已关闭
	ErrClosed = errors.New("storage: closed")

	// ErrSinkClosed Sink 已关闭或已中止
	ErrSinkClosed = errors.New("storage: sink closed")

	// ErrCorrupted 清单或数据段损坏
	ErrCorrupted = errors.New("storage: corrupted record")
)
