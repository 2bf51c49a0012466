package config

import (
	"errors"
	"path/filepath"
	"time"
)

// StorageConfig 存储配置
//
// 接收到的文件块可写入 BadgerDB。数据目录结构：
//
//	${DataDir}/
//	└── blobs.db/           # BadgerDB
type StorageConfig struct {
	// DataDir 数据目录路径
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// InMemory 使用内存模式（测试与临时节点）
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// GCInterval 值日志垃圾回收间隔，0 表示不回收
	GCInterval Duration `json:"gc_interval" yaml:"gc_interval"`

	// SegmentSize 数据段大小（字节）
	SegmentSize int `json:"segment_size" yaml:"segment_size"`
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:     "./data",
		InMemory:    true,
		GCInterval:  Duration(10 * time.Minute),
		SegmentSize: 256 * 1024,
	}
}

// Validate 验证存储配置
func (c StorageConfig) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return errors.New("storage: data_dir cannot be empty")
	}
	if c.GCInterval < 0 {
		return errors.New("storage: gc_interval cannot be negative")
	}
	if c.SegmentSize < 4*1024 || c.SegmentSize > 8*1024*1024 {
		return errors.New("storage: segment_size must be within [4KiB, 8MiB]")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "blobs.db")
}
