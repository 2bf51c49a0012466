package blob

import "errors"

var (
	// ErrUnknownTransfer 传输不存在或已结束
	ErrUnknownTransfer = errors.New("blob: unknown transfer")

	// ErrAlreadyOngoing 传输已处于进行中
	ErrAlreadyOngoing = errors.New("blob: transfer already ongoing")

	// ErrNotPending 传输不处于挂起状态
	ErrNotPending = errors.New("blob: transfer not pending")

	// ErrIsDirectory 路径是目录
	ErrIsDirectory = errors.New("blob: path is a directory")

	// ErrFileExists 目标文件已存在
	ErrFileExists = errors.New("blob: file already exists")

	// ErrSourceShort 数据源提前结束
	ErrSourceShort = errors.New("blob: source shorter than declared size")

	// ErrDigestMismatch 摘要不匹配
	ErrDigestMismatch = errors.New("blob: digest mismatch")
)

var (
	// ErrSizeMismatch 收到的字节数与声明大小不符
	ErrSizeMismatch = errors.New("blob: size mismatch")

	// ErrRemoteAbort 对端中止了传输
	ErrRemoteAbort = errors.New("blob: aborted by remote")
)
