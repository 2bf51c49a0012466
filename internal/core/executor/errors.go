package executor

import "errors"

var (
	// ErrNotStarted 执行器尚未启动
	ErrNotStarted = errors.New("executor not started")

	// ErrAlreadyStarted 执行器已启动
	ErrAlreadyStarted = errors.New("executor already started")

	// ErrDuplicateProtocol 协议已注册
	ErrDuplicateProtocol = errors.New("executor: protocol already registered")

	// ErrUnexpectedReply 应答类型与调用方期望不符
	ErrUnexpectedReply = errors.New("executor: unexpected reply type")
)
