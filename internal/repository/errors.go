package repository

import "errors"

// 仓库层哨兵错误，服务层用 errors.Is 区分"未找到"与真正的故障
var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrModelNotFound     = errors.New("model not found")
	ErrAlertTypeNotFound = errors.New("alert type not found")
)
