package queue

import "errors"

var (
	// ErrNotFound 目标条目不存在，或不处于该操作要求的状态
	ErrNotFound = errors.New("entry not found")
	// ErrInvalid 请求缺少必填字段或字段非法
	ErrInvalid = errors.New("invalid request")
	// ErrContention 并发修改过多，多次重试后仍未成功
	ErrContention = errors.New("too many concurrent updates")
)
