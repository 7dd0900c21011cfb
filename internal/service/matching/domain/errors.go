package domain

import "errors"

var (
	// ErrNotFound 引用的实体不存在
	ErrNotFound = errors.New("entity not found")
	// ErrNotActive 实体在处理时已不再是 active（已被撮合、关闭或取消）
	ErrNotActive = errors.New("entity is no longer active")
	// ErrDuplicate 唯一约束冲突，事实已经存在
	ErrDuplicate = errors.New("already exists")
	// ErrAlreadyClosed 撮合已处于终态，不允许再次流转
	ErrAlreadyClosed = errors.New("match already closed")
	// ErrNotParticipant 请求者既不是撮合参与者也不是管理员
	ErrNotParticipant = errors.New("requester is not a match participant")
	// ErrInvalidClosure 未知的关闭方式
	ErrInvalidClosure = errors.New("invalid closure type")
	// ErrMalformedWorkItem 队列消息无法解析
	ErrMalformedWorkItem = errors.New("malformed work item")
)

// IsSettled 判断一个错误是否意味着"事情已经发生过/不需要再做"。
// 这类结果应当确认消息，而不是触发重投。
func IsSettled(err error) bool {
	return errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrNotFound)
}

// IsRejection 判断错误是否是面向用户的拒绝（权限、参数），重试也不会成功。
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotParticipant) ||
		errors.Is(err, ErrInvalidClosure) ||
		errors.Is(err, ErrMalformedWorkItem)
}
