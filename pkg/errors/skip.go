package errors

// SkipMessageError 表示消费者应当丢弃该消息且不重试。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

// IsSkipMessageError 判断错误是否为跳过消息错误。
func IsSkipMessageError(err error) bool {
	_, ok := err.(*SkipMessageError)
	return ok
}
