package xretry

import "errors"

var (
	// ErrNilRetryer 接收者为 nil。
	ErrNilRetryer = errors.New("xretry: nil retryer")
	// ErrNilContext ctx 为 nil。
	ErrNilContext = errors.New("xretry: nil context")
	// ErrNilFunc fn 为 nil。
	ErrNilFunc = errors.New("xretry: nil func")
)

// PermanentError 不应重试的错误。
type PermanentError struct {
	Err error
}

// NewPermanentError 标记 err 为永久性错误。
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent 报告 err 链上是否有 PermanentError。
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsRetryable nil 与永久性错误不可重试，其余均可。
func IsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}
