package backend

// Status is the outcome tag of a Result.
type Status int

const (
	// StatusSuccess means the adapter performed the operation.
	StatusSuccess Status = iota
	// StatusDeclined means the operation does not apply to this adapter.
	StatusDeclined
	// StatusFailed means the adapter tried and failed.
	StatusFailed
)

// String returns the outcome label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDeclined:
		return "declined"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Void is the value type of results that carry no payload.
type Void struct{}

// Result is the three-way outcome of an adapter call.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Ok returns a successful result holding v.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusSuccess}
}

// Done returns a successful result without a payload.
func Done() Result[Void] {
	return Result[Void]{Status: StatusSuccess}
}

// Decline returns a declined result.
func Decline[T any]() Result[T] {
	return Result[T]{Status: StatusDeclined}
}

// Fail returns a failed result. A nil err is replaced by ErrBackendFailure so
// that a failed result always carries an error.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = ErrBackendFailure
	}
	return Result[T]{Status: StatusFailed, Err: err}
}

// Check converts a plain (value, error) pair into a Result.
func Check[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// CheckErr converts an error-only call into a Result.
func CheckErr(err error) Result[Void] {
	if err != nil {
		return Fail[Void](err)
	}
	return Done()
}

// Succeeded reports whether the result is a success.
func (r Result[T]) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Declined reports whether the result is a decline.
func (r Result[T]) Declined() bool {
	return r.Status == StatusDeclined
}
