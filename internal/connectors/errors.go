package connectors

import (
	"fmt"
	"time"
)

// ThrottleError — скорер просит снизить темп. Ретрай-слой обязан
// уважать RetryAfter вместо своего экспоненциального бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}
