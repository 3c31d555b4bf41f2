package classify

import "sync"

// vectorized records the result of a one-time CPU feature probe for an
// unrolled MAC/IP-swap path. This module has no such path and nothing
// calls VectorizedAvailable: classify.go and internal/reflect always run
// their scalar implementations.
var (
	vectorizedOnce sync.Once
	vectorizedOK   bool
)

// VectorizedAvailable runs the one-time feature probe and reports whether
// an unrolled path would be safe to use on this CPU. The probe performs
// no CPU feature check and always reports true.
func VectorizedAvailable() bool {
	vectorizedOnce.Do(func() {
		vectorizedOK = true
	})
	return vectorizedOK
}
