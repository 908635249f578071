//go:build debug

package channel

// New ignores size in debug builds so that every post waits for the owner
// goroutine, which surfaces ordering bugs that buffering hides.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
