package common

import "fmt"

// PageSize is the size of a page in bytes. It matches directio.BlockSize so
// the direct I/O disk manager can write a page as one aligned block.
const PageSize = 4096

// SHAssert panics with msg when cond does not hold. Invariant breaches in the
// storage core are not recoverable.
func SHAssert(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

// SHAssertf is SHAssert with a formatted message.
func SHAssertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
