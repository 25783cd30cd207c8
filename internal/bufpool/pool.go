// Package bufpool provides process-wide, fixed-size byte buffer pools.
//
// HeaderParser draws its primary (4 KiB) and secondary (16 KiB) buffers from
// here and returns them when parsing finishes, so that sessions that never need the
// secondary buffer never pay for one.
package bufpool

import "sync"

// Sizes used by the HTTP header parser's two-tier buffering scheme.
const (
	PrimarySize   = 4096
	SecondarySize = 16384
)

var (
	primary = sync.Pool{
		New: func() any {
			b := make([]byte, PrimarySize)
			return &b
		},
	}
	secondary = sync.Pool{
		New: func() any {
			b := make([]byte, SecondarySize)
			return &b
		},
	}
)

// GetPrimary returns a 4096-byte buffer.
func GetPrimary() []byte {
	b := primary.Get().(*[]byte)
	return *b
}

// PutPrimary returns b to the primary pool. b must have been obtained from
// GetPrimary and must retain its original length.
func PutPrimary(b []byte) {
	if len(b) != PrimarySize {
		return
	}
	primary.Put(&b)
}

// GetSecondary returns a 16384-byte buffer.
func GetSecondary() []byte {
	b := secondary.Get().(*[]byte)
	return *b
}

// PutSecondary returns b to the secondary pool.
func PutSecondary(b []byte) {
	if len(b) != SecondarySize {
		return
	}
	secondary.Put(&b)
}
