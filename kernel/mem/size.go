// Package mem provides the memory units shared by the kernel subsystems.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
)

const (
	// PageShift is the number of bits that a physical address needs to be
	// shifted right to obtain its page index.
	PageShift = 12

	// PageSize is the size of a physical memory page.
	PageSize = Size(1 << PageShift)
)
