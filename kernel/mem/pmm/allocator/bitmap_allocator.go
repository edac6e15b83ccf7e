// Package allocator implements the kernel's physical page allocator. Page
// reservations are tracked in a byte-granular bitmap where each set bit marks
// an allocated page.
package allocator

import (
	"kernos/kernel"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
	"kernos/kernel/mem/pmm"
)

var (
	errBitmapOutOfMemory     = &kernel.Error{Module: "pmm_bitmap_alloc", Message: "out of memory"}
	errBitmapDoubleFree      = &kernel.Error{Module: "pmm_bitmap_alloc", Message: "frame is already free"}
	errBitmapFrameOutOfRange = &kernel.Error{Module: "pmm_bitmap_alloc", Message: "frame is out of range"}
	errBitmapNotInitialized  = &kernel.Error{Module: "pmm_bitmap_alloc", Message: "allocator is not initialized"}
	errKmallocRequestTooBig  = &kernel.Error{Module: "pmm_bitmap_alloc", Message: "request exceeds one page"}
	errKmallocZeroSize       = &kernel.Error{Module: "pmm_bitmap_alloc", Message: "zero-size request"}
)

// BitmapAllocator tracks the allocation state of a fixed physical memory
// region. Each page maps to exactly one bit; a set bit marks the page as
// allocated.
//
// The allocator provides no freelist and no coalescing and assumes a single
// active writer: it is only ever invoked from non-reentrant contexts
// (initialization and process create/terminate). Callers running with
// interrupts enabled must wrap calls in a sync.IRQGuard critical section.
type BitmapAllocator struct {
	// bitmap holds one bit per page in the managed region.
	bitmap []byte

	// totalPages tracks the number of pages in the managed region.
	totalPages uint32

	// reservedPages tracks the pages reserved for the kernel image at the
	// bottom of the region. These are never handed out or reclaimed.
	reservedPages uint32

	// freePages tracks the number of pages available for allocation.
	freePages uint32
}

// Init resets the bitmap and marks every page inside the kernel's reserved
// low region as allocated. It reports the resulting free byte count to the
// console.
func (alloc *BitmapAllocator) Init(totalPages, reservedPages uint32) *kernel.Error {
	if totalPages == 0 || reservedPages >= totalPages {
		return errBitmapFrameOutOfRange
	}

	alloc.totalPages = totalPages
	alloc.reservedPages = reservedPages
	alloc.freePages = totalPages - reservedPages
	alloc.bitmap = make([]byte, (totalPages+7)>>3)

	for page := uint32(0); page < reservedPages; page++ {
		alloc.bitmap[page>>3] |= 1 << (7 - (page & 7))
	}

	kfmt.Printf("[pmm_bitmap_alloc] managing %d pages; %d reserved for the kernel image\n", totalPages, reservedPages)
	kfmt.Printf("[pmm_bitmap_alloc] free memory: %dKb\n", uint64(alloc.FreeBytes()/mem.Kb))
	return nil
}

// AllocFrame reserves the first free page in the managed region and returns
// its frame. The bitmap is scanned byte-by-byte for the first byte that is
// not fully set and then bit-by-bit within that byte. Exhaustion is reported
// to the caller as an error, never treated as fatal.
func (alloc *BitmapAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	if alloc.bitmap == nil {
		return pmm.InvalidFrame, errBitmapNotInitialized
	}

	for byteIndex, b := range alloc.bitmap {
		if b == 0xff {
			continue
		}

		for bit := uint32(0); bit < 8; bit++ {
			mask := uint8(1 << (7 - bit))
			if b&mask != 0 {
				continue
			}

			page := uint32(byteIndex)<<3 + bit
			if page >= alloc.totalPages {
				// Trailing padding bits in the last bitmap byte.
				break
			}

			alloc.bitmap[byteIndex] |= mask
			alloc.freePages--
			return pmm.Frame(page), nil
		}
	}

	return pmm.InvalidFrame, errBitmapOutOfMemory
}

// FreeFrame returns a previously allocated frame to the managed region.
// Freeing a frame that is already free indicates a caller bug and is
// reported as an error instead of being silently tolerated.
func (alloc *BitmapAllocator) FreeFrame(frame pmm.Frame) *kernel.Error {
	if alloc.bitmap == nil {
		return errBitmapNotInitialized
	}

	page := uint32(frame)
	if !frame.Valid() || page >= alloc.totalPages || page < alloc.reservedPages {
		return errBitmapFrameOutOfRange
	}

	mask := uint8(1 << (7 - (page & 7)))
	if alloc.bitmap[page>>3]&mask == 0 {
		return errBitmapDoubleFree
	}

	alloc.bitmap[page>>3] &^= mask
	alloc.freePages++
	return nil
}

// Kmalloc reserves enough pages to cover size bytes and returns the address
// of the reserved block. The current implementation always allocates exactly
// one page; requests above mem.PageSize fail with an explicit error instead
// of silently under-allocating. This keeps the allocator a single-page
// allocator rather than hiding a multi-page contract it does not honor.
func (alloc *BitmapAllocator) Kmalloc(size mem.Size) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, errKmallocZeroSize
	}
	if size > mem.PageSize {
		return 0, errKmallocRequestTooBig
	}

	frame, err := alloc.AllocFrame()
	if err != nil {
		return 0, err
	}

	return frame.Address(), nil
}

// Kfree returns the page containing addr to the allocator. The address must
// be the result of a prior successful Kmalloc or AllocFrame.
func (alloc *BitmapAllocator) Kfree(addr uintptr) *kernel.Error {
	return alloc.FreeFrame(pmm.FrameFromAddress(addr))
}

// TotalPages returns the number of pages in the managed region.
func (alloc *BitmapAllocator) TotalPages() uint32 {
	return alloc.totalPages
}

// FreePages returns the number of pages currently available for allocation.
func (alloc *BitmapAllocator) FreePages() uint32 {
	return alloc.freePages
}

// FreeBytes returns the amount of memory currently available for allocation.
func (alloc *BitmapAllocator) FreeBytes() mem.Size {
	return mem.Size(alloc.freePages) * mem.PageSize
}
