package allocator

import (
	"testing"

	"kernos/kernel"
	"kernos/kernel/mem"
	"kernos/kernel/mem/pmm"
)

func TestBitmapAllocatorExhaustionScenario(t *testing.T) {
	// A 16-page region with no reserved pages must serve exactly 16
	// distinct pages and report out of memory on the 17th request.
	var alloc BitmapAllocator
	if err := alloc.Init(16, 0); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	seen := make(map[uintptr]bool)
	addrs := make([]uintptr, 0, 16)
	for i := 0; i < 16; i++ {
		frame, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}
		addr := frame.Address()
		if seen[addr] {
			t.Errorf("[alloc %d] address 0x%x handed out twice", i, addr)
		}
		seen[addr] = true
		addrs = append(addrs, addr)
	}

	if _, err := alloc.AllocFrame(); err != errBitmapOutOfMemory {
		t.Fatalf("expected errBitmapOutOfMemory on the 17th allocation; got %v", err)
	}

	// Free the 3rd returned address; the next allocation must return it.
	if err := alloc.FreeFrame(pmm.FrameFromAddress(addrs[2])); err != nil {
		t.Fatalf("unexpected free error: %v", err)
	}
	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatalf("unexpected alloc error after free: %v", err)
	}
	if got := frame.Address(); got != addrs[2] {
		t.Fatalf("expected the freed address 0x%x to be reused; got 0x%x", addrs[2], got)
	}
}

func TestBitmapAllocatorFreeCounter(t *testing.T) {
	specs := []struct {
		totalPages    uint32
		reservedPages uint32
		allocs        int
		frees         int
		expFree       uint32
	}{
		{64, 8, 0, 0, 56},
		{64, 8, 10, 0, 46},
		{64, 8, 10, 10, 56},
		{64, 8, 56, 20, 20},
	}

	for specIndex, spec := range specs {
		var alloc BitmapAllocator
		if err := alloc.Init(spec.totalPages, spec.reservedPages); err != nil {
			t.Fatalf("[spec %d] unexpected init error: %v", specIndex, err)
		}

		frames := make([]pmm.Frame, 0, spec.allocs)
		for i := 0; i < spec.allocs; i++ {
			frame, err := alloc.AllocFrame()
			if err != nil {
				t.Fatalf("[spec %d] [alloc %d] unexpected error: %v", specIndex, i, err)
			}
			frames = append(frames, frame)
		}
		for i := 0; i < spec.frees; i++ {
			if err := alloc.FreeFrame(frames[i]); err != nil {
				t.Fatalf("[spec %d] [free %d] unexpected error: %v", specIndex, i, err)
			}
		}

		if got := alloc.FreePages(); got != spec.expFree {
			t.Errorf("[spec %d] expected %d free pages; got %d", specIndex, spec.expFree, got)
		}
		if got, want := alloc.FreeBytes(), mem.Size(spec.expFree)*mem.PageSize; got != want {
			t.Errorf("[spec %d] expected %d free bytes; got %d", specIndex, want, got)
		}
	}
}

func TestBitmapAllocatorAllocFreeRoundTrip(t *testing.T) {
	var alloc BitmapAllocator
	if err := alloc.Init(32, 4); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	before := alloc.FreePages()
	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatalf("unexpected alloc error: %v", err)
	}
	if err = alloc.FreeFrame(frame); err != nil {
		t.Fatalf("unexpected free error: %v", err)
	}
	if got := alloc.FreePages(); got != before {
		t.Fatalf("expected free count restored to %d; got %d", before, got)
	}
}

func TestBitmapAllocatorReservedRegion(t *testing.T) {
	var alloc BitmapAllocator
	if err := alloc.Init(16, 4); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	// The first allocation must skip the reserved low region.
	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatalf("unexpected alloc error: %v", err)
	}
	if got, want := frame, pmm.Frame(4); got != want {
		t.Fatalf("expected first free frame to be %d; got %d", want, got)
	}

	// Reserved pages can never be freed back.
	if err = alloc.FreeFrame(pmm.Frame(1)); err != errBitmapFrameOutOfRange {
		t.Fatalf("expected errBitmapFrameOutOfRange when freeing a reserved page; got %v", err)
	}
}

func TestBitmapAllocatorErrors(t *testing.T) {
	var uninit BitmapAllocator
	if _, err := uninit.AllocFrame(); err != errBitmapNotInitialized {
		t.Errorf("expected errBitmapNotInitialized; got %v", err)
	}
	if err := uninit.FreeFrame(pmm.Frame(0)); err != errBitmapNotInitialized {
		t.Errorf("expected errBitmapNotInitialized; got %v", err)
	}

	var alloc BitmapAllocator
	if err := alloc.Init(16, 0); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatalf("unexpected alloc error: %v", err)
	}
	if err = alloc.FreeFrame(frame); err != nil {
		t.Fatalf("unexpected free error: %v", err)
	}
	// Freeing the same frame twice is a caller bug and must be reported.
	if err = alloc.FreeFrame(frame); err != errBitmapDoubleFree {
		t.Errorf("expected errBitmapDoubleFree; got %v", err)
	}
	if err = alloc.FreeFrame(pmm.Frame(100)); err != errBitmapFrameOutOfRange {
		t.Errorf("expected errBitmapFrameOutOfRange; got %v", err)
	}
	if err = alloc.FreeFrame(pmm.InvalidFrame); err != errBitmapFrameOutOfRange {
		t.Errorf("expected errBitmapFrameOutOfRange for the invalid frame; got %v", err)
	}

	if err = alloc.Init(16, 16); err != errBitmapFrameOutOfRange {
		t.Errorf("expected init to reject reservedPages >= totalPages; got %v", err)
	}
}

func TestKmalloc(t *testing.T) {
	var alloc BitmapAllocator
	if err := alloc.Init(16, 2); err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}

	specs := []struct {
		size   mem.Size
		expErr *kernel.Error
	}{
		{1, nil},
		{mem.PageSize, nil},
		{0, errKmallocZeroSize},
		{mem.PageSize + 1, errKmallocRequestTooBig},
	}

	for specIndex, spec := range specs {
		addr, err := alloc.Kmalloc(spec.size)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}
		if err != nil {
			continue
		}
		if addr%uintptr(mem.PageSize) != 0 {
			t.Errorf("[spec %d] expected page-aligned address; got 0x%x", specIndex, addr)
		}
		if ferr := alloc.Kfree(addr); ferr != nil {
			t.Errorf("[spec %d] unexpected Kfree error: %v", specIndex, ferr)
		}
	}
}
