package page

import (
	"sync"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// RWLatch is the reader/writer latch a frame page carries. The default is
// a plain sync.RWMutex; tests swap in dbg.LoggedRWMutex to trace crabbing.
type RWLatch interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// Page is one frame of the buffer pool: a fixed-size byte buffer plus the
// metadata the pool needs to manage residency.
//
// The data bytes are protected by the page latch. The metadata (id, pin
// count, dirty flag) is protected by the pool mutex, never by the latch.
type Page struct {
	data [common.PageSize]byte

	id       common.PageID
	pinCount int32
	dirty    bool

	latch RWLatch
}

func newPage(latch RWLatch) *Page {
	if latch == nil {
		latch = &sync.RWMutex{}
	}
	return &Page{
		id:    common.InvalidPageID,
		latch: latch,
	}
}

// NewPage creates a detached frame page with a default latch.
func NewPage() *Page { return newPage(nil) }

// NewPageWithLatch creates a frame page carrying the given latch.
func NewPageWithLatch(latch RWLatch) *Page { return newPage(latch) }

// Data exposes the raw page bytes. Callers must hold the appropriate latch
// (or be the pool performing I/O under its mutex).
func (p *Page) Data() []byte { return p.data[:] }

func (p *Page) ID() common.PageID { return p.id }

func (p *Page) SetID(id common.PageID) { p.id = id }

func (p *Page) PinCount() int32 { return p.pinCount }

func (p *Page) IncPin() { p.pinCount++ }

func (p *Page) DecPin() { p.pinCount-- }

func (p *Page) IsDirty() bool { return p.dirty }

func (p *Page) SetDirty(dirty bool) { p.dirty = dirty }

// ResetMemory zeroes the page bytes.
func (p *Page) ResetMemory() {
	clear(p.data[:])
}

// Reset returns the frame to its detached state: no page, no pins, clean.
func (p *Page) Reset() {
	p.id = common.InvalidPageID
	p.pinCount = 0
	p.dirty = false
	p.ResetMemory()
}

// latch methods

func (p *Page) Lock()    { p.latch.Lock() }
func (p *Page) Unlock()  { p.latch.Unlock() }
func (p *Page) RLock()   { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }
