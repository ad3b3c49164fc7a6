package bufferpool

import (
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// PageGuard is a scoped lease of a pinned page. It owns exactly one pin
// and releases it on Drop; a dropped or moved-from guard is inert and
// safe to Drop again.
//
// The pool must outlive every guard it issues.
type PageGuard struct {
	pool  *Manager
	page  *page.Page
	dirty bool
}

// Valid reports whether the guard still owns its lease.
func (g *PageGuard) Valid() bool { return g.page != nil }

func (g *PageGuard) PageID() common.PageID { return g.page.ID() }

// Data exposes the page bytes for reading.
func (g *PageGuard) Data() []byte { return g.page.Data() }

// DataMut exposes the page bytes for writing and marks the lease dirty;
// the dirty bit reaches the pool on Drop.
func (g *PageGuard) DataMut() []byte {
	g.dirty = true
	return g.page.Data()
}

// Move transfers the lease to the returned guard and leaves the receiver
// inert.
func (g *PageGuard) Move() PageGuard {
	moved := *g
	g.pool = nil
	g.page = nil
	g.dirty = false
	return moved
}

// Drop releases the pin exactly once. Subsequent Drops are no-ops.
func (g *PageGuard) Drop() {
	if g.page == nil {
		return
	}
	g.pool.UnpinPage(g.page.ID(), g.dirty)
	g.pool = nil
	g.page = nil
	g.dirty = false
}

// ReadGuard is a PageGuard that additionally holds the page's shared
// latch. Drop releases the latch first, then the pin.
type ReadGuard struct {
	g PageGuard
}

func (rg *ReadGuard) Valid() bool { return rg.g.Valid() }

func (rg *ReadGuard) PageID() common.PageID { return rg.g.PageID() }

func (rg *ReadGuard) Data() []byte { return rg.g.Data() }

func (rg *ReadGuard) Move() ReadGuard {
	return ReadGuard{g: rg.g.Move()}
}

func (rg *ReadGuard) Drop() {
	if !rg.g.Valid() {
		return
	}
	rg.g.page.RUnlock()
	rg.g.Drop()
}

// WriteGuard is a PageGuard that additionally holds the page's exclusive
// latch. Drop releases the latch first, then the pin.
type WriteGuard struct {
	g PageGuard
}

func (wg *WriteGuard) Valid() bool { return wg.g.Valid() }

func (wg *WriteGuard) PageID() common.PageID { return wg.g.PageID() }

func (wg *WriteGuard) Data() []byte { return wg.g.Data() }

func (wg *WriteGuard) DataMut() []byte { return wg.g.DataMut() }

func (wg *WriteGuard) Move() WriteGuard {
	return WriteGuard{g: wg.g.Move()}
}

func (wg *WriteGuard) Drop() {
	if !wg.g.Valid() {
		return
	}
	wg.g.page.Unlock()
	wg.g.Drop()
}

// FetchPageBasic returns a latch-free lease on the page.
func (m *Manager) FetchPageBasic(pageID common.PageID) (PageGuard, error) {
	p, err := m.FetchPage(pageID)
	if err != nil {
		return PageGuard{}, err
	}
	return PageGuard{pool: m, page: p}, nil
}

// FetchPageRead returns a lease holding the page's shared latch.
func (m *Manager) FetchPageRead(pageID common.PageID) (ReadGuard, error) {
	p, err := m.FetchPage(pageID)
	if err != nil {
		return ReadGuard{}, err
	}
	p.RLock()
	return ReadGuard{g: PageGuard{pool: m, page: p}}, nil
}

// FetchPageWrite returns a lease holding the page's exclusive latch.
func (m *Manager) FetchPageWrite(pageID common.PageID) (WriteGuard, error) {
	p, err := m.FetchPage(pageID)
	if err != nil {
		return WriteGuard{}, err
	}
	p.Lock()
	return WriteGuard{g: PageGuard{pool: m, page: p}}, nil
}

// NewPageGuarded allocates a fresh page and returns a latch-free lease.
func (m *Manager) NewPageGuarded() (PageGuard, error) {
	p, err := m.NewPage()
	if err != nil {
		return PageGuard{}, err
	}
	return PageGuard{pool: m, page: p}, nil
}

// NewPageWriteGuarded allocates a fresh page and returns it behind the
// exclusive latch.
func (m *Manager) NewPageWriteGuarded() (WriteGuard, error) {
	p, err := m.NewPage()
	if err != nil {
		return WriteGuard{}, err
	}
	p.Lock()
	return WriteGuard{g: PageGuard{pool: m, page: p}}, nil
}
