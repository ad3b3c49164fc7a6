package disk

import (
	"sync"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// InMemoryManager keeps pages in a map. Unit tests use it when they don't
// care about the file layout.
type InMemoryManager struct {
	mu    sync.RWMutex
	pages map[common.PageID][]byte
}

var _ common.DiskManager = &InMemoryManager{}

func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{
		pages: make(map[common.PageID][]byte),
	}
}

func (m *InMemoryManager) ReadPage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return ErrShortBuffer
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.pages[pageID]
	if !ok {
		return ErrNoSuchPage
	}
	copy(buf, stored)
	return nil
}

func (m *InMemoryManager) WritePage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return ErrShortBuffer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.pages[pageID]
	if !ok {
		stored = make([]byte, common.PageSize)
		m.pages[pageID] = stored
	}
	copy(stored, buf)
	return nil
}

// WriteCount returns the number of distinct pages ever written.
func (m *InMemoryManager) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}
