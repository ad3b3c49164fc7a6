package bufferpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Blackdeer1524/RelDB/src"
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// ErrNoSpaceLeft is returned when every frame is pinned and nothing can
// be evicted.
var ErrNoSpaceLeft = errors.New("no space left in the buffer pool")

// BufferPool is the guarded surface consumers (the index, executors) use.
type BufferPool interface {
	FetchPageBasic(pageID common.PageID) (PageGuard, error)
	FetchPageRead(pageID common.PageID) (ReadGuard, error)
	FetchPageWrite(pageID common.PageID) (WriteGuard, error)
	NewPageGuarded() (PageGuard, error)
	NewPageWriteGuarded() (WriteGuard, error)

	UnpinPage(pageID common.PageID, dirty bool) bool
	FlushPage(pageID common.PageID) (bool, error)
	FlushAllPages() error
	DeletePage(pageID common.PageID) (bool, error)
}

// Manager owns the page array, the page table, the free list and the
// replacer. Every operation serializes under a single pool mutex; page
// latches are never taken while it is held.
type Manager struct {
	poolSize uint64

	mu        sync.Mutex
	frames    []*page.Page
	pageTable map[common.PageID]common.FrameID
	freeList  []common.FrameID

	replacer   Replacer
	disk       common.DiskManager
	logManager common.LogManager

	nextPageID common.PageID

	log     src.Logger
	metrics *Metrics
}

var _ BufferPool = &Manager{}

type Option func(*Manager)

func WithLogger(log src.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithLogManager installs an observer notified after every page write-back.
func WithLogManager(lm common.LogManager) Option {
	return func(m *Manager) { m.logManager = lm }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithReplacer swaps the eviction policy. Tests install mocks here.
func WithReplacer(r Replacer) Option {
	return func(m *Manager) { m.replacer = r }
}

// WithLatchFactory controls how per-frame latches are built. Tests pass
// dbg.NewLoggedRWMutex here to trace crabbing.
func WithLatchFactory(factory func(frameID common.FrameID) page.RWLatch) Option {
	return func(m *Manager) {
		for i := range m.frames {
			m.frames[i] = page.NewPageWithLatch(factory(common.FrameID(i)))
		}
	}
}

// WithFirstPageID sets the id the pool hands out first. Openers of
// existing files pass the disk manager's page count here.
func WithFirstPageID(id common.PageID) Option {
	return func(m *Manager) { m.nextPageID = id }
}

func New(poolSize uint64, replacerK uint64, disk common.DiskManager, opts ...Option) *Manager {
	assert.Assert(poolSize > 0, "pool size must be greater than zero")

	m := &Manager{
		poolSize:   poolSize,
		frames:     make([]*page.Page, poolSize),
		pageTable:  make(map[common.PageID]common.FrameID, poolSize),
		freeList:   make([]common.FrameID, 0, poolSize),
		replacer:   NewLRUKReplacer(poolSize, replacerK),
		disk:       disk,
		logManager: common.NoopLogManager(),
		nextPageID: 0,
		log:        src.NoopLogger(),
	}

	for i := range m.frames {
		m.frames[i] = page.NewPage()
		m.freeList = append(m.freeList, common.FrameID(i))
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewPage allocates a fresh page id, installs it into a frame and returns
// the frame pinned once. The caller must UnpinPage it eventually.
func (m *Manager) NewPage() (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, err := m.acquireFrame()
	if err != nil {
		return nil, err
	}

	pageID := m.nextPageID
	m.nextPageID++

	frame := m.frames[frameID]
	frame.Reset()
	frame.SetID(pageID)
	frame.IncPin()

	m.pageTable[pageID] = frameID
	m.replacer.RecordAccess(frameID)
	m.replacer.SetEvictable(frameID, false)

	m.log.Debugf("new page %d in frame %d", pageID, frameID)
	return frame, nil
}

// FetchPage returns the requested page pinned once, reading it from disk
// when it is not resident.
func (m *Manager) FetchPage(pageID common.PageID) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frameID, ok := m.pageTable[pageID]; ok {
		frame := m.frames[frameID]
		frame.IncPin()
		m.replacer.RecordAccess(frameID)
		if frame.PinCount() == 1 {
			m.replacer.SetEvictable(frameID, false)
		}
		m.metrics.hit()
		return frame, nil
	}

	frameID, err := m.acquireFrame()
	if err != nil {
		return nil, err
	}

	frame := m.frames[frameID]
	frame.Reset()
	if err := m.disk.ReadPage(pageID, frame.Data()); err != nil {
		m.freeList = append(m.freeList, frameID)
		return nil, fmt.Errorf("failed to fetch page %d: %w", pageID, err)
	}

	frame.SetID(pageID)
	frame.IncPin()

	m.pageTable[pageID] = frameID
	m.replacer.RecordAccess(frameID)
	m.replacer.SetEvictable(frameID, false)

	m.metrics.miss()
	return frame, nil
}

// acquireFrame takes a frame from the free list or evicts one. The caller
// holds the pool mutex. On success the frame is unmapped and unpinned.
func (m *Manager) acquireFrame() (common.FrameID, error) {
	if len(m.freeList) > 0 {
		frameID := m.freeList[len(m.freeList)-1]
		m.freeList = m.freeList[:len(m.freeList)-1]
		return frameID, nil
	}

	frameID, ok := m.replacer.Evict()
	if !ok {
		return 0, ErrNoSpaceLeft
	}

	victim := m.frames[frameID]
	assert.Assert(victim.PinCount() == 0, "evicting pinned page %d", victim.ID())

	if victim.IsDirty() {
		if err := m.writeBackLocked(victim); err != nil {
			// the entry is already gone from the replacer; make the frame
			// reachable again instead of leaking it
			m.replacer.RecordAccess(frameID)
			m.replacer.SetEvictable(frameID, true)
			return 0, err
		}
	}

	delete(m.pageTable, victim.ID())
	m.metrics.eviction()
	m.log.Debugf("evicted page %d from frame %d", victim.ID(), frameID)
	return frameID, nil
}

func (m *Manager) writeBackLocked(frame *page.Page) error {
	if err := m.disk.WritePage(frame.ID(), frame.Data()); err != nil {
		return fmt.Errorf("failed to write back page %d: %w", frame.ID(), err)
	}
	frame.SetDirty(false)
	m.logManager.OnPageWrite(frame.ID())
	m.metrics.writeBack()
	return nil
}

// UnpinPage drops one pin and ORs the dirty hint into the frame. It
// reports false when the page is not resident or not pinned.
func (m *Manager) UnpinPage(pageID common.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return false
	}

	frame := m.frames[frameID]
	if frame.PinCount() == 0 {
		return false
	}

	frame.DecPin()
	if dirty {
		frame.SetDirty(true)
	}
	if frame.PinCount() == 0 {
		m.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage writes the page to disk unconditionally and clears its dirty
// flag. The bool reports residency.
func (m *Manager) FlushPage(pageID common.PageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return false, nil
	}

	if err := m.writeBackLocked(m.frames[frameID]); err != nil {
		return true, err
	}
	return true, nil
}

// FlushAllPages writes every resident page to disk.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, frameID := range m.pageTable {
		err = errors.Join(err, m.writeBackLocked(m.frames[frameID]))
	}
	return err
}

// DeletePage evicts the page and returns its frame to the free list. Not
// resident is a successful no-op; a pinned page reports false.
func (m *Manager) DeletePage(pageID common.PageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return true, nil
	}

	frame := m.frames[frameID]
	if frame.PinCount() > 0 {
		return false, nil
	}

	if frame.IsDirty() {
		if err := m.writeBackLocked(frame); err != nil {
			return false, err
		}
	}

	delete(m.pageTable, pageID)
	m.replacer.Remove(frameID)
	m.freeList = append(m.freeList, frameID)
	frame.Reset()
	return true, nil
}
