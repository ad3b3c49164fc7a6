package dbg

import (
	"log"
	"sync"

	"github.com/petermattis/goid"
)

// LoggedRWMutex is a drop-in RWMutex that traces every latch transition
// together with the goroutine id. Wrap a page latch with it when hunting
// crabbing bugs: the trace shows which goroutine holds which latch and in
// what order latches were taken.
type LoggedRWMutex struct {
	mu   sync.RWMutex
	name string
}

func NewLoggedRWMutex(name string) *LoggedRWMutex {
	return &LoggedRWMutex{name: name}
}

func (lm *LoggedRWMutex) Lock() {
	log.Printf("goid=%d waiting for W %s", goid.Get(), lm.name)
	lm.mu.Lock()
	log.Printf("goid=%d acquired W %s", goid.Get(), lm.name)
}

func (lm *LoggedRWMutex) Unlock() {
	lm.mu.Unlock()
	log.Printf("goid=%d released W %s", goid.Get(), lm.name)
}

func (lm *LoggedRWMutex) RLock() {
	log.Printf("goid=%d waiting for R %s", goid.Get(), lm.name)
	lm.mu.RLock()
	log.Printf("goid=%d acquired R %s", goid.Get(), lm.name)
}

func (lm *LoggedRWMutex) RUnlock() {
	lm.mu.RUnlock()
	log.Printf("goid=%d released R %s", goid.Get(), lm.name)
}
