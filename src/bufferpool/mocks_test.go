package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

type MockDiskManager struct {
	mock.Mock
}

var _ common.DiskManager = &MockDiskManager{}

func (m *MockDiskManager) ReadPage(pageID common.PageID, buf []byte) error {
	args := m.Called(pageID, buf)
	return args.Error(0)
}

func (m *MockDiskManager) WritePage(pageID common.PageID, buf []byte) error {
	args := m.Called(pageID, buf)
	return args.Error(0)
}

type MockReplacer struct {
	mock.Mock
}

var _ Replacer = &MockReplacer{}

func (m *MockReplacer) RecordAccess(frameID common.FrameID) {
	m.Called(frameID)
}

func (m *MockReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	m.Called(frameID, evictable)
}

func (m *MockReplacer) Evict() (common.FrameID, bool) {
	args := m.Called()
	return args.Get(0).(common.FrameID), args.Bool(1)
}

func (m *MockReplacer) Remove(frameID common.FrameID) {
	m.Called(frameID)
}

func (m *MockReplacer) Size() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}
