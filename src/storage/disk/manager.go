package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/RelDB/src"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

var (
	ErrNoSuchPage   = errors.New("no such page")
	ErrBadMagic     = errors.New("not a reldb data file")
	ErrShortBuffer  = errors.New("page buffer must be exactly one page")
	ErrFileCorrupted = errors.New("data file size is not page-aligned")
)

const (
	// fileMagic is the first word of every data file ("RDB1").
	fileMagic uint32 = 0x31424452

	fileFormatVersion uint32 = 1

	// File header page (page 0) layout:
	//   offset 0:  u32 magic
	//   offset 4:  u32 format version
	//   offset 8:  16-byte database uuid
	offMagic   = 0
	offVersion = 4
	offDBID    = 8
)

// Manager is the file-backed disk manager. Pages live at offset
// pageID * PageSize inside a single data file; page 0 is the file header
// carrying the magic and the database id, so the first allocatable page
// id is 1.
type Manager struct {
	mu sync.RWMutex

	fs   afero.Fs
	file afero.File
	path string

	dbID uuid.UUID
	log  src.Logger
}

var _ common.DiskManager = &Manager{}

// New opens (or creates) the data file at path. A fresh file gets a header
// page stamped with a new database uuid.
func New(fs afero.Fs, path string, log src.Logger) (*Manager, error) {
	if log == nil {
		log = src.NoopLogger()
	}

	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file %s: %w", path, err)
	}

	m := &Manager{
		fs:   fs,
		file: file,
		path: path,
		log:  log,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat data file %s: %w", path, err)
	}

	if info.Size() == 0 {
		if err := m.formatHeader(); err != nil {
			file.Close()
			return nil, err
		}
		log.Infof("created data file %s, db id %s", path, m.dbID)
		return m, nil
	}

	if info.Size()%common.PageSize != 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %s has size %d", ErrFileCorrupted, path, info.Size())
	}

	if err := m.readHeader(); err != nil {
		file.Close()
		return nil, err
	}
	log.Debugf("opened data file %s, db id %s, %d pages", path, m.dbID, m.PageCount())
	return m, nil
}

func (m *Manager) formatHeader() error {
	m.dbID = uuid.New()

	var header [common.PageSize]byte
	binary.LittleEndian.PutUint32(header[offMagic:], fileMagic)
	binary.LittleEndian.PutUint32(header[offVersion:], fileFormatVersion)
	copy(header[offDBID:offDBID+16], m.dbID[:])

	if _, err := m.file.WriteAt(header[:], 0); err != nil {
		return fmt.Errorf("failed to write file header: %w", err)
	}
	return nil
}

func (m *Manager) readHeader() error {
	var header [common.PageSize]byte
	if _, err := m.file.ReadAt(header[:], 0); err != nil {
		return fmt.Errorf("failed to read file header: %w", err)
	}

	if binary.LittleEndian.Uint32(header[offMagic:]) != fileMagic {
		return fmt.Errorf("%w: %s", ErrBadMagic, m.path)
	}

	copy(m.dbID[:], header[offDBID:offDBID+16])
	return nil
}

// DatabaseID returns the uuid stamped into the file header.
func (m *Manager) DatabaseID() uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dbID
}

// PageCount returns the number of pages currently in the file, the header
// page included. A fresh pool starts allocating at this id.
func (m *Manager) PageCount() common.PageID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, err := m.file.Stat()
	if err != nil {
		return 1
	}
	return common.PageID(info.Size() / common.PageSize)
}

func (m *Manager) ReadPage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return ErrShortBuffer
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	offset := int64(pageID) * common.PageSize
	if _, err := m.file.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("failed to read page %d: %w", pageID, errors.Join(err, ErrNoSuchPage))
	}
	return nil
}

func (m *Manager) WritePage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return ErrShortBuffer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * common.PageSize
	if _, err := m.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageID, err)
	}
	return nil
}

// Sync flushes the underlying file.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Sync()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
