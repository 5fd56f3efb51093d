package bufmgr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dawsonjb/buffermgr/internal/storage"
)

var (
	logDebugPrefix = "bufmgr: "

	// DefaultNumBufs is used when the configured pool size is not positive.
	DefaultNumBufs = 128
)

// Stats counts buffer pool activity since the last ClearStats.
type Stats struct {
	Accesses   int // ReadPage calls
	DiskReads  int // pages faulted in from disk
	DiskWrites int // pages written back to disk
}

// Manager mediates all access to disk pages through a fixed pool of
// page-sized frames. Pages are faulted in on demand, victims are chosen
// by a CLOCK sweep over the frame descriptors, and dirty pages are
// written back before their frames are reused.
//
// Returned page pointers alias the pool and stay valid only while the
// caller holds its pin; UnpinPage releases it.
type Manager struct {
	mu sync.Mutex

	numBufs   int
	descs     []frameDesc
	pool      []storage.Page
	table     *hashTable
	clockHand FrameID
	stats     Stats
}

// NewManager creates a buffer pool with numBufs frames. A non-positive
// numBufs falls back to DefaultNumBufs.
func NewManager(numBufs int) *Manager {
	if numBufs <= 0 {
		numBufs = DefaultNumBufs
	}
	m := &Manager{
		numBufs:   numBufs,
		descs:     make([]frameDesc, numBufs),
		pool:      make([]storage.Page, numBufs),
		table:     newHashTable(numBufs),
		clockHand: FrameID(numBufs - 1),
	}
	for i := range m.descs {
		m.descs[i].frameNo = FrameID(i)
		m.pool[i].Buf = make([]byte, storage.PageSize)
	}
	return m
}

// NumBufs returns the pool size.
func (m *Manager) NumBufs() int { return m.numBufs }

func (m *Manager) advanceClock() {
	m.clockHand = (m.clockHand + 1) % FrameID(m.numBufs)
}

// allocFrame selects and prepares a free frame using the CLOCK sweep.
// The victim's index entry is removed and its contents written back if
// dirty, then the descriptor is cleared. Caller holds m.mu.
func (m *Manager) allocFrame() (FrameID, error) {
	allPinned := true
	for i := range m.descs {
		if m.descs[i].pinCnt == 0 {
			allPinned = false
			break
		}
	}
	if allPinned {
		return 0, ErrBufferExceeded
	}

	// One pass clears refbits, the second finds a victim; the pre-check
	// above guarantees one exists, so 2n+1 positions always suffice.
	for scanned := 0; scanned <= 2*m.numBufs; scanned++ {
		d := &m.descs[m.clockHand]
		switch {
		case !d.valid:
			return m.claimFrame(d)
		case d.refbit:
			d.refbit = false
			m.advanceClock()
		case d.pinCnt > 0:
			m.advanceClock()
		default:
			return m.claimFrame(d)
		}
	}
	return 0, ErrBufferExceeded
}

// claimFrame evicts whatever the frame holds and hands it to the
// caller empty. Caller holds m.mu.
func (m *Manager) claimFrame(d *frameDesc) (FrameID, error) {
	if d.valid {
		slog.Debug(logDebugPrefix+"evicting victim frame",
			"frame", d.frameNo,
			"file", d.file.Filename(),
			"pageNo", d.pageNo,
			"dirty", d.dirty)
		if err := m.table.remove(d.file, d.pageNo); err != nil {
			return 0, err
		}
	}
	if d.dirty {
		if err := d.file.WritePage(&m.pool[d.frameNo]); err != nil {
			return 0, err
		}
		m.stats.DiskWrites++
		d.dirty = false
	}
	d.clear()
	return d.frameNo, nil
}

// ReadPage returns the page pinned in its frame, faulting it in from
// disk on a miss. Each call takes one pin; the caller must UnpinPage.
func (m *Manager) ReadPage(file *storage.File, pageNo uint32) (*storage.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Accesses++

	frame, err := m.table.lookup(file, pageNo)
	if err == nil {
		// HIT
		d := &m.descs[frame]
		d.refbit = true
		d.pinCnt++
		slog.Debug(logDebugPrefix+"ReadPage hit",
			"file", file.Filename(), "pageNo", pageNo, "frame", frame, "pin", d.pinCnt)
		return &m.pool[frame], nil
	}
	if !errors.Is(err, ErrHashNotFound) {
		return nil, err
	}

	// MISS
	frame, err = m.allocFrame()
	if err != nil {
		return nil, err
	}
	pg, err := file.ReadPage(pageNo)
	if err != nil {
		// The claimed frame is already clear and no index entry was
		// inserted, so state rolls back to before the call.
		return nil, err
	}
	m.stats.DiskReads++
	copy(m.pool[frame].Buf, pg.Buf)

	if err := m.table.insert(file, pageNo, frame); err != nil {
		m.descs[frame].clear()
		return nil, err
	}
	m.descs[frame].set(file, pageNo)

	slog.Debug(logDebugPrefix+"ReadPage miss",
		"file", file.Filename(), "pageNo", pageNo, "frame", frame)
	return &m.pool[frame], nil
}

// UnpinPage drops one pin from the page's frame and records dirtiness.
// Unpinning a page that is not resident is a no-op; unpinning a
// resident page whose pin count is already zero is PageNotPinnedError.
func (m *Manager) UnpinPage(file *storage.File, pageNo uint32, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, err := m.table.lookup(file, pageNo)
	if err != nil {
		if errors.Is(err, ErrHashNotFound) {
			return nil
		}
		return err
	}

	d := &m.descs[frame]
	// Dirtiness is monotone until write-back, even when the unpin
	// itself fails below.
	if dirty {
		d.dirty = true
	}
	if d.pinCnt == 0 {
		return &PageNotPinnedError{Filename: file.Filename(), PageNo: pageNo, Frame: frame}
	}
	d.pinCnt--

	slog.Debug(logDebugPrefix+"UnpinPage",
		"file", file.Filename(), "pageNo", pageNo, "frame", frame,
		"pin", d.pinCnt, "dirty", d.dirty)
	return nil
}

// AllocPage creates a fresh page in the file and pins it in a frame.
func (m *Manager) AllocPage(file *storage.File) (uint32, *storage.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pg, err := file.AllocatePage()
	if err != nil {
		return 0, nil, err
	}
	pageNo := pg.PageNo()

	frame, err := m.allocFrame()
	if err != nil {
		return 0, nil, err
	}
	if err := m.table.insert(file, pageNo, frame); err != nil {
		m.descs[frame].clear()
		return 0, nil, err
	}
	m.descs[frame].set(file, pageNo)
	copy(m.pool[frame].Buf, pg.Buf)

	slog.Debug(logDebugPrefix+"AllocPage",
		"file", file.Filename(), "pageNo", pageNo, "frame", frame)
	return pageNo, &m.pool[frame], nil
}

// DisposePage deletes the page from the file, evicting it from the
// pool first if resident. The frame is cleared before the file-level
// delete so the index never points at a deleted page.
func (m *Manager) DisposePage(file *storage.File, pageNo uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, err := m.table.lookup(file, pageNo)
	switch {
	case err == nil:
		m.descs[frame].clear()
		if err := m.table.remove(file, pageNo); err != nil {
			return err
		}
	case !errors.Is(err, ErrHashNotFound):
		return err
	}

	slog.Debug(logDebugPrefix+"DisposePage",
		"file", file.Filename(), "pageNo", pageNo)
	return file.DisposePage(pageNo)
}

// FlushFile writes back every dirty page of the file and releases all
// of its frames. Frames are processed in ascending index order; the
// first pinned or invalid frame aborts the scan, leaving earlier
// frames already flushed and cleared.
func (m *Manager) FlushFile(file *storage.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < m.numBufs; i++ {
		d := &m.descs[i]
		if !d.holds(file) {
			continue
		}
		if !d.valid {
			return &BadBufferError{Frame: d.frameNo, Dirty: d.dirty, Valid: d.valid, Refbit: d.refbit}
		}
		if d.pinCnt > 0 {
			return &PagePinnedError{Filename: file.Filename(), PageNo: d.pageNo, Frame: d.frameNo}
		}
		if d.dirty {
			if err := file.WritePage(&m.pool[i]); err != nil {
				return err
			}
			m.stats.DiskWrites++
			d.dirty = false
		}
		if err := m.table.remove(file, d.pageNo); err != nil {
			return err
		}
		d.clear()
	}

	slog.Debug(logDebugPrefix+"FlushFile", "file", file.Filename())
	return nil
}

// FlushAll writes back every dirty frame in the pool without releasing
// any frame; pages stay resident and pinned pages keep their pins.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.descs {
		d := &m.descs[i]
		if !d.valid || !d.dirty {
			continue
		}
		if err := d.file.WritePage(&m.pool[i]); err != nil {
			return err
		}
		m.stats.DiskWrites++
		d.dirty = false
	}
	return nil
}

// NumUnpinned returns the number of frames with a zero pin count.
func (m *Manager) NumUnpinned() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for i := range m.descs {
		if m.descs[i].pinCnt == 0 {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ClearStats resets the activity counters.
func (m *Manager) ClearStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}

// Debug writes the state of every frame descriptor to w.
func (m *Manager) Debug(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	validFrames := 0
	for i := range m.descs {
		fmt.Fprintf(w, "%s\n", m.descs[i].String())
		if m.descs[i].valid {
			validFrames++
		}
	}
	fmt.Fprintf(w, "total valid frames: %d\n", validFrames)
	fmt.Fprintf(w, "accesses=%d diskReads=%d diskWrites=%d\n",
		m.stats.Accesses, m.stats.DiskReads, m.stats.DiskWrites)
}

// String returns the Debug dump as a string.
func (m *Manager) String() string {
	var b strings.Builder
	m.Debug(&b)
	return b.String()
}

// PrintSelf dumps the pool state to stdout.
func (m *Manager) PrintSelf() {
	m.Debug(os.Stdout)
}
