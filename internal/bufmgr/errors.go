package bufmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferExceeded is returned when every frame in the pool is
	// pinned and no victim can be chosen.
	ErrBufferExceeded = errors.New("bufmgr: buffer pool exceeded (all frames pinned)")

	// ErrHashNotFound is returned by hash table lookup/remove when the
	// page has no entry. ReadPage and UnpinPage recover from it locally;
	// it is the normal miss path, not a failure.
	ErrHashNotFound = errors.New("bufmgr: page not found in buffer hash table")

	// ErrHashAlreadyPresent is returned by hash table insert when the
	// page is already mapped to a frame.
	ErrHashAlreadyPresent = errors.New("bufmgr: page already present in buffer hash table")

	// ErrHashTableFull is returned by hash table insert when the table
	// already holds one entry per frame of the pool.
	ErrHashTableFull = errors.New("bufmgr: buffer hash table is full")
)

// PageNotPinnedError is returned by UnpinPage when the page is resident
// but its pin count is already zero.
type PageNotPinnedError struct {
	Filename string
	PageNo   uint32
	Frame    FrameID
}

func (e *PageNotPinnedError) Error() string {
	return fmt.Sprintf("bufmgr: page %d of %s in frame %d is not pinned",
		e.PageNo, e.Filename, e.Frame)
}

// PagePinnedError is returned by FlushFile when a frame belonging to
// the file still has a non-zero pin count.
type PagePinnedError struct {
	Filename string
	PageNo   uint32
	Frame    FrameID
}

func (e *PagePinnedError) Error() string {
	return fmt.Sprintf("bufmgr: page %d of %s in frame %d is still pinned",
		e.PageNo, e.Filename, e.Frame)
}

// BadBufferError is returned by FlushFile when a frame assigned to the
// file is in an invalid state.
type BadBufferError struct {
	Frame  FrameID
	Dirty  bool
	Valid  bool
	Refbit bool
}

func (e *BadBufferError) Error() string {
	return fmt.Sprintf("bufmgr: frame %d is in an invalid state (dirty=%v valid=%v refbit=%v)",
		e.Frame, e.Dirty, e.Valid, e.Refbit)
}
