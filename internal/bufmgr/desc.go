package bufmgr

import (
	"fmt"

	"github.com/dawsonjb/buffermgr/internal/storage"
)

// FrameID identifies a frame in the buffer pool; it equals the frame's
// index in the pool and never changes.
type FrameID int

// frameDesc is the bookkeeping state of one buffer frame. file and
// pageNo are meaningful only while valid is set.
type frameDesc struct {
	frameNo FrameID
	file    *storage.File
	pageNo  uint32
	pinCnt  int
	dirty   bool
	refbit  bool
	valid   bool
}

// set marks the frame resident for (file, pageNo). The first pin is
// taken on behalf of the caller that faulted the page in.
func (d *frameDesc) set(file *storage.File, pageNo uint32) {
	d.file = file
	d.pageNo = pageNo
	d.pinCnt = 1
	d.dirty = false
	d.refbit = false
	d.valid = true
}

// clear resets the frame to empty and forgets its page identity.
func (d *frameDesc) clear() {
	d.file = nil
	d.pageNo = 0
	d.pinCnt = 0
	d.dirty = false
	d.refbit = false
	d.valid = false
}

// holds reports whether the frame currently names the given file.
func (d *frameDesc) holds(file *storage.File) bool {
	return d.file != nil && d.file.Filename() == file.Filename()
}

func (d *frameDesc) String() string {
	name := "<none>"
	if d.file != nil {
		name = d.file.Filename()
	}
	return fmt.Sprintf("frame=%d file=%s pageNo=%d pin=%d dirty=%v refbit=%v valid=%v",
		d.frameNo, name, d.pageNo, d.pinCnt, d.dirty, d.refbit, d.valid)
}
