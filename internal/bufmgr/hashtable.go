package bufmgr

import (
	"hash/fnv"

	"github.com/dawsonjb/buffermgr/pkg/bx"

	"github.com/dawsonjb/buffermgr/internal/storage"
)

// hashBucket is one chain entry mapping (file, pageNo) to a frame.
// Pages are keyed by the file's canonical name, so two handles for the
// same underlying file hit the same entry.
type hashBucket struct {
	filename string
	pageNo   uint32
	frame    FrameID
	next     *hashBucket
}

// hashTable maps resident pages to frames via chained hashing. The
// table holds at most one entry per frame, so maxEntries equals the
// pool size.
type hashTable struct {
	buckets    []*hashBucket
	entries    int
	maxEntries int
}

// hashTableSize returns 1.2x the pool size, truncated and then made odd
// by setting its lowest bit (so the truncated value or one more), which
// keeps chains short for typical pool sizes.
func hashTableSize(numBufs int) int {
	return (int(float64(numBufs)*1.2) & -2) + 1
}

func newHashTable(numBufs int) *hashTable {
	return &hashTable{
		buckets:    make([]*hashBucket, hashTableSize(numBufs)),
		maxEntries: numBufs,
	}
}

func (h *hashTable) slot(filename string, pageNo uint32) int {
	fh := fnv.New32a()
	_, _ = fh.Write([]byte(filename))
	var pn [4]byte
	bx.PutU32(pn[:], pageNo)
	_, _ = fh.Write(pn[:])
	return int(fh.Sum32()) % len(h.buckets)
}

// lookup returns the frame holding (file, pageNo), or ErrHashNotFound.
func (h *hashTable) lookup(file *storage.File, pageNo uint32) (FrameID, error) {
	name := file.Filename()
	for b := h.buckets[h.slot(name, pageNo)]; b != nil; b = b.next {
		if b.filename == name && b.pageNo == pageNo {
			return b.frame, nil
		}
	}
	return 0, ErrHashNotFound
}

// insert adds the mapping (file, pageNo) -> frame. The entry is visible
// to subsequent lookups on success.
func (h *hashTable) insert(file *storage.File, pageNo uint32, frame FrameID) error {
	name := file.Filename()
	slot := h.slot(name, pageNo)
	for b := h.buckets[slot]; b != nil; b = b.next {
		if b.filename == name && b.pageNo == pageNo {
			return ErrHashAlreadyPresent
		}
	}
	if h.entries >= h.maxEntries {
		return ErrHashTableFull
	}
	h.buckets[slot] = &hashBucket{
		filename: name,
		pageNo:   pageNo,
		frame:    frame,
		next:     h.buckets[slot],
	}
	h.entries++
	return nil
}

// remove deletes the mapping for (file, pageNo), or ErrHashNotFound.
func (h *hashTable) remove(file *storage.File, pageNo uint32) error {
	name := file.Filename()
	slot := h.slot(name, pageNo)
	prev := &h.buckets[slot]
	for b := *prev; b != nil; b = b.next {
		if b.filename == name && b.pageNo == pageNo {
			*prev = b.next
			h.entries--
			return nil
		}
		prev = &b.next
	}
	return ErrHashNotFound
}

// size returns the number of resident-page entries.
func (h *hashTable) size() int { return h.entries }
