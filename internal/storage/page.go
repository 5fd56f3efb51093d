package storage

import (
	"github.com/dawsonjb/buffermgr/pkg/bx"
)

// +------------------+ 0
// | pageNo  nextFree |
// | flags lower upper|
// +------------------+ HeaderSize
// | Slots[]          | <-- lower
// +------------------+
// |   Free space     |
// +------------------+ <-- upper
// |  Record data     |
// |  (grows down)    |
// +------------------+ PageSize (8192)
//
// A slot is (offset u16, length u16); offset 0 marks a deleted slot
// since record offsets are always >= HeaderSize.
type Page struct {
	Buf []byte
}

// NewPage returns an initialized empty page carrying pageNo.
func NewPage(pageNo uint32) *Page {
	p := &Page{Buf: make([]byte, PageSize)}
	p.init(pageNo)
	return p
}

func (p *Page) init(pageNo uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	bx.PutU32At(p.Buf, offPageNo, pageNo)
	bx.PutU32At(p.Buf, offNextFree, 0)
	bx.PutU16At(p.Buf, offFlags, 0)
	bx.PutU16At(p.Buf, offLower, HeaderSize)
	bx.PutU16At(p.Buf, offUpper, PageSize)
}

// PageNo returns the page number stored in the page header.
func (p *Page) PageNo() uint32 {
	return bx.U32At(p.Buf, offPageNo)
}

func (p *Page) nextFree() uint32      { return bx.U32At(p.Buf, offNextFree) }
func (p *Page) setNextFree(pn uint32) { bx.PutU32At(p.Buf, offNextFree, pn) }
func (p *Page) flags() uint16         { return bx.U16At(p.Buf, offFlags) }
func (p *Page) isFree() bool          { return p.flags()&pageFlagFree != 0 }
func (p *Page) markFree()             { bx.PutU16At(p.Buf, offFlags, p.flags()|pageFlagFree) }
func (p *Page) lower() int            { return int(bx.U16At(p.Buf, offLower)) }
func (p *Page) setLower(v int)        { bx.PutU16At(p.Buf, offLower, uint16(v)) }
func (p *Page) upper() int            { return int(bx.U16At(p.Buf, offUpper)) }
func (p *Page) setUpper(v int)        { bx.PutU16At(p.Buf, offUpper, uint16(v)) }

// FreeSpace returns the number of contiguous free bytes between the
// slot array and the record data.
func (p *Page) FreeSpace() int {
	return p.upper() - p.lower()
}

// NumSlots returns the number of slots ever allocated, deleted included.
func (p *Page) NumSlots() int {
	return (p.lower() - HeaderSize) / SlotSize
}

func (p *Page) slotOff(idx int) int {
	return HeaderSize + idx*SlotSize
}

func (p *Page) getSlot(idx int) (offset, length int) {
	o := p.slotOff(idx)
	return int(bx.U16At(p.Buf, o)), int(bx.U16At(p.Buf, o+2))
}

func (p *Page) putSlot(idx, offset, length int) {
	o := p.slotOff(idx)
	bx.PutU16At(p.Buf, o, uint16(offset))
	bx.PutU16At(p.Buf, o+2, uint16(length))
}

// InsertRecord copies rec into the page and returns its slot number.
// Returns ErrPageFull when the record plus a new slot does not fit.
func (p *Page) InsertRecord(rec []byte) (int, error) {
	if len(rec)+SlotSize > p.FreeSpace() {
		return -1, ErrPageFull
	}
	u := p.upper() - len(rec)
	copy(p.Buf[u:], rec)
	p.setUpper(u)

	slot := p.NumSlots()
	p.putSlot(slot, u, len(rec))
	p.setLower(p.lower() + SlotSize)
	return slot, nil
}

// GetRecord returns the record stored at slot. The returned slice
// aliases the page buffer.
func (p *Page) GetRecord(slot int) ([]byte, error) {
	if slot < 0 || slot >= p.NumSlots() {
		return nil, ErrInvalidSlot
	}
	offset, length := p.getSlot(slot)
	if offset == 0 {
		return nil, ErrInvalidSlot
	}
	return p.Buf[offset : offset+length], nil
}

// UpdateRecord replaces the record at slot. A shorter or equal record
// is rewritten in place; a longer one is moved into free space.
func (p *Page) UpdateRecord(slot int, rec []byte) error {
	if slot < 0 || slot >= p.NumSlots() {
		return ErrInvalidSlot
	}
	offset, length := p.getSlot(slot)
	if offset == 0 {
		return ErrInvalidSlot
	}
	if len(rec) <= length {
		copy(p.Buf[offset:], rec)
		p.putSlot(slot, offset, len(rec))
		return nil
	}
	if len(rec) > p.FreeSpace() {
		return ErrPageFull
	}
	u := p.upper() - len(rec)
	copy(p.Buf[u:], rec)
	p.setUpper(u)
	p.putSlot(slot, u, len(rec))
	return nil
}

// DeleteRecord marks the slot as deleted. Space is not reclaimed.
func (p *Page) DeleteRecord(slot int) error {
	if slot < 0 || slot >= p.NumSlots() {
		return ErrInvalidSlot
	}
	offset, _ := p.getSlot(slot)
	if offset == 0 {
		return ErrInvalidSlot
	}
	p.putSlot(slot, 0, 0)
	return nil
}
