package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dawsonjb/buffermgr/pkg/bx"
)

// File header page (page 0) layout.
const (
	hdrOffNumPages = 0
	hdrOffFreeHead = 4
)

// File is a page file on disk. Page 0 holds the page count and the
// head of the free list; data pages start at 1. Disposed pages are
// chained on the free list and reused by AllocatePage.
//
// Two File handles address the same underlying file iff their
// Filename() values are equal (paths are canonicalized on open).
type File struct {
	name string // canonical absolute path
	file *os.File

	mu       sync.Mutex
	numPages uint32 // total pages including the header page
	freeHead uint32 // 0 = free list empty
}

// OpenFile opens or creates a page file at path.
func OpenFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve file path: %w", err)
	}

	fh, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, FileMode0664)
	if err != nil {
		return nil, fmt.Errorf("open page file: %w", err)
	}

	info, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("stat page file: %w", err)
	}

	f := &File{name: abs, file: fh}

	if info.Size() == 0 {
		f.numPages = 1
		if err := f.writeHeader(); err != nil {
			_ = fh.Close()
			return nil, err
		}
		return f, nil
	}

	hdr := make([]byte, PageSize)
	if _, err := fh.ReadAt(hdr, 0); err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("read file header: %w", err)
	}
	f.numPages = bx.U32At(hdr, hdrOffNumPages)
	f.freeHead = bx.U32At(hdr, hdrOffFreeHead)
	return f, nil
}

func (f *File) writeHeader() error {
	hdr := make([]byte, PageSize)
	bx.PutU32At(hdr, hdrOffNumPages, f.numPages)
	bx.PutU32At(hdr, hdrOffFreeHead, f.freeHead)
	if _, err := f.file.WriteAt(hdr, 0); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}
	return nil
}

func pageOffset(pageNo uint32) int64 {
	return int64(pageNo) * PageSize
}

// Filename returns the canonical path of the file. File identity is
// filename identity.
func (f *File) Filename() string { return f.name }

// IsValid reports whether the handle is open and usable.
func (f *File) IsValid() bool { return f != nil && f.file != nil }

// NumPages returns the total page count, header page included.
func (f *File) NumPages() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

// Close closes the underlying OS file. The header is kept current on
// every allocate/dispose, so no flush is needed here.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// readPageLocked reads the raw page, free or not. Caller holds f.mu.
func (f *File) readPageLocked(pageNo uint32) (*Page, error) {
	p := &Page{Buf: make([]byte, PageSize)}
	if _, err := f.file.ReadAt(p.Buf, pageOffset(pageNo)); err != nil {
		return nil, fmt.Errorf("read page %d: %w", pageNo, err)
	}
	return p, nil
}

// ReadPage reads one allocated data page from disk.
func (f *File) ReadPage(pageNo uint32) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil, ErrFileClosed
	}
	if pageNo == headerPageNo || pageNo >= f.numPages {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, pageNo)
	}
	p, err := f.readPageLocked(pageNo)
	if err != nil {
		return nil, err
	}
	if p.isFree() {
		return nil, fmt.Errorf("%w: %d (disposed)", ErrInvalidPage, pageNo)
	}
	return p, nil
}

// WritePage writes the page at the position named by its header.
func (f *File) WritePage(p *Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return ErrFileClosed
	}
	pageNo := p.PageNo()
	if pageNo == headerPageNo || pageNo >= f.numPages {
		return fmt.Errorf("%w: %d", ErrInvalidPage, pageNo)
	}
	if _, err := f.file.WriteAt(p.Buf, pageOffset(pageNo)); err != nil {
		return fmt.Errorf("write page %d: %w", pageNo, err)
	}
	return nil
}

// AllocatePage produces a fresh empty page, reusing the free list when
// possible and extending the file otherwise. The page is written to
// disk before it is returned.
func (f *File) AllocatePage() (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil, ErrFileClosed
	}

	var pageNo uint32
	if f.freeHead != 0 {
		pageNo = f.freeHead
		freed, err := f.readPageLocked(pageNo)
		if err != nil {
			return nil, err
		}
		f.freeHead = freed.nextFree()
	} else {
		pageNo = f.numPages
		f.numPages++
	}

	p := NewPage(pageNo)
	if _, err := f.file.WriteAt(p.Buf, pageOffset(pageNo)); err != nil {
		return nil, fmt.Errorf("write page %d: %w", pageNo, err)
	}
	if err := f.writeHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// DisposePage deletes the page from the file by pushing it on the free
// list. Its contents are zeroed on disk.
func (f *File) DisposePage(pageNo uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return ErrFileClosed
	}
	if pageNo == headerPageNo || pageNo >= f.numPages {
		return fmt.Errorf("%w: %d", ErrInvalidPage, pageNo)
	}
	cur, err := f.readPageLocked(pageNo)
	if err != nil {
		return err
	}
	if cur.isFree() {
		return fmt.Errorf("%w: %d (already disposed)", ErrInvalidPage, pageNo)
	}

	p := NewPage(pageNo)
	p.markFree()
	p.setNextFree(f.freeHead)
	if _, err := f.file.WriteAt(p.Buf, pageOffset(pageNo)); err != nil {
		return fmt.Errorf("write page %d: %w", pageNo, err)
	}
	f.freeHead = pageNo
	return f.writeHeader()
}
