// Package bx holds the byte codec for page and file headers. All
// on-disk integers are little-endian; pages only ever store u16 and
// u32 fields, so those are the only widths provided.
package bx

import "encoding/binary"

var le = binary.LittleEndian

func U16(b []byte) uint16 { return le.Uint16(b) }
func U32(b []byte) uint32 { return le.Uint32(b) }

func PutU16(b []byte, v uint16) { le.PutUint16(b, v) }
func PutU32(b []byte, v uint32) { le.PutUint32(b, v) }

// *At variants read and write at an offset into a page buffer.
func U16At(b []byte, off int) uint16       { return U16(b[off:]) }
func U32At(b []byte, off int) uint32       { return U32(b[off:]) }
func PutU16At(b []byte, off int, v uint16) { PutU16(b[off:], v) }
func PutU32At(b []byte, off int, v uint32) { PutU32(b[off:], v) }
