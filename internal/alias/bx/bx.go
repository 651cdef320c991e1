// stand for bytes helper
package bx

import "encoding/binary"

var LE = binary.LittleEndian

// --- LE ---
func U32(b []byte) uint32       { return LE.Uint32(b) }
func PutU32(b []byte, v uint32) { LE.PutUint32(b, v) }

// --- LE: At (offset) ---
func U32At(b []byte, off int) uint32       { return U32(b[off:]) }
func PutU32At(b []byte, off int, v uint32) { PutU32(b[off:], v) }

// --- bitmap, bit i lives in byte i/8 at position i%8 ---
func Bit(b []byte, i int) bool { return b[i>>3]&(1<<(uint(i)&7)) != 0 }
func SetBit(b []byte, i int)   { b[i>>3] |= 1 << (uint(i) & 7) }
func ClearBit(b []byte, i int) { b[i>>3] &^= 1 << (uint(i) & 7) }

// FirstClear returns the lowest clear bit index below n, or -1.
func FirstClear(b []byte, n int) int {
	for i := 0; i < n; {
		if i&7 == 0 && n-i >= 8 && b[i>>3] == 0xFF {
			i += 8
			continue
		}
		if !Bit(b, i) {
			return i
		}
		i++
	}
	return -1
}
