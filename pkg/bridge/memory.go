package bridge

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// maxScanBytes caps the scan-to-NUL reader to defend against a guest that
// never terminates its returned string.
const maxScanBytes = 64 * 1024

// readCString scans guest memory starting at ptr for the first NUL byte,
// bounded by maxScanBytes. ptr == 0 conventionally means "no result".
func readCString(mod api.Module, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	mem := mod.Memory()
	buf := make([]byte, 0, 64)
	for i := uint32(0); i < maxScanBytes; i++ {
		b, ok := mem.ReadByte(ptr + i)
		if !ok {
			return "", fmt.Errorf("bridge: read out of bounds at offset %d", ptr+i)
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

// readBytes reads an explicit (ptr, len) pair, used where the protocol
// carries an explicit length instead of a NUL terminator.
func readBytes(mod api.Module, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if err := boundsCheck(mod, ptr, length); err != nil {
		return nil, err
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("bridge: read out of bounds (ptr=%d len=%d)", ptr, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// writeCString grows guest linear memory by enough pages to hold s plus a
// trailing NUL, writes it at the new tail, and returns its offset.
func writeCString(mod api.Module, s string) (uint32, error) {
	data := append([]byte(s), 0)
	pages := uint32((len(data) + 65535) / 65536)
	if pages == 0 {
		pages = 1
	}
	prevPages, ok := mod.Memory().Grow(pages)
	if !ok {
		return 0, fmt.Errorf("bridge: failed to grow guest memory by %d pages", pages)
	}
	offset := prevPages * 65536
	if !mod.Memory().Write(offset, data) {
		return 0, fmt.Errorf("bridge: failed to write %d bytes at offset %d", len(data), offset)
	}
	return offset, nil
}
