package lal

import (
	"encoding/binary"
	"io"
)

// blockHeaderSize is the width, in bytes, of a single .log block header:
// a little-endian uint64 stream index followed by a little-endian uint64
// payload size. Fixed-width uint64 fields were chosen over machine-native
// width so that .log/.fmt files are portable across build targets (see
// DESIGN.md, Open Question 1).
const blockHeaderSize = 16

// encodeBlockHeader appends a block header for the given stream index and
// payload size to buf at offset off, returning the new offset.
func encodeBlockHeader(buf []byte, off int, streamIndex, payloadSize uint64) int {
	binary.LittleEndian.PutUint64(buf[off:], streamIndex)
	binary.LittleEndian.PutUint64(buf[off+8:], payloadSize)
	return off + blockHeaderSize
}

// writeBlockDirect writes one complete block (header plus payload) directly
// to w, bypassing the pipeline entirely. It is used only for the residual
// drains performed while a Log is closing, once the processor and writer
// goroutines have both terminated and nothing else can touch the file.
func writeBlockDirect(w io.Writer, streamIndex int, payload []byte) error {
	var header [blockHeaderSize]byte
	encodeBlockHeader(header[:], 0, uint64(streamIndex), uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// encodeFormatFile serializes every registered descriptor, in registration
// order, to the .fmt sidecar layout described in §6: a stream count, an
// ordering flag, then one descriptor per format
// (key, msg_len, NUL-terminated message, category, parameter keys).
func encodeFormatFile(w io.Writer, streamCount int, ordering bool, descriptors []*FormatDescriptor) error {
	var head [9]byte
	binary.LittleEndian.PutUint64(head[0:8], uint64(streamCount))
	if ordering {
		head[8] = 1
	}
	if _, err := w.Write(head[:]); err != nil {
		return err
	}

	for _, d := range descriptors {
		if err := writeDescriptor(w, d); err != nil {
			return err
		}
	}
	return nil
}

func writeDescriptor(w io.Writer, d *FormatDescriptor) error {
	var keyBuf [4]byte
	binary.LittleEndian.PutUint32(keyBuf[:], uint32(d.Key))
	if _, err := w.Write(keyBuf[:]); err != nil {
		return err
	}

	msg := append([]byte(d.Message), 0)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(msg)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}

	var catBuf [4]byte
	binary.LittleEndian.PutUint32(catBuf[:], d.Category)
	if _, err := w.Write(catBuf[:]); err != nil {
		return err
	}

	for _, pk := range d.ParamKeys {
		var pkBuf [4]byte
		binary.LittleEndian.PutUint32(pkBuf[:], uint32(pk))
		if _, err := w.Write(pkBuf[:]); err != nil {
			return err
		}
	}
	return nil
}
