// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import "io"

// ReadChunkSize is the size of each read from the underlying stream.
const ReadChunkSize = 4096

// Reader pulls frame payloads from an io.Reader.
type Reader struct {
	src   io.Reader
	dec   *Decoder
	buf   []byte
	queue []string
	n     int64
	err   error
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		src: r,
		dec: NewDecoder(),
		buf: make([]byte, ReadChunkSize),
	}
}

// Next returns the next payload. It returns io.EOF once the stream ends
// cleanly and the read error otherwise.
func (r *Reader) Next() (string, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return "", r.err
		}
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.n += int64(n)
			r.queue = append(r.queue, r.dec.Feed(r.buf[:n])...)
		}
		if err != nil {
			r.dec.Close()
			r.err = err
		}
	}

	frame := r.queue[0]
	r.queue = r.queue[1:]
	return frame, nil
}

// Dropped returns how many oversized lines the decoder discarded.
func (r *Reader) Dropped() int {
	return r.dec.Dropped()
}

// BytesRead returns the number of raw bytes consumed so far.
func (r *Reader) BytesRead() int64 {
	return r.n
}
