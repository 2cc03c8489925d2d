// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DataPrefix marks a frame line.
	DataPrefix = "data:"

	// MaxLineSize bounds a single pending line. Longer lines are dropped
	// up to the next newline.
	MaxLineSize = 1024 * 1024
)

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns raw byte chunks into frame payloads.
type Decoder struct {
	utf8    *encoding.Decoder
	raw     []byte // bytes of an incomplete trailing rune
	pending strings.Builder
	skip    bool // dropping an oversized line
	closed  bool
	dropped int
}

// NewDecoder creates a decoder for one stream. A leading byte order mark
// is stripped.
func NewDecoder() *Decoder {
	return &Decoder{utf8: unicode.UTF8BOM.NewDecoder()}
}

// Feed decodes chunk and returns the payloads of every line it completes,
// in order. Lines without the data prefix are skipped.
func (d *Decoder) Feed(chunk []byte) []string {
	if d.closed || len(chunk) == 0 {
		return nil
	}

	text := d.decode(chunk)
	var frames []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			d.hold(text)
			return frames
		}
		d.hold(text[:i])
		text = text[i+1:]

		line := d.pending.String()
		d.pending.Reset()
		if d.skip {
			d.skip = false
			continue
		}
		if payload, ok := parseLine(line); ok {
			frames = append(frames, payload)
		}
	}
}

// Close ends the stream. Whatever partial line is left is an incomplete
// frame and is discarded.
func (d *Decoder) Close() {
	d.closed = true
	d.raw = nil
	d.pending.Reset()
}

// Dropped returns how many oversized lines were discarded.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// hold appends part of a line to the pending buffer.
func (d *Decoder) hold(s string) {
	if d.skip || s == "" {
		return
	}
	if d.pending.Len()+len(s) > MaxLineSize {
		d.pending.Reset()
		d.skip = true
		d.dropped++
		return
	}
	d.pending.WriteString(s)
}

// decode runs the streaming UTF-8 decoder over the held bytes plus chunk.
// An incomplete rune at the end is kept for the next call.
func (d *Decoder) decode(chunk []byte) string {
	src := chunk
	if len(d.raw) > 0 {
		src = append(d.raw, chunk...)
		d.raw = nil
	}

	var out strings.Builder
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	for {
		nDst, nSrc, err := d.utf8.Transform(dst, src, false)
		out.Write(dst[:nDst])
		src = src[nSrc:]

		switch err {
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
			continue
		case transform.ErrShortSrc:
			d.raw = append([]byte(nil), src...)
		}
		return out.String()
	}
}

// parseLine extracts the payload of a frame line.
func parseLine(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	rest, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimPrefix(rest, " ")
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}
