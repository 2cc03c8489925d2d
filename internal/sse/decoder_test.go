// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"type\":\"content\",\"content\":\"Bon\"}\n\n" +
	": keep-alive\n" +
	"data: {\"type\":\"content\",\"content\":\"jour, ça va ? 🎓\"}\r\n\r\n" +
	"event: message\n" +
	"data: {\"type\":\"content\",\"content\":\"€ été\"}\n\n" +
	"data:{\"type\":\"end\",\"data\":{\"reply\":\"Bonjour!\"}}\n\n" +
	"data: {\"type\":\"content\",\"content\":\"trunc"

var sampleFrames = []string{
	`{"type":"content","content":"Bon"}`,
	`{"type":"content","content":"jour, ça va ? 🎓"}`,
	`{"type":"content","content":"€ été"}`,
	`{"type":"end","data":{"reply":"Bonjour!"}}`,
}

func feedAll(chunks [][]byte) []string {
	d := NewDecoder()
	var out []string
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	d.Close()
	return out
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_SingleChunk(t *testing.T) {
	got := feedAll([][]byte{[]byte(sampleStream)})
	assert.Equal(t, sampleFrames, got)
}

func TestDecoder_EverySplitPoint(t *testing.T) {
	raw := []byte(sampleStream)
	for i := 0; i <= len(raw); i++ {
		got := feedAll([][]byte{raw[:i], raw[i:]})
		require.Equal(t, sampleFrames, got, "split at byte %d", i)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	raw := []byte(sampleStream)
	chunks := make([][]byte, len(raw))
	for i := range raw {
		chunks[i] = raw[i : i+1]
	}
	assert.Equal(t, sampleFrames, feedAll(chunks))
}

func TestDecoder_RandomSplits(t *testing.T) {
	raw := []byte(sampleStream)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		var chunks [][]byte
		rest := raw
		for len(rest) > 0 {
			n := 1 + rng.Intn(12)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, sampleFrames, feedAll(chunks), "trial %d", trial)
	}
}

func TestDecoder_SplitMultiByteRune(t *testing.T) {
	euro := []byte("€") // three bytes
	d := NewDecoder()

	assert.Empty(t, d.Feed(append([]byte("data: "), euro[0])))
	assert.Empty(t, d.Feed(euro[1:2]))
	got := d.Feed(append(euro[2:], '\n'))

	assert.Equal(t, []string{"€"}, got)
}

func TestDecoder_LeadingBOM(t *testing.T) {
	raw := append([]byte("\xef\xbb\xbf"), []byte(sampleStream)...)
	assert.Equal(t, sampleFrames, feedAll([][]byte{raw}))
	assert.Equal(t, sampleFrames, feedAll([][]byte{raw[:1], raw[1:2], raw[2:]}))
}

func TestDecoder_InvalidBytesReplaced(t *testing.T) {
	got := feedAll([][]byte{{'d', 'a', 't', 'a', ':', ' ', 'a', 0xff, 'b', '\n'}})
	assert.Equal(t, []string{"a�b"}, got)
}

func TestDecoder_TrailingFragmentDiscarded(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed([]byte(`data: {"type":"content","content":"x"}`)))
	d.Close()
	assert.Empty(t, d.Feed([]byte("\n")), "feed after close must yield nothing")
}

func TestDecoder_IgnoresNonDataLines(t *testing.T) {
	got := feedAll([][]byte{[]byte("id: 1\nretry: 100\n: comment\ndata: \n\ndata: x\n")})
	assert.Equal(t, []string{"x"}, got)
}

func TestDecoder_OversizedLineDropped(t *testing.T) {
	d := NewDecoder()
	big := "data: " + strings.Repeat("a", MaxLineSize+10)
	assert.Empty(t, d.Feed([]byte(big)))
	got := d.Feed([]byte("aaa\ndata: ok\n"))

	assert.Equal(t, []string{"ok"}, got)
	assert.Equal(t, 1, d.Dropped())
}

// =============================================================================
// READER TESTS
// =============================================================================

// trickleReader returns at most n bytes per Read.
type trickleReader struct {
	r io.Reader
	n int
}

func (t *trickleReader) Read(p []byte) (int, error) {
	if len(p) > t.n {
		p = p[:t.n]
	}
	return t.r.Read(p)
}

func TestReader_Frames(t *testing.T) {
	r := NewReader(&trickleReader{r: strings.NewReader(sampleStream), n: 5})

	var got []string
	for {
		frame, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, frame)
	}

	assert.Equal(t, sampleFrames, got)
	assert.Equal(t, int64(len(sampleStream)), r.BytesRead())

	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF, "reader stays at EOF")
}

func TestReader_PropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(
		strings.NewReader("data: a\n"),
		&errReader{err: boom},
	)
	r := NewReader(src)

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", frame)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestReader_EmptyBody(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, r.BytesRead())
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }
