/*
Copyright 2024 The godos Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package streamio provides the two primitives every insert path in the
// object store is built from: a writer that hashes exactly the bytes it
// actually wrote, and a fixed-buffer chunked copy.
package streamio

import (
	"hash"
	"io"
)

// Chunk sizes for the two hot paths; the pack path uses the smaller
// buffer because most objects are small and buffer allocation cost
// dominates there.
const (
	LooseChunkSize = 512 * 1024
	PackChunkSize  = 64 * 1024
)

// HashingWriter forwards writes to an inner io.Writer while feeding a
// hash.Hash the exact bytes that were actually written.
//
// Order matters: write to the inner writer first, then update the
// digest with exactly n bytes. This must hold even when the inner
// writer is a compression encoder that buffers internally, which is why
// the digest always reflects the plaintext a caller handed in, never
// what the encoder chose to flush.
type HashingWriter struct {
	w io.Writer
	h hash.Hash
}

// NewHashingWriter wraps w, feeding every successfully written byte to h.
func NewHashingWriter(w io.Writer, h hash.Hash) *HashingWriter {
	return &HashingWriter{w: w, h: h}
}

func (hw *HashingWriter) Write(buf []byte) (int, error) {
	n, err := hw.w.Write(buf)
	hw.h.Write(buf[:n])
	return n, err
}

// Sum returns the accumulated digest without resetting it.
func (hw *HashingWriter) Sum() []byte { return hw.h.Sum(nil) }

// CopyByChunk copies from r to w using a single reusable buffer of
// chunkSize bytes, writing exactly what was read on each iteration, and
// returns the total number of bytes read (and written).
func CopyByChunk(w io.Writer, r io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, rerr
		}
	}
	return total, nil
}
