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

package streamio

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"
)

func TestHashingWriterMatchesDirectHash(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	var out bytes.Buffer
	hw := NewHashingWriter(&out, sha256.New())
	if _, err := hw.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := sha256.Sum256(data)
	if !bytes.Equal(hw.Sum(), want[:]) {
		t.Fatalf("hash mismatch: got %x want %x", hw.Sum(), want)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("inner writer did not receive the full payload")
	}
}

func TestCopyByChunkExactMultiple(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 4*16)
	var out bytes.Buffer
	n, err := CopyByChunk(&out, bytes.NewReader(data), 16)
	if err != nil {
		t.Fatalf("CopyByChunk: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("expected %d bytes copied, got %d", len(data), n)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatal("copied content does not match source")
	}
}

func TestCopyByChunkShortRemainder(t *testing.T) {
	data := []byte(strings.Repeat("y", 37))
	var out bytes.Buffer
	n, err := CopyByChunk(&out, bytes.NewReader(data), 16)
	if err != nil {
		t.Fatalf("CopyByChunk: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("expected %d bytes copied, got %d", len(data), n)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatal("copied content does not match source")
	}
}

func TestCopyByChunkEmpty(t *testing.T) {
	var out bytes.Buffer
	n, err := CopyByChunk(&out, bytes.NewReader(nil), 16)
	if err != nil {
		t.Fatalf("CopyByChunk: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 bytes copied, got %d", n)
	}
}
