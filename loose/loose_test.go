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

package loose

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	objstore "github.com/aiidateam/godos"
)

func newTestContainer(t *testing.T) *objstore.Container {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "container")
	cnt := objstore.NewContainer(dir)
	if err := cnt.Initialize(objstore.NewConfig(4<<20, objstore.Uncompressed)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return cnt
}

func TestInsertAndExtract(t *testing.T) {
	cnt := newTestContainer(t)
	s := New(cnt)

	payload := []byte("hello loose store")
	n, hash, err := s.Insert(objstore.BytesReaderMaker(payload))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("expected %d bytes copied, got %d", len(payload), n)
	}

	obj, ok, err := s.Extract(hash)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !ok {
		t.Fatal("expected extracted object to be found")
	}
	r, err := obj.MakeReader()
	if err != nil {
		t.Fatalf("MakeReader: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, payload)
	}
}

func TestInsertDuplicateIsIdempotent(t *testing.T) {
	cnt := newTestContainer(t)
	s := New(cnt)

	payload := []byte("dup123")
	var hash string
	for i := 0; i < 10; i++ {
		_, h, err := s.Insert(objstore.BytesReaderMaker(payload))
		if err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
		hash = h
	}

	path := filepath.Join(cnt.Loose(), hash[:2], hash[2:])
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected loose file to exist: %v", err)
	}

	entries, err := os.ReadDir(cnt.Sandbox())
	if err != nil {
		t.Fatalf("ReadDir sandbox: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty sandbox after dedup, found %d entries", len(entries))
	}
}

func TestExtractMissing(t *testing.T) {
	cnt := newTestContainer(t)
	s := New(cnt)

	_, ok, err := s.Extract("0000000000000000000000000000000000000000000000000000000000000000"[:64])
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ok {
		t.Fatal("expected miss for absent hash")
	}
}

func TestExtractManySkipsMissing(t *testing.T) {
	cnt := newTestContainer(t)
	s := New(cnt)

	var hashes []string
	for i := 0; i < 5; i++ {
		_, h, err := s.Insert(objstore.BytesReaderMaker([]byte{byte(i), byte(i), byte(i)}))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		hashes = append(hashes, h)
	}
	hashes = append(hashes, "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

	objs, err := s.ExtractMany(hashes)
	if err != nil {
		t.Fatalf("ExtractMany: %v", err)
	}
	if len(objs) != 5 {
		t.Fatalf("expected 5 objects, got %d", len(objs))
	}
}

func TestCountAndWalk(t *testing.T) {
	cnt := newTestContainer(t)
	s := New(cnt)

	const n = 20
	for i := 0; i < n; i++ {
		_, _, err := s.Insert(objstore.BytesReaderMaker([]byte{byte(i), byte(i + 1), byte(i + 2)}))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	count, totalSize, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != n {
		t.Fatalf("expected count %d, got %d", n, count)
	}
	if totalSize != n*3 {
		t.Fatalf("expected total size %d, got %d", n*3, totalSize)
	}

	seen := 0
	err = s.Walk(func(hash string) error {
		if len(hash) != 64 {
			t.Errorf("malformed hash from Walk: %q", hash)
		}
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if seen != n {
		t.Fatalf("expected Walk to visit %d entries, saw %d", n, seen)
	}
}
