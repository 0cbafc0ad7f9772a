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

// Package loose implements the one-file-per-object store: each object is
// written, whole, to a file named by its hex digest under a two-character
// sharding directory.
package loose

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	objstore "github.com/aiidateam/godos"
	"github.com/aiidateam/godos/streamio"
)

// Store is the loose-object store rooted at a Container.
type Store struct {
	cnt *objstore.Container
}

// New returns a Store backed by cnt.
func New(cnt *objstore.Container) *Store {
	return &Store{cnt: cnt}
}

// Insert streams the bytes produced by src into the sandbox under a
// fresh UUID temp name, hashing as it goes; on success it atomically
// renames the temp file into loose/<h[0..2]>/<h[2..]>, or discards it if
// that destination already exists (dedup). It returns the number of
// bytes copied and the resulting hex digest.
func (s *Store) Insert(src objstore.ReaderMaker) (int64, string, error) {
	r, err := src.MakeReader()
	if err != nil {
		return 0, "", err
	}
	defer r.Close()

	tmpName := uuid.New().String() + ".tmp"
	tmpPath := filepath.Join(s.cnt.Sandbox(), tmpName)

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, "", &objstore.IoOpenError{Path: tmpPath, Err: err}
	}

	h := sha256.New()
	hw := streamio.NewHashingWriter(f, h)

	n, err := streamio.CopyByChunk(hw, r, streamio.LooseChunkSize)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", &objstore.ChunkCopyError{Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, "", &objstore.IoWriteError{Path: tmpPath, Err: err}
	}

	var digest [objstore.DigestSize]byte
	copy(digest[:], hw.Sum())
	ref := objstore.RefFromDigest(digest)

	shardDir := filepath.Join(s.cnt.Loose(), ref.LoosePrefix())
	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		os.Remove(tmpPath)
		return 0, "", &objstore.CreateDirectoryError{Path: shardDir, Err: err}
	}

	dst := filepath.Join(shardDir, ref.LooseRest())
	if _, err := os.Stat(dst); err == nil {
		// Already present: drop the redundant temp file, dedup by skip.
		os.Remove(tmpPath)
		return n, ref.String(), nil
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, "", &objstore.IoWriteError{Path: dst, Err: err}
	}

	return n, ref.String(), nil
}

// Object is a loose object extracted from the store: its digest and the
// path to its file. Opening it is cheap and repeatable.
type Object struct {
	Hashkey      string
	Path         string
	ExpectedSize int64
}

// MakeReader implements objstore.ReaderMaker by opening the file.
func (o Object) MakeReader() (io.ReadCloser, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, &objstore.IoOpenError{Path: o.Path, Err: err}
	}
	return f, nil
}

// Extract returns the loose Object for hash, or ok=false if no such
// file exists.
func (s *Store) Extract(hash string) (obj Object, ok bool, err error) {
	path := filepath.Join(s.cnt.Loose(), hash[:2], hash[2:])
	fi, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		return Object{}, false, nil
	}
	if statErr != nil {
		return Object{}, false, &objstore.IoOpenError{Path: path, Err: statErr}
	}
	return Object{Hashkey: hash, Path: path, ExpectedSize: fi.Size()}, true, nil
}

// ExtractMany returns the loose Objects for the given hashes, silently
// omitting any that do not exist.
func (s *Store) ExtractMany(hashes []string) ([]Object, error) {
	out := make([]Object, 0, len(hashes))
	for _, h := range hashes {
		obj, ok, err := s.Extract(h)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

// Count returns the number of loose objects and their total byte size,
// by walking the sharded directory tree. Used by the status reporter.
func (s *Store) Count() (count int64, totalSize int64, err error) {
	root := s.cnt.Loose()
	shards, err := os.ReadDir(root)
	if err != nil {
		return 0, 0, &objstore.IoOpenError{Path: root, Err: err}
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(root, shard.Name())
		entries, err := os.ReadDir(shardPath)
		if err != nil {
			return 0, 0, &objstore.IoOpenError{Path: shardPath, Err: err}
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			count++
			totalSize += info.Size()
		}
	}
	return count, totalSize, nil
}

// Walk enumerates every loose object's reconstructed hex digest, for use
// by the loose-to-pack migration.
func (s *Store) Walk(fn func(hash string) error) error {
	root := s.cnt.Loose()
	shards, err := os.ReadDir(root)
	if err != nil {
		return &objstore.IoOpenError{Path: root, Err: err}
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(root, shard.Name())
		entries, err := os.ReadDir(shardPath)
		if err != nil {
			return &objstore.IoOpenError{Path: shardPath, Err: err}
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			hash := shard.Name() + e.Name()
			if err := fn(hash); err != nil {
				return err
			}
		}
	}
	return nil
}
