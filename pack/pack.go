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

// Package pack implements the append-only pack store: many objects
// concatenated into a small number of large files, indexed by the
// catalog. This is the hardest component — it owns pack rollover, the
// hashing/compressing writer pipeline, and transactional batch inserts.
package pack

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zlib"

	objstore "github.com/aiidateam/godos"
	"github.com/aiidateam/godos/catalog"
	"github.com/aiidateam/godos/content"
	"github.com/aiidateam/godos/streamio"
)

// Store is the pack store rooted at a Container, indexed by a Catalog.
type Store struct {
	cnt *objstore.Container
	cat *catalog.Catalog
}

// New returns a Store backed by cnt and indexed by cat.
func New(cnt *objstore.Container, cat *catalog.Catalog) *Store {
	return &Store{cnt: cnt, cat: cat}
}

// currentPackID discovers the Current Working Pack: the highest-numbered
// file in the packs directory, or 0 (freshly created) if the directory
// is empty.
func (s *Store) currentPackID() (int64, error) {
	entries, err := os.ReadDir(s.cnt.Packs())
	if err != nil {
		return 0, &objstore.UnableObtainDirError{Path: s.cnt.Packs()}
	}
	if len(entries) == 0 {
		if err := s.createPackFile(0); err != nil {
			return 0, err
		}
		return 0, nil
	}

	var max int64 = -1
	for _, e := range entries {
		n, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			return 0, &objstore.ParsePackFilenameError{N: e.Name()}
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (s *Store) packPath(id int64) string {
	return filepath.Join(s.cnt.Packs(), strconv.FormatInt(id, 10))
}

func (s *Store) createPackFile(id int64) error {
	path := s.packPath(id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &objstore.IoOpenError{Path: path, Err: err}
	}
	return f.Close()
}

// cwp holds the open state for the pack currently accepting writes.
type cwp struct {
	id     int64
	f      *os.File
	offset int64
}

func (s *Store) openCWP(packSizeTarget int64) (*cwp, error) {
	id, err := s.currentPackID()
	if err != nil {
		return nil, err
	}
	path := s.packPath(id)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, &objstore.IoOpenError{Path: path, Err: err}
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, &objstore.IoOpenError{Path: path, Err: err}
	}

	if offset >= packSizeTarget {
		f.Close()
		id++
		if err := s.createPackFile(id); err != nil {
			return nil, err
		}
		path = s.packPath(id)
		f, err = os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, &objstore.IoOpenError{Path: path, Err: err}
		}
		offset = 0
	}

	return &cwp{id: id, f: f, offset: offset}, nil
}

func (c *cwp) rollover(s *Store) error {
	if err := c.f.Close(); err != nil {
		return &objstore.IoWriteError{Path: s.packPath(c.id), Err: err}
	}
	c.id++
	if err := s.createPackFile(c.id); err != nil {
		return err
	}
	path := s.packPath(c.id)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return &objstore.IoOpenError{Path: path, Err: err}
	}
	c.f = f
	c.offset = 0
	return nil
}

func (c *cwp) close() error {
	return c.f.Close()
}

// InsertResult describes the outcome of inserting one object.
type InsertResult struct {
	Hashkey      string
	BytesWritten int64
}

// InsertMany streams each ReaderMaker in sources into the Current
// Working Pack, rolling over to a new pack whenever the running offset
// reaches packSizeTarget, and committing one catalog transaction per
// pack. The comp descriptor governs whether MaybeLargeText inputs are
// zlib-compressed; all other content-format classes are always stored
// uncompressed regardless of comp.
func (s *Store) InsertMany(sources []objstore.ReaderMaker, packSizeTarget int64, comp objstore.Compression) ([]InsertResult, error) {
	c, err := s.openCWP(packSizeTarget)
	if err != nil {
		return nil, err
	}
	defer c.close()

	tx, err := s.cat.Begin()
	if err != nil {
		return nil, err
	}

	results := make([]InsertResult, 0, len(sources))

	for _, src := range sources {
		if c.offset >= packSizeTarget {
			if err := tx.Commit(); err != nil {
				return results, err
			}
			if err := c.rollover(s); err != nil {
				return results, err
			}
			tx, err = s.cat.Begin()
			if err != nil {
				return results, err
			}
		}

		res, err := s.insertOne(c, tx, src, comp)
		if err != nil {
			tx.Rollback()
			return results, err
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return results, err
	}
	return results, nil
}

// Insert is InsertMany of a single source.
func (s *Store) Insert(src objstore.ReaderMaker, packSizeTarget int64, comp objstore.Compression) (InsertResult, error) {
	results, err := s.InsertMany([]objstore.ReaderMaker{src}, packSizeTarget, comp)
	if err != nil {
		return InsertResult{}, err
	}
	return results[0], nil
}

func (s *Store) insertOne(c *cwp, tx *catalog.Tx, src objstore.ReaderMaker, comp objstore.Compression) (InsertResult, error) {
	r, err := src.MakeReader()
	if err != nil {
		return InsertResult{}, err
	}
	defer r.Close()

	willCompress := false
	if !comp.IsNone() && comp.Algo == objstore.Zlib {
		if prober, ok := src.(objstore.ContentProber); ok {
			format, err := prober.ProbeContent()
			if err == nil && format == content.MaybeLargeText {
				willCompress = true
			}
		}
	}

	preOffset := c.offset

	h := sha256.New()

	var rawSize int64
	if willCompress {
		zw, err := zlib.NewWriterLevel(c.f, comp.Level)
		if err != nil {
			return InsertResult{}, &objstore.IoWriteError{Path: s.packPath(c.id), Err: err}
		}
		hw := streamio.NewHashingWriter(zw, h)
		rawSize, err = streamio.CopyByChunk(hw, r, streamio.PackChunkSize)
		if err != nil {
			return InsertResult{}, &objstore.ChunkCopyError{Err: err}
		}
		if err := zw.Close(); err != nil {
			return InsertResult{}, &objstore.IoWriteError{Path: s.packPath(c.id), Err: err}
		}
	} else {
		hw := streamio.NewHashingWriter(c.f, h)
		rawSize, err = streamio.CopyByChunk(hw, r, streamio.PackChunkSize)
		if err != nil {
			return InsertResult{}, &objstore.ChunkCopyError{Err: err}
		}
	}

	newPos, err := c.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return InsertResult{}, &objstore.IoWriteError{Path: s.packPath(c.id), Err: err}
	}
	bytesWritten := newPos - preOffset

	var digest [objstore.DigestSize]byte
	copy(digest[:], h.Sum(nil))
	ref := objstore.RefFromDigest(digest)

	if err := tx.Insert(catalog.Entry{
		Hashkey:    ref.String(),
		Compressed: willCompress,
		RawSize:    rawSize,
		Size:       bytesWritten,
		Offset:     preOffset,
		PackID:     c.id,
	}); err != nil {
		return InsertResult{}, err
	}

	c.offset += bytesWritten
	return InsertResult{Hashkey: ref.String(), BytesWritten: bytesWritten}, nil
}

// Object is a pack object extracted from the catalog: its coordinates
// within a pack file. Opening it is cheap and repeatable, and
// lifetime-decoupled from the Store beyond the call that produced it.
type Object struct {
	Hashkey    string
	packPath   string
	Offset     int64
	RawSize    int64
	Size       int64
	Compressed bool
}

// MakeReader implements objstore.ReaderMaker: it opens the pack file,
// seeks to Offset, limits the reader to Size bytes, and, if Compressed,
// wraps it in a zlib decoder.
func (o Object) MakeReader() (io.ReadCloser, error) {
	f, err := os.Open(o.packPath)
	if err != nil {
		return nil, &objstore.IoOpenError{Path: o.packPath, Err: err}
	}
	if _, err := f.Seek(o.Offset, io.SeekStart); err != nil {
		f.Close()
		return nil, &objstore.IoOpenError{Path: o.packPath, Err: err}
	}
	limited := io.LimitReader(f, o.Size)

	if !o.Compressed {
		return readCloser{Reader: limited, closer: f}, nil
	}

	zr, err := zlib.NewReader(limited)
	if err != nil {
		f.Close()
		return nil, &objstore.IoOpenError{Path: o.packPath, Err: err}
	}
	return readCloser{Reader: zr, closer: f}, nil
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (rc readCloser) Close() error { return rc.closer.Close() }

// ToBytes reads the full decoded payload of o, failing with
// *objstore.UnexpectedCopySizeError if the decoded length does not
// match RawSize.
func (o Object) ToBytes() ([]byte, error) {
	r, err := o.MakeReader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &objstore.ChunkCopyError{Err: err}
	}
	if int64(len(data)) != o.RawSize {
		return nil, &objstore.UnexpectedCopySizeError{Expected: o.RawSize, Got: int64(len(data))}
	}
	return data, nil
}

func (s *Store) objectFromEntry(e catalog.Entry) Object {
	return Object{
		Hashkey:    e.Hashkey,
		packPath:   s.packPath(e.PackID),
		Offset:     e.Offset,
		RawSize:    e.RawSize,
		Size:       e.Size,
		Compressed: e.Compressed,
	}
}

// Extract looks up hash in the catalog and returns its pack Object, or
// ok=false if no such entry exists.
func (s *Store) Extract(hash string) (obj Object, ok bool, err error) {
	e, found, err := s.cat.Select(hash)
	if err != nil {
		return Object{}, false, err
	}
	if !found {
		return Object{}, false, nil
	}
	return s.objectFromEntry(e), true, nil
}

// ExtractMany returns the pack Objects for the given hex digests,
// silently omitting any that are missing from the catalog. Output
// cardinality may be less than len(hashes).
func (s *Store) ExtractMany(hashes []string) ([]Object, error) {
	entries, err := s.cat.SelectMany(hashes)
	if err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.objectFromEntry(e))
	}
	return out, nil
}
