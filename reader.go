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

package objstore

import (
	"bytes"
	"io"
	"os"

	"github.com/aiidateam/godos/content"
)

// ReaderMaker is a capability: "produce a fresh reader on demand." It
// lets the pack store's insert path stay polymorphic over filesystem
// paths, in-memory byte buffers, and already-extracted objects (the key
// to loose-to-pack migration), without tying any of them to a single
// reader's lifetime.
type ReaderMaker interface {
	MakeReader() (io.ReadCloser, error)
}

// ContentProber is implemented by ReaderMakers that can classify their
// own content cheaply, without a full read, for the compression
// heuristic (C5).
type ContentProber interface {
	ProbeContent() (content.Format, error)
}

// PathReaderMaker makes readers over a file on disk.
type PathReaderMaker string

func (p PathReaderMaker) MakeReader() (io.ReadCloser, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, &IoOpenError{Path: string(p), Err: err}
	}
	return f, nil
}

// ProbeContent implements ContentProber by peeking the file.
func (p PathReaderMaker) ProbeContent() (content.Format, error) {
	return content.ProbeFile(string(p))
}

// BytesReaderMaker makes readers over an in-memory byte slice.
type BytesReaderMaker []byte

func (b BytesReaderMaker) MakeReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// ProbeContent always reports MaybeLargeText for in-memory content,
// matching the reference behavior (there is no cheap way to peek a
// magic header without fully having the bytes already, so the caller is
// assumed to already know what it's handing over).
func (b BytesReaderMaker) ProbeContent() (content.Format, error) {
	return content.MaybeLargeText, nil
}
