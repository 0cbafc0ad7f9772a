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

// Package objstore implements a content-addressed object store: a large
// number of immutable binary blobs kept on a single host, identified by
// the SHA-256 digest of their bytes, in either loose (one file per
// object) or packed (many objects concatenated into large append-only
// files, indexed by a catalog) form.
package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
)

// DigestSize is the length in bytes of a SHA-256 digest.
const DigestSize = sha256.Size

// HexDigestLen is the length of a digest rendered as lowercase hex.
const HexDigestLen = DigestSize * 2

var hexRef = regexp.MustCompile("^[a-f0-9]{" + "64" + "}$")

// Ref is a reference to an object, identified by its SHA-256 digest.
// It is a value type: it supports equality with == and may be used as a
// map key.
type Ref struct {
	digest [DigestSize]byte
	valid  bool
}

// Parse parses s, a 64-character lowercase hex string, as a Ref.
func Parse(s string) (Ref, bool) {
	if !hexRef.MatchString(s) {
		return Ref{}, false
	}
	var buf [DigestSize]byte
	if _, err := hex.Decode(buf[:], []byte(s)); err != nil {
		return Ref{}, false
	}
	return Ref{digest: buf, valid: true}, true
}

// MustParse parses s as a Ref and panics if s is not a valid digest.
func MustParse(s string) Ref {
	r, ok := Parse(s)
	if !ok {
		panic("objstore: invalid ref " + s)
	}
	return r
}

// RefFromDigest builds a Ref directly from a 32-byte SHA-256 digest.
func RefFromDigest(digest [DigestSize]byte) Ref {
	return Ref{digest: digest, valid: true}
}

// RefFromBytes returns the Ref for the SHA-256 digest of b.
func RefFromBytes(b []byte) Ref {
	return RefFromDigest(sha256.Sum256(b))
}

// Valid reports whether r was constructed from a valid digest.
func (r Ref) Valid() bool { return r.valid }

// String returns the lowercase hex digest, or "<invalid-ref>" if r is zero.
func (r Ref) String() string {
	if !r.valid {
		return "<invalid-ref>"
	}
	return hex.EncodeToString(r.digest[:])
}

// Bytes returns the raw 32-byte digest.
func (r Ref) Bytes() [DigestSize]byte { return r.digest }

// LoosePrefix returns the first two hex characters, used as the loose
// store's sharding directory name.
func (r Ref) LoosePrefix() string { return r.String()[:2] }

// LooseRest returns the remaining 62 hex characters of the digest.
func (r Ref) LooseRest() string { return r.String()[2:] }

func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return nil, errors.New("objstore: cannot marshal invalid Ref")
	}
	s := r.String()
	buf := make([]byte, 0, len(s)+2)
	buf = append(buf, '"')
	buf = append(buf, s...)
	buf = append(buf, '"')
	return buf, nil
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("objstore: invalid Ref JSON")
	}
	parsed, ok := Parse(string(data[1 : len(data)-1]))
	if !ok {
		return errors.New("objstore: invalid digest in Ref JSON")
	}
	*r = parsed
	return nil
}
