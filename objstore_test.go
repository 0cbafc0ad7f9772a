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

import "testing"

func TestRefFromBytesRoundTrip(t *testing.T) {
	ref := RefFromBytes([]byte("hello world"))
	if !ref.Valid() {
		t.Fatal("expected valid ref")
	}
	s := ref.String()
	if len(s) != HexDigestLen {
		t.Fatalf("expected %d hex chars, got %d (%s)", HexDigestLen, len(s), s)
	}

	parsed, ok := Parse(s)
	if !ok {
		t.Fatalf("Parse(%s) failed", s)
	}
	if parsed != ref {
		t.Fatalf("round-tripped ref differs: %v != %v", parsed, ref)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []string{
		"",
		"abc",
		"ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ",
		"a9993e364706816aba3e25717850c26c9cd0d89d",
	}
	for _, c := range cases {
		if _, ok := Parse(c); ok {
			t.Errorf("Parse(%q) unexpectedly succeeded", c)
		}
	}
}

func TestLoosePrefixSplit(t *testing.T) {
	ref := RefFromBytes([]byte("shard me"))
	full := ref.String()
	if ref.LoosePrefix()+ref.LooseRest() != full {
		t.Fatalf("prefix+rest != full digest: %q + %q != %q", ref.LoosePrefix(), ref.LooseRest(), full)
	}
	if len(ref.LoosePrefix()) != LoosePrefixLen {
		t.Fatalf("expected loose prefix length %d, got %d", LoosePrefixLen, len(ref.LoosePrefix()))
	}
}

func TestRefJSONRoundTrip(t *testing.T) {
	ref := RefFromBytes([]byte("json me"))
	data, err := ref.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var got Ref
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if got != ref {
		t.Fatalf("round-tripped ref differs: %v != %v", got, ref)
	}
}

func TestParseCompression(t *testing.T) {
	cases := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"none", Uncompressed, false},
		{"zlib+1", Compression{Algo: Zlib, Level: 1}, false},
		{"zlib:+1", Compression{Algo: Zlib, Level: 1}, false},
		{"zlib:+9", Compression{Algo: Zlib, Level: 9}, false},
		{"zstd:+3", Compression{Algo: Zstd, Level: 3}, false},
		{"zstd:-7", Compression{Algo: Zstd, Level: -7}, false},
		{"zzzz", Compression{}, true},
		{"zlib", Compression{}, true},
		{"zstd:", Compression{}, true},
	}
	for _, c := range cases {
		got, err := ParseCompression(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseCompression(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCompression(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseCompression(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestCompressionStringRoundTrip(t *testing.T) {
	cases := []Compression{
		Uncompressed,
		{Algo: Zlib, Level: 1},
		{Algo: Zstd, Level: 3},
		{Algo: Zstd, Level: -7},
	}
	for _, c := range cases {
		s := c.String()
		got, err := ParseCompression(s)
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", s, err)
		}
		if got != c {
			t.Errorf("round trip of %+v via %q produced %+v", c, s, got)
		}
	}
}

func TestContainerInitializeAndValidate(t *testing.T) {
	dir := t.TempDir() + "/container"
	cnt := NewContainer(dir)
	cfg := NewConfig(4<<20, Uncompressed)

	if err := cnt.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := cnt.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	got, err := cnt.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.ContainerID != cfg.ContainerID {
		t.Errorf("container id mismatch: %q != %q", got.ContainerID, cfg.ContainerID)
	}
	if got.PackSizeTarget != cfg.PackSizeTarget {
		t.Errorf("pack size target mismatch: %d != %d", got.PackSizeTarget, cfg.PackSizeTarget)
	}
}

func TestContainerInitializeRefusesNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	cnt := NewContainer(dir)
	if err := cnt.Initialize(NewConfig(4<<20, Uncompressed)); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	err := cnt.Initialize(NewConfig(4<<20, Uncompressed))
	if _, ok := err.(*DirectoryNotEmptyError); !ok {
		t.Fatalf("expected *DirectoryNotEmptyError, got %T (%v)", err, err)
	}
}

func TestContainerValidateUninitialized(t *testing.T) {
	dir := t.TempDir() + "/missing"
	cnt := NewContainer(dir)
	err := cnt.Validate()
	if _, ok := err.(*UninitializedError); !ok {
		t.Fatalf("expected *UninitializedError, got %T (%v)", err, err)
	}
}
