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
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ContainerVersion is the on-disk layout version this package writes
// and expects to read.
const ContainerVersion = 1

// LoosePrefixLen is the number of leading hex characters used to shard
// the loose store into subdirectories.
const LoosePrefixLen = 2

// Compression identifies a compression algorithm and, where applicable,
// its level.
type Compression struct {
	Algo  CompressionAlgo
	Level int
}

// CompressionAlgo enumerates the supported compression algorithm
// families.
type CompressionAlgo int

const (
	// None means objects are stored uncompressed.
	None CompressionAlgo = iota
	// Zlib means objects worth compressing are zlib-encoded at Level.
	Zlib
	// Zstd is reserved: it parses but is not exposed to end users in v1.
	Zstd
)

// Uncompressed is the zero-value "none" descriptor.
var Uncompressed = Compression{Algo: None}

// IsNone reports whether c performs no compression.
func (c Compression) IsNone() bool { return c.Algo == None }

// String renders c back to its canonical descriptor form.
func (c Compression) String() string {
	switch c.Algo {
	case None:
		return "none"
	case Zlib:
		return "zlib:+" + strconv.Itoa(c.Level)
	case Zstd:
		sign := "+"
		n := c.Level
		if n < 0 {
			sign = "-"
			n = -n
		}
		return "zstd:" + sign + strconv.Itoa(n)
	default:
		return "none"
	}
}

// ParseCompression parses a compression algorithm descriptor string.
//
// Grammar:
//
//	"none"                      -> no compression
//	"zlib+N" or "zlib:+N"       -> zlib at level N (legacy "zlib+1" form accepted)
//	"zstd:+N" or "zstd:-N"      -> reserved, parses but not exposed
//
// Any other input is a *ParseCompressionError.
func ParseCompression(s string) (Compression, error) {
	if s == "none" {
		return Uncompressed, nil
	}
	if rest, ok := stripZlibPrefix(s); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return Compression{}, &ParseCompressionError{S: s}
		}
		return Compression{Algo: Zlib, Level: n}, nil
	}
	if rest, ok := strings.CutPrefix(s, "zstd:"); ok {
		if len(rest) == 0 {
			return Compression{}, &ParseCompressionError{S: s}
		}
		sign := rest[0]
		if sign != '+' && sign != '-' {
			return Compression{}, &ParseCompressionError{S: s}
		}
		n, err := strconv.Atoi(rest[1:])
		if err != nil {
			return Compression{}, &ParseCompressionError{S: s}
		}
		if sign == '-' {
			n = -n
		}
		return Compression{Algo: Zstd, Level: n}, nil
	}
	return Compression{}, &ParseCompressionError{S: s}
}

// stripZlibPrefix matches both the legacy "zlib+N" form and the
// canonical "zlib:+N" form and returns the level text after the '+'.
func stripZlibPrefix(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "zlib:+"); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(s, "zlib+"); ok {
		return rest, true
	}
	return "", false
}

// Config is the serialized configuration record written once at
// container initialization and read thereafter.
type Config struct {
	ContainerID          string `json:"container_id"`
	ContainerVersion     int    `json:"container_version"`
	LoosePrefixLen       int    `json:"loose_prefix_len"`
	PackSizeTarget       int64  `json:"pack_size_target"`
	HashType             string `json:"hash_type"`
	CompressionAlgorithm string `json:"compression_algorithm"`
}

// NewConfig builds a fresh configuration record with a new container
// id, the given pack size target (in bytes), and compression
// descriptor.
func NewConfig(packSizeTarget int64, compression Compression) Config {
	return Config{
		ContainerID:          uuid.New().String(),
		ContainerVersion:     ContainerVersion,
		LoosePrefixLen:       LoosePrefixLen,
		PackSizeTarget:       packSizeTarget,
		HashType:             "sha256",
		CompressionAlgorithm: compression.String(),
	}
}

// Compression parses the configured compression descriptor.
func (c Config) Compression() (Compression, error) {
	return ParseCompression(c.CompressionAlgorithm)
}

func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return &ConfigFileError{Path: path, Err: err}
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &ConfigFileError{Path: path, Err: err}
	}
	return nil
}

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigFileError{Path: path, Err: err}
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigFileError{Path: path, Err: err}
	}
	return cfg, nil
}
