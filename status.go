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
	"fmt"
	"os"

	"github.com/aiidateam/godos/catalog"
)

// Counts holds the per-backend object counts and sizes that make up a
// Status report.
type Counts struct {
	Loose         int64
	LooseSize     int64
	Packs         int64
	PacksRawSize  int64
	PackFiles     int64
	PackFilesSize int64
}

// Status is a point-in-time snapshot of a container, built from the
// loose directory, the catalog, and the packs directory.
type Status struct {
	ContainerID string
	Path        string
	Count       Counts
}

// looseCounter is the minimal surface Report needs from the loose store,
// kept here rather than importing that package directly to avoid a
// dependency from the root package back onto its own subpackages'
// concrete types.
type looseCounter interface {
	Count() (count int64, totalSize int64, err error)
}

// Report assembles a Status for cnt, using cat for the catalog-backed
// counts and ls for the loose-backed counts.
func Report(cnt *Container, cat *catalog.Catalog, ls looseCounter) (Status, error) {
	cfg, err := cnt.LoadConfig()
	if err != nil {
		return Status{}, err
	}

	looseCount, looseSize, err := ls.Count()
	if err != nil {
		return Status{}, err
	}

	packCount, packRawSize, err := cat.Stats()
	if err != nil {
		return Status{}, err
	}

	packFiles, packFilesSize, err := countPackFiles(cnt.Packs())
	if err != nil {
		return Status{}, err
	}

	return Status{
		ContainerID: cfg.ContainerID,
		Path:        cnt.Path(),
		Count: Counts{
			Loose:         looseCount,
			LooseSize:     looseSize,
			Packs:         packCount,
			PacksRawSize:  packRawSize,
			PackFiles:     packFiles,
			PackFilesSize: packFilesSize,
		},
	}, nil
}

func countPackFiles(packsDir string) (count int64, totalSize int64, err error) {
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		return 0, 0, &IoOpenError{Path: packsDir, Err: err}
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		count++
		totalSize += info.Size()
	}
	return count, totalSize, nil
}

// String renders a human-readable report, matching the plain key:value
// layout the command line tool prints.
func (s Status) String() string {
	return fmt.Sprintf(
		"container: %s\npath: %s\nloose: %d objects, %d bytes\npacks: %d objects, %d bytes raw\npack files: %d, %d bytes on disk\n",
		s.ContainerID, s.Path,
		s.Count.Loose, s.Count.LooseSize,
		s.Count.Packs, s.Count.PacksRawSize,
		s.Count.PackFiles, s.Count.PackFilesSize,
	)
}
