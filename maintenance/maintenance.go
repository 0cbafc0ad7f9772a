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

// Package maintenance implements the loose-to-pack migration: sweeping
// every loose object into the pack store, skipping anything the
// catalog already knows about.
package maintenance

import (
	"path/filepath"

	objstore "github.com/aiidateam/godos"
	"github.com/aiidateam/godos/catalog"
	"github.com/aiidateam/godos/loose"
	"github.com/aiidateam/godos/pack"
)

// Report summarizes a PackLoose run.
type Report struct {
	Considered int
	Migrated   int
}

// PackLoose walks every loose object under cnt, skips any hash already
// present in the catalog, and streams the rest into the pack store
// under comp. It does not remove migrated loose files: their lifetime
// is the caller's concern (see C8's retention note).
func PackLoose(cnt *objstore.Container, cat *catalog.Catalog, packSizeTarget int64, comp objstore.Compression) (Report, error) {
	if err := cnt.Validate(); err != nil {
		return Report{}, err
	}

	known, err := cat.AllHashkeys()
	if err != nil {
		return Report{}, err
	}

	looseStore := loose.New(cnt)

	var (
		report  Report
		sources []objstore.ReaderMaker
	)
	err = looseStore.Walk(func(hash string) error {
		report.Considered++
		if known[hash] {
			return nil
		}
		path := filepath.Join(cnt.Loose(), hash[:2], hash[2:])
		sources = append(sources, objstore.PathReaderMaker(path))
		return nil
	})
	if err != nil {
		return report, err
	}

	if len(sources) == 0 {
		return report, nil
	}

	packStore := pack.New(cnt, cat)
	results, err := packStore.InsertMany(sources, packSizeTarget, comp)
	report.Migrated = len(results)
	if err != nil {
		return report, err
	}
	return report, nil
}
