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
	"os"
	"path/filepath"

	"github.com/aiidateam/godos/catalog"
)

const (
	configFileName = "config.json"
	catalogDBName  = "packs.idx"
	looseDirName   = "loose"
	packsDirName   = "packs"
	sandboxDirName = "sandbox"
	duplicatesDir  = "duplicates"
)

// Container is the root directory of an object store: a configuration
// record, a catalog file, and the loose/packs/sandbox/duplicates
// subdirectories. A Container value owns only a path; it holds no open
// file or database handles, which are opened per operation.
type Container struct {
	path string
}

// NewContainer returns a Container rooted at path. The directory need
// not exist yet; call Initialize to create it, or Validate to check an
// existing one.
func NewContainer(path string) *Container {
	return &Container{path: path}
}

// Path returns the container's root directory.
func (c *Container) Path() string { return c.path }

// ConfigFile returns the path to config.json.
func (c *Container) ConfigFile() string { return filepath.Join(c.path, configFileName) }

// CatalogDB returns the path to the catalog database file.
func (c *Container) CatalogDB() string { return filepath.Join(c.path, catalogDBName) }

// Loose returns the loose-store subdirectory path.
func (c *Container) Loose() string { return filepath.Join(c.path, looseDirName) }

// Packs returns the packs subdirectory path.
func (c *Container) Packs() string { return filepath.Join(c.path, packsDirName) }

// Sandbox returns the sandbox (atomic-rename staging) subdirectory path.
func (c *Container) Sandbox() string { return filepath.Join(c.path, sandboxDirName) }

// Duplicates returns the reserved duplicates subdirectory path.
func (c *Container) Duplicates() string { return filepath.Join(c.path, duplicatesDir) }

// expectedEntries lists the on-disk entries a validated container must
// have, and whether each is expected to be a directory.
func (c *Container) expectedEntries() map[string]bool {
	return map[string]bool{
		configFileName: false,
		catalogDBName:  false,
		looseDirName:   true,
		packsDirName:   true,
		sandboxDirName: true,
		duplicatesDir:  true,
	}
}

// Initialize creates the container directory (if needed), writes cfg to
// config.json, creates the loose/packs/sandbox/duplicates
// subdirectories, and creates the catalog database.
//
// It fails with *DirectoryNotEmptyError if the container directory
// already has any entries.
func (c *Container) Initialize(cfg Config) error {
	entries, err := readDirEntries(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return &UnableObtainDirError{Path: c.path}
		}
		if err := os.MkdirAll(c.path, 0o755); err != nil {
			return &CreateDirectoryError{Path: c.path, Err: err}
		}
	} else if len(entries) > 0 {
		return &DirectoryNotEmptyError{Path: c.path}
	}

	if err := writeConfig(c.ConfigFile(), cfg); err != nil {
		return err
	}

	for _, dir := range []string{c.Loose(), c.Packs(), c.Sandbox(), c.Duplicates()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &CreateDirectoryError{Path: dir, Err: err}
		}
	}

	return catalog.Create(c.CatalogDB())
}

// Validate checks that the container directory contains exactly the
// expected entries, each of the expected kind, returning
// *UninitializedError if the directory is missing or empty,
// *UnableObtainDirError if it cannot be read, and *StoreComponentError
// for an unexpected, missing, or wrong-kind entry. The catalog's SQLite
// write-ahead log files are accepted beside the catalog file.
func (c *Container) Validate() error {
	entries, err := readDirEntries(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &UninitializedError{Path: c.path}
		}
		return &UnableObtainDirError{Path: c.path}
	}
	if len(entries) == 0 {
		return &UninitializedError{Path: c.path}
	}

	expected := c.expectedEntries()
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name() == catalogDBName+"-wal" || e.Name() == catalogDBName+"-shm" {
			continue
		}
		wantDir, ok := expected[e.Name()]
		if !ok {
			return &StoreComponentError{Path: filepath.Join(c.path, e.Name()), Cause: "unexpected entry"}
		}
		if e.IsDir() != wantDir {
			return &StoreComponentError{Path: filepath.Join(c.path, e.Name()), Cause: "unexpected kind"}
		}
		seen[e.Name()] = true
	}
	for name := range expected {
		if !seen[name] {
			return &StoreComponentError{Path: filepath.Join(c.path, name), Cause: "missing"}
		}
	}
	return nil
}

// LoadConfig validates the container and reads back its configuration
// record.
func (c *Container) LoadConfig() (Config, error) {
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return readConfig(c.ConfigFile())
}

func readDirEntries(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}
