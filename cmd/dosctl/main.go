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

// Command dosctl is the command-line front end for a godos container:
// init, status, add-files, optimize, and cat-file. It dispatches by
// hand on os.Args[1] rather than pulling in a CLI framework, the way
// the reference cmd/pk tool dispatches its own subcommands.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	objstore "github.com/aiidateam/godos"
	"github.com/aiidateam/godos/catalog"
	"github.com/aiidateam/godos/loose"
	"github.com/aiidateam/godos/maintenance"
	"github.com/aiidateam/godos/pack"
)

func init() {
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "add-files":
		err = runAddFiles(os.Args[2:])
	case "optimize":
		err = runOptimize(os.Args[2:])
	case "cat-file":
		err = runCatFile(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "dosctl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Printf("dosctl %s: %v", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dosctl <command> [arguments]

commands:
  init [--pack-size GIB] [--compression DESC] PATH
  status PATH
  add-files [--to loose|packs|auto] PATH FILE...
  optimize pack [--no-compress] [--no-clean] PATH
  cat-file [--from loose|packs|auto] PATH HASH

flags must come before the positional arguments.`)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	packSizeGiB := fs.Float64("pack-size", 4, "target pack file size, in GiB")
	compressionDesc := fs.String("compression", "none", `compression descriptor: "none", "zlib+N"`)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("init requires exactly one PATH argument")
	}
	path := fs.Arg(0)

	comp, err := objstore.ParseCompression(*compressionDesc)
	if err != nil {
		return err
	}
	packSizeTarget := int64(*packSizeGiB * (1 << 30))

	cnt := objstore.NewContainer(path)
	cfg := objstore.NewConfig(packSizeTarget, comp)
	if err := cnt.Initialize(cfg); err != nil {
		return err
	}
	fmt.Printf("initialized container %s at %s\n", cfg.ContainerID, path)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("status requires exactly one PATH argument")
	}
	cnt := objstore.NewContainer(fs.Arg(0))

	cat, err := openCatalog(cnt)
	if err != nil {
		return err
	}
	defer cat.Close()

	st, err := objstore.Report(cnt, cat, loose.New(cnt))
	if err != nil {
		return err
	}
	fmt.Print(st.String())
	return nil
}

func runAddFiles(args []string) error {
	fs := flag.NewFlagSet("add-files", flag.ExitOnError)
	to := fs.String("to", "auto", `where to store new objects: "loose", "packs", or "auto" (same as "loose")`)
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("add-files requires a PATH and at least one FILE argument")
	}
	cnt := objstore.NewContainer(fs.Arg(0))
	files := fs.Args()[1:]

	if err := cnt.Validate(); err != nil {
		return err
	}
	cfg, err := cnt.LoadConfig()
	if err != nil {
		return err
	}

	switch *to {
	case "loose", "auto":
		ls := loose.New(cnt)
		for _, f := range files {
			_, hash, err := ls.Insert(objstore.PathReaderMaker(f))
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", hash, f)
		}
	case "packs":
		cat, err := openCatalog(cnt)
		if err != nil {
			return err
		}
		defer cat.Close()

		comp, err := cfg.Compression()
		if err != nil {
			return err
		}
		ps := pack.New(cnt, cat)
		sources := make([]objstore.ReaderMaker, len(files))
		for i, f := range files {
			sources[i] = objstore.PathReaderMaker(f)
		}
		results, err := ps.InsertMany(sources, cfg.PackSizeTarget, comp)
		if err != nil {
			return err
		}
		for i, r := range results {
			fmt.Printf("%s  %s\n", r.Hashkey, files[i])
		}
	default:
		return fmt.Errorf("add-files: unknown --to value %q", *to)
	}
	return nil
}

func runOptimize(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("optimize requires a subcommand: pack")
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "pack":
		return runOptimizePack(args)
	default:
		return fmt.Errorf("optimize: unknown subcommand %q (expected: pack)", sub)
	}
}

// runOptimizePack migrates loose objects into the pack store. no-clean is
// accepted but currently a no-op: this module does not yet remove
// migrated loose files or vacuum the catalog after packing (see the
// reference Repack/no_clean distinction this mirrors).
func runOptimizePack(args []string) error {
	fs := flag.NewFlagSet("optimize pack", flag.ExitOnError)
	noCompress := fs.Bool("no-compress", false, "store migrated objects uncompressed regardless of container config")
	_ = fs.Bool("no-clean", false, "disable clean up after pack (reserved, currently always a no-op)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("optimize pack requires exactly one PATH argument")
	}
	cnt := objstore.NewContainer(fs.Arg(0))

	cfg, err := cnt.LoadConfig()
	if err != nil {
		return err
	}
	comp, err := cfg.Compression()
	if err != nil {
		return err
	}
	if *noCompress {
		comp = objstore.Uncompressed
	}

	cat, err := openCatalog(cnt)
	if err != nil {
		return err
	}
	defer cat.Close()

	report, err := maintenance.PackLoose(cnt, cat, cfg.PackSizeTarget, comp)
	if err != nil {
		return err
	}
	fmt.Printf("considered %d loose objects, migrated %d\n", report.Considered, report.Migrated)
	return nil
}

func runCatFile(args []string) error {
	fs := flag.NewFlagSet("cat-file", flag.ExitOnError)
	from := fs.String("from", "auto", `where to look: "loose", "packs", or "auto"`)
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("cat-file requires PATH and HASH arguments")
	}
	cnt := objstore.NewContainer(fs.Arg(0))
	hash := fs.Arg(1)

	if err := cnt.Validate(); err != nil {
		return err
	}

	if *from == "loose" || *from == "auto" {
		ls := loose.New(cnt)
		obj, ok, err := ls.Extract(hash)
		if err != nil {
			return err
		}
		if ok {
			return copyReader(obj)
		}
		if *from == "loose" {
			return fmt.Errorf("cat-file: %s not found in loose store", hash)
		}
	}

	cat, err := openCatalog(cnt)
	if err != nil {
		return err
	}
	defer cat.Close()

	ps := pack.New(cnt, cat)
	obj, ok, err := ps.Extract(hash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cat-file: %s not found", hash)
	}
	return copyReader(obj)
}

func copyReader(rm objstore.ReaderMaker) error {
	r, err := rm.MakeReader()
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(os.Stdout, r)
	return err
}

func openCatalog(cnt *objstore.Container) (*catalog.Catalog, error) {
	if err := cnt.Validate(); err != nil {
		return nil, err
	}
	return catalog.Open(cnt.CatalogDB())
}
