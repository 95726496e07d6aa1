// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// atomicWriteFile writes data to path so that a crash at any point
// leaves either the previous contents or the complete new contents in
// place, never a partial write (spec.md §4.12): write to a unique
// sibling tempfile, fsync the tempfile, rename over the target, fsync
// the parent directory.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := fdatasync(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return fsyncDir(dir)
}

// fdatasync flushes f's data (and enough metadata to retrieve it) to
// stable storage.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// fsyncDir flushes the directory entry created by a preceding rename,
// without which a power loss could leave the rename itself unlogged
// even though the file content landed safely.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
