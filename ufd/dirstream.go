// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package ufd

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// DirEntry is one materialized directory entry. Name is an OS byte string,
// not necessarily valid UTF-8.
type DirEntry struct {
	Name   string
	Ino    uint64
	Type   uint8
	Offset int64
}

// Directory entry type bits, mirrored from the kernel's dirent.d_type.
const (
	DT_UNKNOWN = unix.DT_UNKNOWN
	DT_DIR     = unix.DT_DIR
)

// DirStream is a lazy, finite, non-restartable sequence of directory
// entries. It owns the descriptor it reads from and releases it exactly
// once, on Close. Entries named "." and ".." are never yielded.
//
// Not safe for concurrent use by multiple goroutines.
type DirStream struct {
	fd   int
	buf  [4096]byte
	off  int
	n    int
	done bool
}

// NewDirStream opens a fresh descriptor onto base (via openat(base, ".")),
// detaches it from the temporary Handle that opened it, and returns a
// stream that owns it.
// base itself is left untouched and remains usable by the caller: a fresh
// descriptor is required because directory streams advance a kernel-held
// offset that a dup'd descriptor would share with base, corrupting
// iteration for whichever side reads second.
func NewDirStream(base *Handle) (*DirStream, error) {
	const flags = unix.O_DIRECTORY | unix.O_CLOEXEC | unix.O_RDONLY | unix.O_NOFOLLOW

	fresh, err := base.OpenAt(".", flags)
	if err != nil {
		return nil, err
	}
	fresh.detach()

	return &DirStream{fd: fresh.fd}, nil
}

func (d *DirStream) fill() error {
	n, err := unix.Getdents(d.fd, d.buf[:])
	if err != nil {
		return wrapErr("getdents", "", err)
	}

	d.off = 0
	d.n = n

	return nil
}

// Next returns the next entry, or (nil, nil) at end of stream. After an
// error is returned, every subsequent call returns (nil, nil) rather than
// repeating the failure.
func (d *DirStream) Next() (*DirEntry, error) {
	for {
		if d.done {
			return nil, nil
		}

		if d.off >= d.n {
			if err := d.fill(); err != nil {
				d.done = true
				return nil, err
			}

			if d.n == 0 {
				d.done = true
				return nil, nil
			}
		}

		rec := (*unix.Dirent)(unsafe.Pointer(&d.buf[d.off]))
		reclen := int(rec.Reclen)
		if reclen <= 0 {
			d.done = true
			return nil, nil
		}

		name := direntName(rec)
		entry := &DirEntry{
			Name:   name,
			Ino:    rec.Ino,
			Type:   rec.Type,
			Offset: rec.Off,
		}

		d.off += reclen

		if name == "." || name == ".." {
			continue
		}

		return entry, nil
	}
}

func direntName(rec *unix.Dirent) string {
	nameBytes := (*[256]byte)(unsafe.Pointer(&rec.Name[0]))[:]

	n := 0
	for n < len(nameBytes) && nameBytes[n] != 0 {
		n++
	}

	return string(nameBytes[:n])
}

// Close releases the underlying descriptor. Safe to call more than once.
// Failures are logged as warnings and discarded; Close is always a
// drop-path operation, so there is never a caller left to hand an error to.
func (d *DirStream) Close() {
	if d.fd < 0 {
		return
	}

	fd := d.fd
	d.fd = -1

	if err := unix.Close(fd); err != nil {
		warnf("close(dirstream) failed: %v", err)
	}
}
