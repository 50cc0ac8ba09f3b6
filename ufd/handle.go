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

package ufd

import (
	"os"
	"sync/atomic"

	"github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"
)

// Handle is an owned wrapper around a file descriptor referring to a
// directory or file. It releases the descriptor exactly once, on Close,
// unless it was constructed as unmanaged (the cwd sentinel, or a descriptor
// whose ownership has been transferred elsewhere).
//
// A Handle is not safe for concurrent use by multiple goroutines; see
// SharedHandle for a refcounted flavor that is.
type Handle struct {
	fd      int
	managed atomic.Bool
}

func newHandle(fd int) *Handle {
	h := &Handle{fd: fd}
	h.managed.Store(fd >= 0 && fd != unix.AT_FDCWD)
	return h
}

func newUnmanagedHandle(fd int) *Handle {
	return &Handle{fd: fd}
}

// Cwd returns the sentinel Handle meaning "the process's current working
// directory". It is never closed.
func Cwd() *Handle {
	return newUnmanagedHandle(unix.AT_FDCWD)
}

// Adopt takes ownership of a raw descriptor obtained elsewhere. The
// previous owner must not use or close it afterwards.
func Adopt(fd int) *Handle {
	return newHandle(fd)
}

// Open opens path, which may be relative to the process cwd or absolute.
func Open(path string, flags int) (*Handle, error) {
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, wrapErr("open", path, err)
	}

	return newHandle(fd), nil
}

// OpenAt opens name relative to h.
func (h *Handle) OpenAt(name string, flags int) (*Handle, error) {
	fd, err := unix.Openat(h.fd, name, flags, 0)
	if err != nil {
		return nil, wrapErr("openat", name, err)
	}

	return newHandle(fd), nil
}

// CreateAt opens-or-creates name relative to h with the given mode. When
// preallocSize is positive, the new file's space is preallocated on a
// best-effort basis (failures are logged, never returned, mirroring the
// drop-path warning policy used elsewhere in this package).
func (h *Handle) CreateAt(name string, flags int, mode uint32, preallocSize int64) (*Handle, error) {
	fd, err := unix.Openat(h.fd, name, flags|unix.O_CREAT, mode)
	if err != nil {
		return nil, wrapErr("openat", name, err)
	}

	nh := newHandle(fd)

	if preallocSize > 0 {
		preallocateBestEffort(nh, preallocSize)
	}

	return nh, nil
}

// preallocateBestEffort preallocates size bytes for h's underlying file via
// go-fallocate. It operates on a duplicated descriptor so the caller's
// Handle lifecycle is untouched: the dup is owned entirely by the *os.File
// created here and is closed before returning.
func preallocateBestEffort(h *Handle, size int64) {
	dupFd, err := unix.FcntlInt(uintptr(h.fd), unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		warnf("dup for preallocation failed: %v", err)
		return
	}

	f := os.NewFile(uintptr(dupFd), "")
	defer f.Close()

	if err := fallocate.Fallocate(f, 0, size); err != nil {
		warnf("fallocate failed: %v", err)
	}
}

// MkdirAt creates a directory named name relative to h.
func (h *Handle) MkdirAt(name string, mode uint32) error {
	return wrapErr("mkdirat", name, unix.Mkdirat(h.fd, name, mode))
}

// SymlinkAt creates a symbolic link named name relative to h, pointing at
// target.
func (h *Handle) SymlinkAt(target, name string) error {
	return wrapErr("symlinkat", name, unix.Symlinkat(target, h.fd, name))
}

// StatAt returns the stat record for name relative to h. When follow is
// false, a terminal symlink is not dereferenced.
func (h *Handle) StatAt(name string, follow bool) (unix.Stat_t, error) {
	var flags int
	if !follow {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}

	var st unix.Stat_t
	if err := unix.Fstatat(h.fd, name, &st, flags); err != nil {
		return unix.Stat_t{}, wrapErr("fstatat", name, err)
	}

	return st, nil
}

// Stat returns the stat record for h itself.
func (h *Handle) Stat() (unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Fstat(h.fd, &st); err != nil {
		return unix.Stat_t{}, wrapErr("fstat", "", err)
	}

	return st, nil
}

func (h *Handle) isFileType(name string, fileType uint32) bool {
	st, err := h.StatAt(name, false)
	if err != nil {
		return false
	}

	return st.Mode&unix.S_IFMT == fileType
}

// IsLnkAt reports whether name, relative to h, is a symbolic link. Any
// failure to determine this coerces to false.
func (h *Handle) IsLnkAt(name string) bool {
	return h.isFileType(name, unix.S_IFLNK)
}

// IsDirAt reports whether name, relative to h, is a directory. Any failure
// to determine this coerces to false.
func (h *Handle) IsDirAt(name string) bool {
	return h.isFileType(name, unix.S_IFDIR)
}

// IsRegAt reports whether name, relative to h, is a regular file. Any
// failure to determine this coerces to false.
func (h *Handle) IsRegAt(name string) bool {
	return h.isFileType(name, unix.S_IFREG)
}

// ReadlinkAt returns the target of the symlink name, relative to h. The
// buffer grows geometrically until the kernel reports a length strictly
// less than capacity (a full buffer means the read may have been
// truncated).
func (h *Handle) ReadlinkAt(name string) (string, error) {
	for size := 256; ; size *= 2 {
		buf := make([]byte, size)

		n, err := unix.Readlinkat(h.fd, name, buf)
		if err != nil {
			return "", wrapErr("readlinkat", name, err)
		}

		if n < size {
			return string(buf[:n]), nil
		}
	}
}

// Dup duplicates h's descriptor, choosing the lowest free descriptor >= 3
// so the standard streams are never shadowed.
func (h *Handle) Dup(cloexec bool) (*Handle, error) {
	cmd := unix.F_DUPFD
	if cloexec {
		cmd = unix.F_DUPFD_CLOEXEC
	}

	fd, err := unix.FcntlInt(uintptr(h.fd), cmd, 3)
	if err != nil {
		return nil, wrapErr("fcntl", "", err)
	}

	return newHandle(int(fd)), nil
}

// FD returns the raw descriptor. It does not affect ownership; the
// returned value becomes invalid once h is closed.
func (h *Handle) FD() int {
	return h.fd
}

// detach marks h as no longer owning its descriptor, without closing it.
// Used to transfer ownership, e.g. to a DirStream.
func (h *Handle) detach() {
	h.managed.Store(false)
}

// Close releases h's descriptor if h owns it. Closing an already-closed or
// unmanaged Handle is a no-op. Safe to call more than once.
func (h *Handle) Close() error {
	if !h.managed.CompareAndSwap(true, false) {
		return nil
	}

	if err := unix.Close(h.fd); err != nil {
		return wrapErr("close", "", err)
	}

	return nil
}
