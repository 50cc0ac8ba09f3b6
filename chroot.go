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

package uchroot

import (
	"context"
	"strings"

	"github.com/ensc/uchroot/ufd"
	"github.com/jacobsa/reqtrace"
	"golang.org/x/sys/unix"
)

// MaxLoopCount bounds the number of symlinks a single resolution will
// follow before it gives up with a LoopError. The same bound applies to the
// per-walk symlink budget and to the retries Open/OpenAt make for a
// trailing symlink.
const MaxLoopCount = 256

const openFlags = unix.O_DIRECTORY | unix.O_CLOEXEC | unix.O_RDONLY | unix.O_NOFOLLOW

// Chroot confines path resolution to the subtree rooted at a host directory,
// without requiring chroot(2) or mount namespace privileges. See the
// package doc comment for the resolution rules.
//
// A Chroot is safe for concurrent use: it holds no mutable state of its
// own, only the (immutable) root path.
type Chroot struct {
	root string
}

// NewChroot returns a Chroot confined to root, which must already exist and
// be a directory. root is not validated until first use.
func NewChroot(root string) *Chroot {
	return &Chroot{root: root}
}

// RootHandle opens a fresh handle onto the chroot's root directory.
func (c *Chroot) RootHandle() (*ufd.Handle, error) {
	return ufd.Open(c.root, openFlags)
}

// walkEnv threads the shared, per-call-tree state through a single
// resolution: the remaining symlink budget, and the root directory's
// identity (stat'd lazily, once, and reused for every "am I at the root?"
// check within the same call tree).
type walkEnv struct {
	counter  int
	rootStat *unix.Stat_t
}

func newWalkEnv() *walkEnv {
	return &walkEnv{counter: MaxLoopCount}
}

// dirInfo is what the walk needs to know about a directory handle: its own
// stat record, and whether it is (device, inode)-identical to the chroot's
// root.
type dirInfo struct {
	isRoot bool
	stat   unix.Stat_t
}

func (c *Chroot) dirInfo(h *ufd.Handle, env *walkEnv) (dirInfo, error) {
	if env.rootStat == nil {
		st, err := ufd.Cwd().StatAt(c.root, true)
		if err != nil {
			return dirInfo{}, err
		}
		env.rootStat = &st
	}

	st, err := h.StatAt(".", false)
	if err != nil {
		return dirInfo{}, err
	}

	isRoot := st.Dev == env.rootStat.Dev && st.Ino == env.rootStat.Ino

	return dirInfo{isRoot: isRoot, stat: st}, nil
}

func closeWarn(h *ufd.Handle) {
	if h == nil {
		return
	}

	if err := h.Close(); err != nil {
		debugf("close during cleanup failed: %v", err)
	}
}

// Chdir resolves the absolute path path against the chroot's root and
// returns a handle to the directory it names. path must be absolute within
// the chroot (i.e. start with "/"); it is never interpreted relative to the
// host.
func (c *Chroot) Chdir(ctx context.Context, path string) (h *ufd.Handle, err error) {
	_, report := reqtrace.StartSpan(ctx, "uchroot.Chdir")
	defer func() { report(err) }()

	if !strings.HasPrefix(path, "/") {
		return nil, &ValidationError{Msg: "path \"" + path + "\" is not absolute"}
	}

	env := newWalkEnv()
	h, err = c.chdirInternal(ufd.Cwd(), splitComponents(path), env)
	return h, err
}

// ChdirAt resolves path relative to base, which must itself already be
// confined to the chroot (typically obtained from an earlier call into this
// Chroot). path is interpreted the same way as for Chdir when absolute; a
// relative path is resolved starting at base. base may be nil when path is
// absolute, the same convention IsLnkAt/IsDirAt/IsRegAt/StatAt use.
func (c *Chroot) ChdirAt(ctx context.Context, base *ufd.Handle, path string) (h *ufd.Handle, err error) {
	_, report := reqtrace.StartSpan(ctx, "uchroot.ChdirAt")
	defer func() { report(err) }()

	env := newWalkEnv()
	c.checkBaseInRoot(base, env)

	start := ufd.Cwd()
	if !strings.HasPrefix(path, "/") {
		dup, derr := base.Dup(true)
		if derr != nil {
			return nil, derr
		}
		start = dup
	}

	h, err = c.chdirInternal(start, splitComponents(path), env)
	return h, err
}

// openDirContaining resolves path's parent directory relative to base and
// returns a handle to it along with the final path component's name. The
// returned handle is owned by the caller.
func (c *Chroot) openDirContaining(base *ufd.Handle, path string, env *walkEnv) (*ufd.Handle, string, error) {
	if base == nil {
		// An absolute path needs no base at all (the walk's leading
		// compRoot component replaces it immediately); nil is accepted as
		// a convenience for exactly that case.
		base = ufd.Cwd()
	}

	parentComps, name := splitParentComponents(path)

	start := ufd.Cwd()
	if !strings.HasPrefix(path, "/") {
		parentDup, err := base.Dup(true)
		if err != nil {
			return nil, "", err
		}
		start = parentDup
	}

	dirH, err := c.chdirInternal(start, parentComps, env)
	if err != nil {
		return nil, "", err
	}

	return dirH, name, nil
}

// Open resolves path against the chroot's root and opens the final
// component with flags. A trailing symlink is followed by the engine itself,
// one retry at a time; the final open never lets the kernel follow it.
func (c *Chroot) Open(ctx context.Context, path string, flags int) (h *ufd.Handle, err error) {
	_, report := reqtrace.StartSpan(ctx, "uchroot.Open")
	defer func() { report(err) }()

	root, err := c.RootHandle()
	if err != nil {
		return nil, err
	}
	defer closeWarn(root)

	return c.openAt(root, path, flags)
}

// OpenAt is like Open, but path's parent is resolved relative to base
// instead of the chroot root.
func (c *Chroot) OpenAt(ctx context.Context, base *ufd.Handle, path string, flags int) (h *ufd.Handle, err error) {
	_, report := reqtrace.StartSpan(ctx, "uchroot.OpenAt")
	defer func() { report(err) }()

	return c.openAt(base, path, flags)
}

// openAt repeatedly resolves path's final component, following it if it is
// itself a symlink, until a non-symlink is reached or the budget is spent.
//
// On each iteration the directory containing the current final component
// becomes the base for the next: this is what makes a relative symlink
// target resolve relative to the directory that held the link, not
// relative to the original base, and what turns a self-referential
// relative symlink into a detected loop instead of a spurious
// not-found error.
func (c *Chroot) openAt(base *ufd.Handle, path string, flags int) (*ufd.Handle, error) {
	env := newWalkEnv()
	curBase := base
	var owned *ufd.Handle
	cur := path

	defer func() { closeWarn(owned) }()

	for i := 0; i < MaxLoopCount; i++ {
		dirH, name, err := c.openDirContaining(curBase, cur, env)
		if err != nil {
			return nil, err
		}

		if env.counter != MaxLoopCount {
			panic("uchroot: symlink budget not restored after parent resolution")
		}

		if !dirH.IsLnkAt(name) {
			h, err := dirH.OpenAt(name, flags|unix.O_NOFOLLOW)
			closeWarn(dirH)
			return h, err
		}

		target, err := dirH.ReadlinkAt(name)
		if err != nil {
			closeWarn(dirH)
			return nil, err
		}

		closeWarn(owned)
		owned = dirH
		curBase = dirH
		cur = target
	}

	return nil, &LoopError{Path: path}
}

// IsLnkAt reports whether path, resolved relative to base, names a symbolic
// link. base may be nil when path is absolute. Any resolution failure
// coerces to false.
func (c *Chroot) IsLnkAt(ctx context.Context, base *ufd.Handle, path string) (result bool) {
	var err error
	_, report := reqtrace.StartSpan(ctx, "uchroot.IsLnkAt")
	defer func() { report(err) }()

	dirH, name, err := c.openDirContaining(base, path, newWalkEnv())
	if err != nil {
		return false
	}
	defer closeWarn(dirH)

	return dirH.IsLnkAt(name)
}

// IsDirAt reports whether path, resolved relative to base, names a
// directory. base may be nil when path is absolute. Any resolution failure
// coerces to false.
func (c *Chroot) IsDirAt(ctx context.Context, base *ufd.Handle, path string) (result bool) {
	var err error
	_, report := reqtrace.StartSpan(ctx, "uchroot.IsDirAt")
	defer func() { report(err) }()

	dirH, name, err := c.openDirContaining(base, path, newWalkEnv())
	if err != nil {
		return false
	}
	defer closeWarn(dirH)

	return dirH.IsDirAt(name)
}

// IsRegAt reports whether path, resolved relative to base, names a regular
// file. base may be nil when path is absolute. Any resolution failure
// coerces to false.
func (c *Chroot) IsRegAt(ctx context.Context, base *ufd.Handle, path string) (result bool) {
	var err error
	_, report := reqtrace.StartSpan(ctx, "uchroot.IsRegAt")
	defer func() { report(err) }()

	dirH, name, err := c.openDirContaining(base, path, newWalkEnv())
	if err != nil {
		return false
	}
	defer closeWarn(dirH)

	return dirH.IsRegAt(name)
}

// StatAt returns the stat record for path, resolved relative to base,
// without following a trailing symlink.
func (c *Chroot) StatAt(ctx context.Context, base *ufd.Handle, path string) (st unix.Stat_t, err error) {
	_, report := reqtrace.StartSpan(ctx, "uchroot.StatAt")
	defer func() { report(err) }()

	dirH, name, err := c.openDirContaining(base, path, newWalkEnv())
	if err != nil {
		return unix.Stat_t{}, err
	}
	defer closeWarn(dirH)

	return dirH.StatAt(name, false)
}
