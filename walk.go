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

type componentKind int

const (
	compRoot componentKind = iota
	compCurrent
	compParent
	compNormal
)

type component struct {
	kind componentKind
	name string
}

// splitComponents decomposes path into the sequence of components a walk
// needs to process, in order. A leading "/" yields a single leading
// compRoot component; "." and ".." segments become compCurrent/compParent;
// everything else is compNormal. Repeated and trailing slashes collapse
// away, matching POSIX path semantics.
func splitComponents(path string) []component {
	var out []component

	if strings.HasPrefix(path, "/") {
		out = append(out, component{kind: compRoot})
	}

	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			continue
		case ".":
			out = append(out, component{kind: compCurrent})
		case "..":
			out = append(out, component{kind: compParent})
		default:
			out = append(out, component{kind: compNormal, name: seg})
		}
	}

	return out
}

// splitParentComponents splits path into the components of its parent
// (everything resolved before the final component) and the name to open
// within that parent.
//
// A final component of "." or ".." has no meaningful "name" to hand to a
// raw openat (opening ".." by that literal name would escape through the
// kernel's own idea of the parent directory, bypassing the root fixed
// point); such paths fall back to naming "." within the otherwise-fully-
// resolved parent, exactly as the engine's own path-splitting primitive
// does when the path's last component carries no extractable file name.
// A path with no components at all, or consisting only of "/", similarly
// resolves to "." within the fully-resolved path itself.
func splitParentComponents(path string) (parentComps []component, name string) {
	comps := splitComponents(path)

	if len(comps) == 0 {
		return comps, "."
	}

	last := comps[len(comps)-1]

	switch last.kind {
	case compRoot:
		return comps, "."
	case compCurrent, compParent:
		return comps[:len(comps)-1], "."
	default:
		return comps[:len(comps)-1], last.name
	}
}

// advance applies a single path component to cur, returning the handle that
// results. consumed reports whether cur was already closed (or handed off)
// as part of producing next, so the caller must not close it again.
func (c *Chroot) advance(cur *ufd.Handle, comp component, env *walkEnv) (next *ufd.Handle, consumed bool, err error) {
	switch comp.kind {
	case compRoot:
		next, err = c.RootHandle()
		return next, false, err

	case compCurrent:
		return cur, false, nil

	case compParent:
		info, ierr := c.dirInfo(cur, env)
		if ierr != nil {
			return nil, false, ierr
		}
		if info.isRoot {
			// ".." at the root is a fixed point: stay put, exactly as the
			// kernel's own root directory behaves.
			return cur, false, nil
		}

		next, err = cur.OpenAt("..", openFlags)
		return next, false, err

	case compNormal:
		if !cur.IsLnkAt(comp.name) {
			next, err = cur.OpenAt(comp.name, openFlags)
			return next, false, err
		}

		if env.counter == 0 {
			return nil, false, &LoopError{Path: comp.name}
		}

		target, rerr := cur.ReadlinkAt(comp.name)
		if rerr != nil {
			return nil, false, rerr
		}

		env.counter--
		next, err = c.chdirInternal(cur, splitComponents(target), env)
		env.counter++

		// cur was handed into the recursive call and either closed there
		// or threaded through as part of its result; either way this
		// frame must not touch it again.
		return next, true, err
	}

	panic("uchroot: unreachable path component kind")
}

// chdirInternal walks comps starting from start, which it takes ownership
// of (it will be closed, unless returned unchanged as the final result).
func (c *Chroot) chdirInternal(start *ufd.Handle, comps []component, env *walkEnv) (*ufd.Handle, error) {
	cur := start

	for _, comp := range comps {
		next, consumed, err := c.advance(cur, comp, env)
		if err != nil {
			if !consumed {
				closeWarn(cur)
			}
			return nil, err
		}

		if !consumed && next != cur {
			closeWarn(cur)
		}

		cur = next
	}

	return cur, nil
}

// checkEntry reports whether entry, read from parentH, is the directory
// described by info. Returns ("", nil) for "not a match", a non-empty name
// for "this is it", and a non-nil error only for a genuine I/O failure.
func checkEntry(parentH *ufd.Handle, entry *ufd.DirEntry, info dirInfo) (string, error) {
	if entry.Ino != info.stat.Ino {
		return "", nil
	}

	if entry.Type != ufd.DT_DIR && entry.Type != ufd.DT_UNKNOWN {
		return "", nil
	}

	st, err := parentH.StatAt(entry.Name, false)
	if err != nil {
		return "", err
	}

	if st.Mode&unix.S_IFMT != unix.S_IFDIR || st.Ino != info.stat.Ino || st.Dev != info.stat.Dev {
		return "", nil
	}

	return entry.Name, nil
}

// FullPath reconstructs the chroot-relative absolute path of the directory
// h, optionally with a final component name appended (pass "" to name just
// h itself). h must refer to a directory: the walk stats "." and opens ".."
// relative to it, and both fail for any other kind of handle. It works by
// walking ".." back to the root, reading each parent directory to find the
// entry whose inode and device match the child, the same walk a userspace
// getcwd(3) implementation performs.
func (c *Chroot) FullPath(ctx context.Context, h *ufd.Handle, name string) (path string, err error) {
	_, report := reqtrace.StartSpan(ctx, "uchroot.FullPath")
	defer func() { report(err) }()

	env := newWalkEnv()

	cur, err := h.Dup(true)
	if err != nil {
		return "", err
	}

	var names []string

	for {
		info, ierr := c.dirInfo(cur, env)
		if ierr != nil {
			closeWarn(cur)
			return "", ierr
		}

		if env.counter != MaxLoopCount {
			panic("uchroot: symlink budget consumed during full_path walk")
		}

		if info.isRoot {
			break
		}

		parent, perr := cur.OpenAt("..", openFlags)
		if perr != nil {
			closeWarn(cur)
			return "", perr
		}

		found, ferr := findNameIn(parent, info)
		closeWarn(cur)

		if ferr != nil {
			closeWarn(parent)
			return "", ferr
		}

		if found == "" {
			closeWarn(parent)
			return "", &FullPathError{Msg: "containing directory entry vanished"}
		}

		names = append(names, found)
		cur = parent
	}

	closeWarn(cur)

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}

	var b strings.Builder
	if len(names) == 0 && name == "" {
		b.WriteByte('/')
	}
	for _, n := range names {
		b.WriteByte('/')
		b.WriteString(n)
	}
	if name != "" {
		b.WriteByte('/')
		b.WriteString(name)
	}

	return b.String(), nil
}

// findNameIn scans parent's entries for the one matching info, returning
// "" if none is found (the caller decides whether that is an error).
func findNameIn(parent *ufd.Handle, info dirInfo) (string, error) {
	stream, err := ufd.NewDirStream(parent)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	for {
		entry, err := stream.Next()
		if err != nil {
			return "", err
		}
		if entry == nil {
			return "", nil
		}

		name, err := checkEntry(parent, entry, info)
		if err != nil {
			return "", err
		}
		if name != "" {
			return name, nil
		}
	}
}
