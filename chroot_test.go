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

package uchroot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ensc/uchroot"
	. "github.com/jacobsa/ogletest"
	"golang.org/x/sys/unix"
)

func TestChroot(t *testing.T) { RunTests(t) }

type ChrootTest struct {
	root string
	c    *uchroot.Chroot
	ctx  context.Context
}

func init() {
	RegisterTestSuite(&ChrootTest{})
}

func (t *ChrootTest) SetUp(ti *TestInfo) {
	var err error

	t.root, err = os.MkdirTemp("", "uchroot_test")
	AssertEq(nil, err)

	err = buildFixture(t.root, standardFixture())
	AssertEq(nil, err)

	t.c = uchroot.NewChroot(t.root)
	t.ctx = context.Background()
}

func (t *ChrootTest) TearDown() {
	err := os.RemoveAll(t.root)
	AssertEq(nil, err)
}

// fullPathOf opens path through the chroot and returns the confined path of
// the object it resolves to. A directory is named by FullPath; FullPath
// accepts directory handles only, so any other object is named by finding
// the fixture entry with the same device and inode on the host.
func (t *ChrootTest) fullPathOf(path string) string {
	h, err := t.c.Open(t.ctx, path, unix.O_RDONLY)
	AssertEq(nil, err)
	defer h.Close()

	st, err := h.Stat()
	AssertEq(nil, err)

	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		full, err := t.c.FullPath(t.ctx, h, "")
		AssertEq(nil, err)
		return full
	}

	full := ""
	err = filepath.Walk(t.root, func(p string, _ os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}

		var est unix.Stat_t
		if err := unix.Lstat(p, &est); err != nil {
			return err
		}

		if est.Dev == st.Dev && est.Ino == st.Ino {
			rel, err := filepath.Rel(t.root, p)
			if err != nil {
				return err
			}
			full = "/" + rel
		}

		return nil
	})
	AssertEq(nil, err)

	return full
}

// contentOf opens path through the chroot and reads back everything the
// resolved handle refers to. Used to check confinement by content, not just
// by the path FullPath reports, since two fixture files can share a leaf
// name ("passwd") while living at different confined paths.
func (t *ChrootTest) contentOf(path string) string {
	h, err := t.c.Open(t.ctx, path, unix.O_RDONLY)
	AssertEq(nil, err)
	defer h.Close()

	var buf [256]byte
	n, err := unix.Read(h.FD(), buf[:])
	AssertEq(nil, err)

	return string(buf[:n])
}

func (t *ChrootTest) PlainFileIsConfined() {
	ExpectEq("/etc/passwd", t.fullPathOf("/etc/passwd"))
	ExpectEq("/tmp/passwd", t.fullPathOf("/tmp/passwd"))

	// etc/passwd and tmp/passwd share a leaf name; only distinct content
	// proves the chroot actually reached two different files rather than
	// the same one twice.
	ExpectEq("etc/passwd", t.contentOf("/etc/passwd"))
	ExpectEq("tmp/passwd", t.contentOf("/tmp/passwd"))
}

func (t *ChrootTest) SymlinkToAbsolutePathIsReinterpretedWithinRoot() {
	// tmp/lf3 -> /etc/passwd, which the host kernel would follow to the
	// host's own /etc/passwd, but the chroot must reinterpret the absolute
	// target as rooted at its own root, landing back on the *chroot's*
	// /etc/passwd.
	ExpectEq("/etc/passwd", t.fullPathOf("/tmp/lf3"))
	ExpectEq("etc/passwd", t.contentOf("/tmp/lf3"))
}

func (t *ChrootTest) SymlinkToRootIsTheRootItself() {
	ExpectEq("/", t.fullPathOf("/tmp/ld6"))
}

func (t *ChrootTest) ParentAtRootIsAFixedPoint() {
	ExpectEq("/", t.fullPathOf("/.."))
	ExpectEq("/", t.fullPathOf("/../../../.."))
	ExpectEq("/etc", t.fullPathOf("/etc/../etc"))
}

func (t *ChrootTest) RelativeSymlinkChainResolvesUnderConfinement() {
	// tmp/ld3 -> ../tmp/d0, so tmp/ld3/d1/f0 should land on tmp/d0/d1/f0.
	ExpectEq("/tmp/d0/d1/f0", t.fullPathOf("/tmp/ld3/d1/f0"))
	ExpectEq("tmp/d0/d1/f0", t.contentOf("/tmp/ld3/d1/f0"))
}

func (t *ChrootTest) NestedSymlinkInsideSymlinkTargetResolves() {
	// tmp/d0/d1/ld0 -> /tmp/ld3/d1/, and tmp/ld3 -> ../tmp/d0, so this
	// should resolve back to tmp/d0/d1 itself.
	h, err := t.c.Open(t.ctx, "/tmp/d0/d1/ld0", unix.O_RDONLY|unix.O_DIRECTORY)
	AssertEq(nil, err)
	defer h.Close()

	full, err := t.c.FullPath(t.ctx, h, "")
	AssertEq(nil, err)
	ExpectEq("/tmp/d0/d1", full)

	ExpectEq("tmp/d0/d1/f0", t.contentOf("/tmp/d0/d1/ld0/f0"))
}

func (t *ChrootTest) FullPathIsIdempotentAfterReopen() {
	first := t.fullPathOf("/tmp/d0/d1")
	second := t.fullPathOf(first)
	ExpectEq(first, second)
}

func (t *ChrootTest) SelfReferentialSymlinkIsReportedAsALoop() {
	_, err := t.c.Open(t.ctx, "/tmp/lD2", unix.O_RDONLY)
	AssertNe(nil, err)

	_, ok := err.(*uchroot.LoopError)
	ExpectTrue(ok, "expected a LoopError, got %T: %v", err, err)
}

func (t *ChrootTest) RelativePathIsRejectedByChdir() {
	_, err := t.c.Chdir(t.ctx, "etc")
	AssertNe(nil, err)

	_, ok := err.(*uchroot.ValidationError)
	ExpectTrue(ok, "expected a ValidationError, got %T: %v", err, err)
}

func (t *ChrootTest) ChdirAtResolvesRelativeToSuppliedBase() {
	base, err := t.c.Chdir(t.ctx, "/tmp/d0")
	AssertEq(nil, err)
	defer base.Close()

	h, err := t.c.ChdirAt(t.ctx, base, "d1")
	AssertEq(nil, err)
	defer h.Close()

	full, err := t.c.FullPath(t.ctx, h, "")
	AssertEq(nil, err)
	ExpectEq("/tmp/d0/d1", full)
}

func (t *ChrootTest) IsDirAtAndIsRegAtAgreeWithFixture() {
	ExpectTrue(t.c.IsDirAt(t.ctx, nil, "/tmp/d0"))
	ExpectTrue(t.c.IsRegAt(t.ctx, nil, "/tmp/passwd"))
	ExpectFalse(t.c.IsDirAt(t.ctx, nil, "/tmp/passwd"))
	ExpectFalse(t.c.IsRegAt(t.ctx, nil, "/tmp/d0"))
}

func (t *ChrootTest) StatAtDoesNotFollowTrailingSymlink() {
	st, err := t.c.StatAt(t.ctx, nil, "/tmp/lf3")
	AssertEq(nil, err)
	ExpectEq(unix.S_IFLNK, int(st.Mode&unix.S_IFMT))
}

func (t *ChrootTest) FullPathAppendsOptionalName() {
	h, err := t.c.Chdir(t.ctx, "/tmp/d0/d1")
	AssertEq(nil, err)
	defer h.Close()

	full, err := t.c.FullPath(t.ctx, h, "f0")
	AssertEq(nil, err)
	ExpectEq("/tmp/d0/d1/f0", full)

	root, err := t.c.Chdir(t.ctx, "/")
	AssertEq(nil, err)
	defer root.Close()

	full, err = t.c.FullPath(t.ctx, root, "etc")
	AssertEq(nil, err)
	ExpectEq("/etc", full)
}

func (t *ChrootTest) CannotEscapeRootViaDeepParentChain() {
	h, err := t.c.Open(t.ctx, "/../../../../etc/passwd", unix.O_RDONLY)
	AssertEq(nil, err)
	defer h.Close()

	ExpectEq("/etc/passwd", t.fullPathOf("/../../../../etc/passwd"))
}
