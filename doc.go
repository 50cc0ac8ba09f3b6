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

// Package uchroot implements a userspace chroot: path resolution confined to
// a root directory R on the host, without kernel chroot or namespace
// privileges.
//
// Given a root R and a client-supplied path P, treated as absolute within R,
// Chroot resolves P while honoring symbolic links, ".." components, and
// nested link chains in a way that prevents escape from R. Every
// intermediate open uses O_DIRECTORY|O_NOFOLLOW so the kernel never follows
// a symlink the engine hasn't inspected first; ".." is reinterpreted so that
// it cannot ascend past R, and an absolute symlink target is reinterpreted
// as rooted at R rather than at the host's real root.
//
//	c := uchroot.NewChroot("/srv/www")
//	h, err := c.Open(ctx, "/etc/passwd", unix.O_RDONLY)
//
// will open /srv/www/etc/passwd, following any symlinks found along the way
// as if /srv/www were the filesystem root.
//
// This package does not implement a security boundary against an adversary
// racing filesystem mutations between syscalls, does not implement mount
// points or bind mounts, and does not mount anything itself — it has no
// kernel channel of any kind. See ufd for the descriptor and directory-
// stream primitives the engine is built on.
package uchroot
