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

// Package ufd provides the two leaf collaborators the uchroot path-resolution
// engine is built on: Handle, an owned wrapper around a directory or file
// descriptor that knows how to perform link-aware relative operations
// (openat, fstatat, readlinkat, mkdirat, symlinkat), and DirStream, a lazy
// directory-entry reader built on top of it.
//
// Nothing in this package reasons about chroots, symlink budgets, or path
// components; it only wraps the syscalls that the engine in the parent
// package composes. See golang.org/x/sys/unix for the underlying calls.
package ufd
