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

import "fmt"

// ValidationError reports a caller-supplied path that cannot be resolved at
// all, independent of the filesystem's contents (not absolute, empty, etc).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("uchroot: %s", e.Msg)
}

// LoopError reports that resolution consumed its symlink budget without
// terminating, i.e. it looks like a symlink loop.
type LoopError struct {
	Path string
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("uchroot: too many levels of symbolic links resolving %q", e.Path)
}

// FullPathError reports that FullPath could not reconstruct a path for a
// Handle, typically because an entry vanished out from under it between the
// initial open and the directory walk back to the root.
type FullPathError struct {
	Msg string
}

func (e *FullPathError) Error() string {
	return fmt.Sprintf("uchroot: %s", e.Msg)
}
