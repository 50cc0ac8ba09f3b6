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
	"github.com/jacobsa/syncutil"
)

// sharedState is the refcounted core of a SharedHandle tree. mu guards
// count; h never changes after construction.
type sharedState struct {
	mu    syncutil.InvariantMutex // GUARDED: count
	h     *Handle
	count int
}

func (s *sharedState) checkInvariants() {
	if s.count < 0 {
		panic("ufd: negative SharedHandle refcount")
	}
}

// SharedHandle is a reference-counted wrapper around a Handle: the
// underlying descriptor stays open until the last clone is closed. Safe
// for concurrent use by multiple goroutines, unlike Handle itself.
type SharedHandle struct {
	s *sharedState
}

// NewSharedHandle wraps h for shared ownership. h must not be used or
// closed directly afterwards; the returned SharedHandle owns it.
func NewSharedHandle(h *Handle) *SharedHandle {
	s := &sharedState{h: h, count: 1}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)

	return &SharedHandle{s: s}
}

// Clone returns a new reference to the same underlying Handle, incrementing
// the refcount.
func (sh *SharedHandle) Clone() *SharedHandle {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()

	sh.s.count++

	return &SharedHandle{s: sh.s}
}

// Get returns the underlying Handle for use in a relative operation. The
// returned Handle remains owned by sh; callers must not Close it.
func (sh *SharedHandle) Get() *Handle {
	return sh.s.h
}

// Close drops this reference. The underlying descriptor is released when
// the last reference is closed.
func (sh *SharedHandle) Close() error {
	sh.s.mu.Lock()
	sh.s.count--
	last := sh.s.count == 0
	sh.s.mu.Unlock()

	if last {
		return sh.s.h.Close()
	}

	return nil
}
