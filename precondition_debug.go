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

//go:build uchroot_debug

package uchroot

import "github.com/ensc/uchroot/ufd"

// checkBaseInRoot asserts that base plausibly lives under c's root, by
// comparing device numbers with the cached root stat. It cannot prove base
// is actually confined (a foreign directory on the same device passes), but
// it catches the clear mistake of handing ChdirAt a handle from an entirely
// different filesystem. Compiled in only under the uchroot_debug build tag,
// since it costs an extra fstatat on every ChdirAt call.
//
// base may be nil, the same convention IsLnkAt/IsDirAt/IsRegAt/StatAt use
// for an absolute path with nothing to check it against; there is nothing
// to assert in that case.
func (c *Chroot) checkBaseInRoot(base *ufd.Handle, env *walkEnv) {
	if base == nil {
		return
	}

	info, err := c.dirInfo(base, env)
	if err != nil {
		panic("uchroot: ChdirAt base precondition check failed: " + err.Error())
	}

	if env.rootStat == nil {
		panic("uchroot: ChdirAt base precondition check ran without a root stat")
	}

	if info.stat.Dev != env.rootStat.Dev {
		panic("uchroot: ChdirAt called with a base handle from a foreign device")
	}
}
