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
	"io"
	"log"
	"sync/atomic"
)

// warnLogger receives drop-path failures (close/closedir errors that occur
// during cleanup and cannot be meaningfully surfaced to a caller). Defaults
// to discarding; the parent uchroot package points it at its own debug
// logger so both packages log through one sink.
var warnLogger atomic.Pointer[log.Logger]

func init() {
	warnLogger.Store(log.New(io.Discard, "", 0))
}

// SetWarnLogger installs the logger used for drop-path warnings. A nil
// logger restores the default (discard).
func SetWarnLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}

	warnLogger.Store(l)
}

func warnf(format string, args ...interface{}) {
	warnLogger.Load().Printf(format, args...)
}
