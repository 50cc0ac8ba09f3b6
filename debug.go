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
	"flag"
	"io"
	"log"
	"os"
	"sync"

	"github.com/ensc/uchroot/ufd"
	"github.com/jacobsa/timeutil"
)

var fEnableDebug = flag.Bool(
	"uchroot.debug",
	false,
	"Write uchroot path resolution debugging messages to stderr.")

var gLogger *log.Logger
var gLoggerOnce sync.Once
var gClock timeutil.Clock = timeutil.RealClock()

func initLogger() {
	if !flag.Parsed() {
		panic("uchroot: initLogger called before flags available")
	}

	var writer io.Writer = io.Discard
	if *fEnableDebug {
		writer = os.Stderr
	}

	gLogger = log.New(writer, "", 0)
	ufd.SetWarnLogger(gLogger)
}

func getLogger() *log.Logger {
	gLoggerOnce.Do(initLogger)
	return gLogger
}

// SetClock overrides the clock used to timestamp debug log lines. Intended
// for tests that need deterministic output; production callers never need
// to call this.
func SetClock(c timeutil.Clock) {
	gClock = c
}

func debugf(format string, args ...interface{}) {
	l := getLogger()
	ts := gClock.Now().Format("2006/01/02 15:04:05.000000")
	l.Printf(ts+" uchroot: "+format, args...)
}
