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

// Command uchrootshell is a small interactive demo of the uchroot engine:
// it reads absolute paths from stdin, one per line, and prints the host
// path each one resolves to within a confined root. The host path comes
// from FullPath, which names directories only, so a path that resolves to
// any other kind of object is reported as an error.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ensc/uchroot"
	"golang.org/x/sys/unix"
)

var fRoot = flag.String("root", "", "Directory to confine path resolution to.")
var fDebug = flag.Bool("debug", false, "Enable uchroot path resolution debug logging.")

func main() {
	flag.Parse()

	if *fRoot == "" {
		log.Fatalf("You must set --root.")
	}

	if *fDebug {
		flag.Set("uchroot.debug", "true")
	}

	c := uchroot.NewChroot(*fRoot)
	ctx := context.Background()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		path := scanner.Text()
		if path == "" {
			continue
		}

		h, err := c.Open(ctx, path, unix.O_RDONLY)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}

		full, err := c.FullPath(ctx, h, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: full_path: %v\n", path, err)
		} else {
			fmt.Printf("%s -> %s%s\n", path, *fRoot, full)
		}

		if err := h.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: close: %v\n", path, err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("reading stdin: %v", err)
	}
}
