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
	"os"
	"path/filepath"
)

// fsItem describes one entry to create under a test root: either a
// directory (Children non-nil), a regular file, or a symlink (Target
// non-empty).
type fsItem struct {
	Name     string
	Target   string
	Children []fsItem
}

// buildFixture materializes items under root, recursively.
func buildFixture(root string, items []fsItem) error {
	return buildFixtureAt(root, "", items)
}

// buildFixtureAt is buildFixture's recursive worker. rel is the path of
// root relative to the fixture's top, used only to give each plain file
// content unique to its full path: two files sharing a leaf name (e.g.
// etc/passwd and tmp/passwd) must not be mistakable for one another by
// content, or tests that check content-based confinement would pass
// vacuously.
func buildFixtureAt(root, rel string, items []fsItem) error {
	for _, it := range items {
		path := filepath.Join(root, it.Name)
		itRel := filepath.Join(rel, it.Name)

		switch {
		case it.Target != "":
			if err := os.Symlink(it.Target, path); err != nil {
				return err
			}

		case it.Children != nil:
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			if err := buildFixtureAt(path, itRel, it.Children); err != nil {
				return err
			}

		default:
			if err := os.WriteFile(path, []byte(itRel), 0644); err != nil {
				return err
			}
		}
	}

	return nil
}

// standardFixture is the tree used throughout the confinement tests:
//
//	etc/passwd
//	tmp/passwd
//	tmp/lf3       -> /etc/passwd
//	tmp/ld6       -> /
//	tmp/d0/d1/f0
//	tmp/d0/d1/ld0 -> /tmp/ld3/d1/
//	tmp/ld3       -> ../tmp/d0
//	tmp/lD2       -> lD2          (dangling, self-referential)
func standardFixture() []fsItem {
	return []fsItem{
		{Name: "etc", Children: []fsItem{
			{Name: "passwd"},
		}},
		{Name: "tmp", Children: []fsItem{
			{Name: "passwd"},
			{Name: "lf3", Target: "/etc/passwd"},
			{Name: "ld6", Target: "/"},
			{Name: "ld3", Target: "../tmp/d0"},
			{Name: "lD2", Target: "lD2"},
			{Name: "d0", Children: []fsItem{
				{Name: "d1", Children: []fsItem{
					{Name: "f0"},
					{Name: "ld0", Target: "/tmp/ld3/d1/"},
				}},
			}},
		}},
	}
}
