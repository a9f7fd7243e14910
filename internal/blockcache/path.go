// Copyright 2025 Google LLC
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

package blockcache

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// shardDir returns the name of the shard directory inode is filed under.
func shardDir(inode uint64, dirNum uint32) string {
	return strconv.FormatUint(inode%uint64(dirNum), 10)
}

// path resolves an inode to its on-disk cache file location (§4.2 "File
// path resolution"): root/(inode mod DIR_NUM)/{inode}-large.
func (m *Manager) path(inode uint64) string {
	return filepath.Join(m.root, shardDir(inode, m.dirNum), fmt.Sprintf("%d-large", inode))
}

// parseEntryName extracts the inode from a cache file's base name, or
// reports ok=false for anything that doesn't match the "<digits>-large"
// shape (so startup scanning tolerates stray files).
func parseEntryName(name string) (inode uint64, ok bool) {
	const suffix = "-large"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return 0, false
	}
	digits := name[:len(name)-len(suffix)]
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
