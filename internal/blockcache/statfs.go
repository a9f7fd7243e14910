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

import "golang.org/x/sys/unix"

// freeRatios is the pair of watermarks the evictor compares against
// free_ratio/bg_free_ratio: fraction of blocks free and fraction of
// inodes free on the filesystem backing the cache root.
type freeRatios struct {
	blocksFree float64
	inodesFree float64
}

func statfsRatios(path string) (freeRatios, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return freeRatios{}, err
	}

	var blocksFree float64 = 1
	if st.Blocks > 0 {
		blocksFree = float64(st.Bavail) / float64(st.Blocks)
	}
	var inodesFree float64 = 1
	if st.Files > 0 {
		inodesFree = float64(st.Ffree) / float64(st.Files)
	}
	return freeRatios{blocksFree: blocksFree, inodesFree: inodesFree}, nil
}
