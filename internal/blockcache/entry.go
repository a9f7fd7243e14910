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

// Package blockcache is the LRU disk cache of whole file bodies keyed by
// inode (component A). Cache files live under DirNum shard directories so
// that no single directory holds every inode's entry, and an entry with
// refs > 0 is pinned against eviction.
package blockcache

import (
	"container/list"
	"time"
)

// Entry is the CacheEntry of §3: one LRU record for one cached file body.
type Entry struct {
	InodeID uint64
	Size    int64
	Atime   time.Time
	Refs    int32

	element *list.Element // this entry's node in the manager's LRU list
}
