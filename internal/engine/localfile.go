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

package engine

import (
	"os"

	"github.com/falconfs/falcon/internal/openfd"
)

// setLocalFile stashes the backing *os.File for a locally-owned
// instance. openfd.Instance keeps LocalFile typed as any so that
// package stays free of an os.File import.
func setLocalFile(inst *openfd.Instance, f *os.File) {
	inst.LocalFile = f
	inst.PhysicalFD = int64(f.Fd())
}

// localFile recovers the backing *os.File, if any, previously stored
// by setLocalFile.
func localFile(inst *openfd.Instance) (*os.File, bool) {
	f, ok := inst.LocalFile.(*os.File)
	return f, ok
}
