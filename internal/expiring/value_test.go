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

package expiring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValue_InvalidBeforeFirstUpdate(t *testing.T) {
	v := New[int64](time.Minute)
	defer v.Stop()

	_, ok := v.Get()
	assert.False(t, ok)
}

func TestValue_ValidAfterUpdate(t *testing.T) {
	v := New[int64](time.Minute)
	defer v.Stop()

	v.Update(42)

	got, ok := v.Get()
	assert.True(t, ok)
	assert.EqualValues(t, 42, got)
}

func TestValue_ExpiresAfterTTL(t *testing.T) {
	v := New[int64](30 * time.Millisecond)
	defer v.Stop()

	v.Update(1)
	time.Sleep(100 * time.Millisecond)

	_, ok := v.Get()
	assert.False(t, ok)
}

func TestValue_UpdateRearmsBeforeExpiry(t *testing.T) {
	v := New[int64](60 * time.Millisecond)
	defer v.Stop()

	v.Update(1)
	time.Sleep(40 * time.Millisecond)
	v.Update(2) // rearms; without this the value would expire at ~60ms

	time.Sleep(40 * time.Millisecond)
	got, ok := v.Get()
	assert.True(t, ok)
	assert.EqualValues(t, 2, got)
}
