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

package readpipe

import (
	"io"
	"testing"

	"github.com/falconfs/falcon/internal/membuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceFiller(data []byte) Filler {
	return func(dst []byte, offset int64) (int, error) {
		if offset >= int64(len(data)) {
			return 0, nil
		}
		n := copy(dst, data[offset:])
		return n, nil
	}
}

func TestPipeline_ReadsWholeFileInOrder(t *testing.T) {
	const blockSize = 16
	pool, err := membuf.New(blockSize, Q*2)
	require.NoError(t, err)

	data := make([]byte, blockSize*7+5) // not a multiple of blockSize, to exercise EOF
	for i := range data {
		data[i] = byte(i)
	}

	p, err := New(pool, Q, sourceFiller(data))
	require.NoError(t, err)
	p.Start(0)
	defer p.Stop()

	out := make([]byte, 0, len(data))
	buf := make([]byte, 7) // a read size that doesn't align to blockSize
	for {
		n, end, err := p.WaitPop(buf)
		require.NoError(t, err)
		out = append(out, buf[:n]...)
		if end && n == 0 {
			break
		}
		if end {
			break
		}
	}

	assert.Equal(t, data, out)
}

func TestPipeline_PropagatesFillerError(t *testing.T) {
	pool, err := membuf.New(16, Q)
	require.NoError(t, err)

	fill := func(dst []byte, offset int64) (int, error) { return 0, io.ErrUnexpectedEOF }
	p, err := New(pool, Q, fill)
	require.NoError(t, err)
	p.Start(0)
	defer p.Stop()

	buf := make([]byte, 16)
	_, _, err = p.WaitPop(buf)
	assert.Error(t, err)
}
