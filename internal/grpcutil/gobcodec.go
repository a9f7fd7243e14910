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

// Package grpcutil supplies the gRPC plumbing shared by the peer RPC
// transport (G/I) and the metadata transport (L): a gob-based
// encoding.Codec so request/response shapes can stay plain Go structs
// instead of requiring a protoc-generated message type, plus dial
// option helpers.
package grpcutil

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype this codec registers under; clients and
// servers both dial with grpc.CallContentSubtype(grpcutil.Name) (or the
// equivalent server option) so they agree which codec framed a message.
const Name = "gob"

type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
