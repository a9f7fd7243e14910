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

package rpcpeer

import (
	"context"

	"google.golang.org/grpc"
)

// RegisterServer wires a Server implementation (the engine, H) into a
// *grpc.Server under the same service path rpcpeer.Client dials. There
// is no generated stub since the wire format is the gob codec in
// internal/grpcutil rather than protobuf; the ServiceDesc below is
// hand-built the way grpc-go itself generates one from a .proto file.
func RegisterServer(s *grpc.Server, impl Server) {
	s.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: peerService,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenFile", Handler: openFileHandler},
		{MethodName: "CloseFile", Handler: closeFileHandler},
		{MethodName: "ReadFile", Handler: readFileHandler},
		{MethodName: "ReadSmallFile", Handler: readSmallFileHandler},
		{MethodName: "WriteFile", Handler: writeFileHandler},
		{MethodName: "DeleteFile", Handler: deleteFileHandler},
		{MethodName: "Statfs", Handler: statfsHandler},
		{MethodName: "TruncateOpenInstance", Handler: truncateOpenInstanceHandler},
		{MethodName: "TruncateFile", Handler: truncateFileHandler},
		{MethodName: "CheckConnection", Handler: checkConnectionHandler},
		{MethodName: "StatCluster", Handler: statClusterHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "falcon/peer.proto",
}

func decodeAndRun[Req, Resp any](ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor, call func(context.Context, Req) (Resp, error)) (any, error) {
	req := new(Req)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(ctx, *req)
	}
	info := &grpc.UnaryServerInfo{}
	handler := func(ctx context.Context, req any) (any, error) {
		return call(ctx, req.(Req))
	}
	return interceptor(ctx, *req, info, handler)
}

func openFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).OpenFile)
}

func closeFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).CloseFile)
}

func readFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).ReadFile)
}

func readSmallFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).ReadSmallFile)
}

func writeFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).WriteFile)
}

func deleteFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).DeleteFile)
}

func statfsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).Statfs)
}

func truncateOpenInstanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).TruncateOpenInstance)
}

func truncateFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).TruncateFile)
}

func checkConnectionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).CheckConnection)
}

func statClusterHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return decodeAndRun(ctx, dec, interceptor, srv.(Server).StatCluster)
}
