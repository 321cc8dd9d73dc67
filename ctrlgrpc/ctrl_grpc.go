// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package ctrlgrpc exposes the CLI commands of a running engine over gRPC. The service has a single
// unary method taking a command line and returning its output; messages are protobuf StringValues, so
// no generated code is needed.
package ctrlgrpc

import (
	"bytes"
	"context"
	"io"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/openthread/ot-vtime/logger"
)

const (
	ServiceName   = "otvt.SimCtrl"
	commandMethod = "/" + ServiceName + "/Command"
)

type CommandHandler interface {
	HandleCommand(cmd string, output io.Writer) error
}

type SimCtrlServer interface {
	Command(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

var simCtrlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimCtrlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Command",
			Handler:    commandHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "otvt/simctrl.proto",
}

func commandHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimCtrlServer).Command(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: commandMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimCtrlServer).Command(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	handler CommandHandler
	server  *grpc.Server
}

func NewServer(handler CommandHandler) *Server {
	gs := &Server{
		handler: handler,
		server:  grpc.NewServer(grpc.ReadBufferSize(1024*8), grpc.WriteBufferSize(1024*64)),
	}
	gs.server.RegisterService(&simCtrlServiceDesc, gs)
	return gs
}

// Command runs one command line. The output ends with "Done" or "Error: ..." like on the console; a
// gRPC error is only returned when the engine is shutting down.
func (gs *Server) Command(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	output := &bytes.Buffer{}
	if err := gs.handler.HandleCommand(req.GetValue(), output); err != nil {
		return nil, status.Errorf(codes.Unavailable, "engine exiting: %v", err)
	}
	return wrapperspb.String(output.String()), nil
}

// Run listens on address and serves until Stop.
func (gs *Server) Run(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return gs.Serve(lis)
}

func (gs *Server) Serve(lis net.Listener) error {
	logger.Infof("gRPC control server serving on %s ...", lis.Addr())
	return gs.server.Serve(lis)
}

func (gs *Server) Stop() {
	gs.server.Stop()
}

type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to a control server at target. Extra options are appended to the defaults.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Command(ctx context.Context, cmd string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, commandMethod, wrapperspb.String(cmd), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
