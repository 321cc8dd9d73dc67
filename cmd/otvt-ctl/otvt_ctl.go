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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openthread/ot-vtime/ctrlgrpc"
	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/types"
)

var args struct {
	Addr    string
	Timeout time.Duration
}

func parseArgs() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  Runs one console command on a running otvt engine.\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&args.Addr, "addr", fmt.Sprintf("localhost:%d", types.BasePort(0)-1), "gRPC control address of the engine")
	flag.DurationVar(&args.Timeout, "timeout", time.Minute, "command timeout")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
}

func main() {
	parseArgs()

	os.Exit(run(strings.Join(flag.Args(), " ")))
}

// run sends the command and returns the exit code: 1 when the engine is unreachable, 2 when the
// command failed.
func run(cmd string) int {
	client, err := ctrlgrpc.NewClient(args.Addr)
	logger.FatalIfError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), args.Timeout)
	defer cancel()

	output, err := client.Command(ctx, cmd)
	fmt.Print(output)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	if strings.HasPrefix(lastLine(output), "Error:") {
		return 2
	}
	return 0
}

func lastLine(s string) string {
	s = strings.TrimSuffix(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
