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

package otvt_main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-vtime/cli"
	"github.com/openthread/ot-vtime/ctrlgrpc"
	"github.com/openthread/ot-vtime/dispatcher"
	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/message"
	"github.com/openthread/ot-vtime/pcap"
	"github.com/openthread/ot-vtime/progctx"
	"github.com/openthread/ot-vtime/types"
)

const grpcOff = "off"

type MainArgs struct {
	ConfigFile   string
	PortOffset   int
	Host         string
	UnixSocket   string
	SplitRadio   bool
	TestName     string
	Pcap         string
	PcapDir      string
	PcapTimeRef  bool
	DumpPackets  bool
	BlockTimeout time.Duration
	LossRatio    float64
	Watch        string
	LogLevel     string
	LogFile      string
	AutoGo       bool
	Console      bool
	History      string
	GrpcAddr     string

	// set holds the names of the flags given on the command line.
	set map[string]bool
}

func parseArgs(argv []string, output io.Writer) (*MainArgs, error) {
	args := &MainArgs{set: map[string]bool{}}
	defaults := dispatcher.DefaultConfig()

	fs := flag.NewFlagSet("otvt", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&args.ConfigFile, "config", "", "YAML configuration file, applied before environment and flags")
	fs.IntVar(&args.PortOffset, "port-offset", 0, "port offset of this simulation (overrides PORT_OFFSET)")
	fs.StringVar(&args.Host, "host", defaults.Host, "address of the node endpoints")
	fs.StringVar(&args.UnixSocket, "unix", "", "use a Unix seqpacket socket at this path instead of UDP")
	fs.BoolVar(&args.SplitRadio, "split", false, "nodes run as separate radio and core processes")
	fs.StringVar(&args.TestName, "test-name", defaults.TestName, "name of the capture file (overrides TEST_NAME)")
	fs.StringVar(&args.Pcap, "pcap", defaults.PcapFrameType, "capture frame type: off, wpan or wpan-tap")
	fs.StringVar(&args.PcapDir, "pcap-dir", "", "directory of the capture file")
	fs.BoolVar(&args.PcapTimeRef, "pcap-time-ref", false, "write a time reference frame at the start of the capture")
	fs.BoolVar(&args.DumpPackets, "dump-packets", false, "dump radio frames to stdout")
	fs.DurationVar(&args.BlockTimeout, "block-timeout", defaults.BlockTimeout, "how long to wait for a node before reporting a stall")
	fs.Float64Var(&args.LossRatio, "plr", 0, "ratio of radio frame deliveries that are lost")
	fs.StringVar(&args.Watch, "watch", "", "comma separated ids of nodes to watch")
	fs.StringVar(&args.LogLevel, "log", "warn", "log level: trace, debug, info, note, warn, error, off")
	fs.StringVar(&args.LogFile, "log-file", "", "also write the log to this file")
	fs.BoolVar(&args.AutoGo, "autogo", false, "advance the virtual time by 1s steps without 'go' commands")
	fs.BoolVar(&args.Console, "console", true, "run the interactive console on stdin")
	fs.StringVar(&args.History, "history", "", "console history file")
	fs.StringVar(&args.GrpcAddr, "grpc", "", "gRPC control address, default localhost:<base port - 1>; 'off' disables it")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		args.set[f.Name] = true
	})
	return args, nil
}

// buildConfig layers the configuration: defaults, then the config file, the environment and the flags
// given on the command line.
func buildConfig(args *MainArgs) (*dispatcher.Config, error) {
	cfg := dispatcher.DefaultConfig()
	if args.ConfigFile != "" {
		if err := cfg.LoadConfigFile(args.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if args.set["port-offset"] {
		cfg.PortOffset = args.PortOffset
	}
	if args.set["host"] {
		cfg.Host = args.Host
	}
	if args.set["unix"] {
		cfg.UnixSocket = args.UnixSocket
	}
	if args.set["split"] {
		cfg.SplitRadio = args.SplitRadio
	}
	if args.set["test-name"] {
		cfg.TestName = args.TestName
	}
	if args.set["pcap"] {
		cfg.PcapFrameType = args.Pcap
	}
	if args.set["pcap-dir"] {
		cfg.PcapDir = args.PcapDir
	}
	if args.set["pcap-time-ref"] {
		cfg.PcapTimeRef = args.PcapTimeRef
	}
	if args.set["dump-packets"] {
		cfg.DumpPackets = args.DumpPackets
	}
	if args.set["block-timeout"] {
		cfg.BlockTimeout = args.BlockTimeout
	}
	if args.set["plr"] {
		cfg.LossRatio = args.LossRatio
	}
	if args.set["watch"] {
		ids, err := parseNodeIds(args.Watch)
		if err != nil {
			return nil, err
		}
		cfg.Watch = ids
	}

	if cfg.PortOffset < 0 || types.BasePort(cfg.PortOffset)+types.PortsPerSimulation > 65535 {
		return nil, errors.Errorf("port offset %d out of range", cfg.PortOffset)
	}
	return cfg, cfg.Validate()
}

func parseNodeIds(s string) ([]types.NodeId, error) {
	var ids []types.NodeId
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Errorf("invalid node id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func grpcAddress(args *MainArgs, cfg *dispatcher.Config) string {
	if args.GrpcAddr != "" {
		return args.GrpcAddr
	}
	return fmt.Sprintf("localhost:%d", cfg.BasePort()-1)
}

// Main runs the engine with its console, gRPC control service and auto-go loop until ctx is cancelled.
func Main(ctx *progctx.ProgCtx, cliOptions *cli.CliOptions) {
	args, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	logger.FatalIfError(err)

	level, err := logger.ParseLevelString(args.LogLevel)
	logger.FatalIfError(err)
	logger.SetLevel(level)
	if args.LogFile != "" {
		logger.SetOutput([]string{"stderr", args.LogFile})
	}

	cfg, err := buildConfig(args)
	logger.FatalIfError(err)
	if pcap.ParseFrameTypeStr(cfg.PcapFrameType) != pcap.FrameTypeOff {
		logger.Infof("writing capture to %s", cfg.PcapPath())
	}

	handleSignals(ctx)

	d, err := dispatcher.NewDispatcher(ctx, cfg, message.NewMacFactory())
	logger.FatalIfError(err)
	rt := cli.NewCmdRunner(ctx, d)

	if addr := grpcAddress(args, cfg); addr != grpcOff {
		srv := ctrlgrpc.NewServer(rt)
		ctx.Defer(srv.Stop)
		ctx.Go("grpc", func() {
			if err := srv.Run(addr); err != nil && ctx.Err() == nil {
				logger.Errorf("gRPC control server stopped: %v", err)
			}
		})
	}

	if args.AutoGo {
		ctx.Go("autogo", func() {
			autoGo(ctx, rt)
		})
	}

	if args.Console {
		if cliOptions == nil {
			cliOptions = cli.DefaultCliOptions()
		}
		if args.History != "" {
			cliOptions.HistoryFile = args.History
		}
		ctx.Defer(func() {
			_ = os.Stdin.Close()
		})
		go cli.RunConsole(ctx, rt, cliOptions)
	}

	<-ctx.Done()
	logger.Debugf("waiting for otvt to stop gracefully ...")
	ctx.Wait()
	d.Stop()
}

func handleSignals(ctx *progctx.ProgCtx) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGHUP)
	signal.Ignore(syscall.SIGALRM)

	ctx.Go("handleSignals", func() {
		defer logger.Debugf("handleSignals exit.")
		for {
			select {
			case sig := <-c:
				logger.Infof("signal received: %v", sig)
				ctx.Cancel(errors.Errorf("signal %v", sig))
			case <-ctx.Done():
				signal.Stop(c)
				return
			}
		}
	})
}

// autoGo advances the engine by 1s steps until the program exits. A stalled step is logged and retried
// after a pause.
func autoGo(ctx *progctx.ProgCtx, rt *cli.CmdRunner) {
	for ctx.Err() == nil {
		err := rt.Step(time.Second)
		if err == nil || ctx.Err() != nil {
			continue
		}
		logger.Errorf("autogo: %v", err)
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}
