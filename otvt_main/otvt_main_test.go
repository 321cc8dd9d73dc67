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
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-vtime/dispatcher"
	"github.com/openthread/ot-vtime/types"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{"PORT_OFFSET", "TEST_NAME", "NODE_TYPE", "OTVT_UNIX_SOCKET"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	args, err := parseArgs(nil, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err := buildConfig(args)
	require.NoError(t, err)

	assert.Equal(t, dispatcher.DefaultConfig(), cfg)
	assert.True(t, args.Console)
	assert.False(t, args.AutoGo)
	assert.Equal(t, "localhost:8999", grpcAddress(args, cfg))
}

func TestConfigPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "otvt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port_offset: 3
test_name: from-file
block_timeout: 2s
pcap: wpan-tap
watch: [1, 2]
links:
  - {a: 1, b: 2}
`), 0o644))

	args, err := parseArgs([]string{"-config", path}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err := buildConfig(args)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.PortOffset)
	assert.Equal(t, "from-file", cfg.TestName)
	assert.Equal(t, 2*time.Second, cfg.BlockTimeout)
	assert.Equal(t, "wpan-tap", cfg.PcapFrameType)
	assert.Equal(t, []types.NodeId{1, 2}, cfg.Watch)
	assert.Equal(t, []dispatcher.Link{{A: 1, B: 2}}, cfg.Links)

	// environment overrides the file
	t.Setenv("PORT_OFFSET", "5")
	t.Setenv("TEST_NAME", "from-env")
	t.Setenv("NODE_TYPE", "ncp-sim")
	cfg, err = buildConfig(args)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PortOffset)
	assert.Equal(t, "from-env", cfg.TestName)
	assert.True(t, cfg.SplitRadio)
	assert.Equal(t, "wpan-tap", cfg.PcapFrameType)

	// flags override the environment
	args, err = parseArgs([]string{"-config", path, "-port-offset", "7", "-test-name", "from-flag",
		"-split=false", "-watch", "3, 4", "-block-timeout", "500ms"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err = buildConfig(args)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PortOffset)
	assert.Equal(t, "from-flag", cfg.TestName)
	assert.False(t, cfg.SplitRadio)
	assert.Equal(t, []types.NodeId{3, 4}, cfg.Watch)
	assert.Equal(t, 500*time.Millisecond, cfg.BlockTimeout)
	assert.Equal(t, "localhost:9475", grpcAddress(args, cfg))
}

func TestUnsetFlagsKeepFileValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "otvt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 10.0.0.1\ndump_packets: true\n"), 0o644))

	args, err := parseArgs([]string{"-config", path, "-plr", "0.5"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err := buildConfig(args)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Host)
	assert.True(t, cfg.DumpPackets)
	assert.Equal(t, 0.5, cfg.LossRatio)
}

func TestInvalidArgs(t *testing.T) {
	clearEnv(t)
	out := &bytes.Buffer{}

	_, err := parseArgs([]string{"-h"}, out)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, out.String(), "-block-timeout")

	_, err = parseArgs([]string{"extra"}, out)
	assert.Error(t, err)

	for _, argv := range [][]string{
		{"-plr", "1.5"},
		{"-watch", "1,x"},
		{"-watch", "34"},
		{"-pcap", "bogus"},
		{"-block-timeout", "0s"},
		{"-port-offset", "1000"},
		{"-config", filepath.Join(t.TempDir(), "missing.yaml")},
	} {
		args, err := parseArgs(argv, out)
		require.NoError(t, err, argv)
		_, err = buildConfig(args)
		assert.Error(t, err, argv)
	}

	t.Setenv("PORT_OFFSET", "-1")
	args, err := parseArgs(nil, out)
	require.NoError(t, err)
	_, err = buildConfig(args)
	assert.Error(t, err)
}

func TestGrpcAddress(t *testing.T) {
	clearEnv(t)
	args, err := parseArgs([]string{"-grpc", "off"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err := buildConfig(args)
	require.NoError(t, err)
	assert.Equal(t, grpcOff, grpcAddress(args, cfg))

	args, err = parseArgs([]string{"-grpc", "127.0.0.1:7000"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", grpcAddress(args, cfg))
}
