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

package dispatcher

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-vtime/pcap"
	"github.com/openthread/ot-vtime/types"
)

const (
	DefaultBlockTimeout = 10 * time.Second
	DefaultTestName     = "current"
	DefaultLossStream   = "otvt-frame-loss"
	splitRadioNodeType  = "ncp-sim"
)

// Link is a radio link between two nodes of the link topology.
type Link struct {
	A types.NodeId `yaml:"a"`
	B types.NodeId `yaml:"b"`
}

type Config struct {
	PortOffset int    `yaml:"port_offset"`
	Host       string `yaml:"host"`
	// UnixSocket selects the Unix seqpacket transport when set.
	UnixSocket string `yaml:"unix_socket"`
	// SplitRadio runs nodes as separate radio and core processes.
	SplitRadio   bool          `yaml:"split_radio"`
	BlockTimeout time.Duration `yaml:"block_timeout"`

	TestName      string `yaml:"test_name"`
	PcapDir       string `yaml:"pcap_dir"`
	PcapFrameType string `yaml:"pcap"`
	PcapTimeRef   bool   `yaml:"pcap_time_ref"`
	DumpPackets   bool   `yaml:"dump_packets"`

	Watch      []types.NodeId `yaml:"watch"`
	Links      []Link         `yaml:"links"`
	LossRatio  float64        `yaml:"loss_ratio"`
	LossStream string         `yaml:"loss_stream"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:          "127.0.0.1",
		BlockTimeout:  DefaultBlockTimeout,
		TestName:      DefaultTestName,
		PcapFrameType: pcap.FrameTypeWpanStr,
		LossStream:    DefaultLossStream,
	}
}

// BasePort is the port the engine listens on. Node endpoints are bound relative to it.
func (cfg *Config) BasePort() int {
	return types.BasePort(cfg.PortOffset)
}

func (cfg *Config) PcapPath() string {
	return filepath.Join(cfg.PcapDir, cfg.TestName+".pcap")
}

// ApplyEnv overrides the configuration from PORT_OFFSET, TEST_NAME, NODE_TYPE and OTVT_UNIX_SOCKET.
func (cfg *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("PORT_OFFSET"); ok && v != "" {
		off, err := strconv.Atoi(v)
		if err != nil || off < 0 {
			return errors.Errorf("invalid PORT_OFFSET %q", v)
		}
		cfg.PortOffset = off
	}
	if v, ok := os.LookupEnv("TEST_NAME"); ok && v != "" {
		cfg.TestName = v
	}
	if v, ok := os.LookupEnv("NODE_TYPE"); ok {
		cfg.SplitRadio = v == splitRadioNodeType
	}
	if v, ok := os.LookupEnv("OTVT_UNIX_SOCKET"); ok {
		cfg.UnixSocket = v
	}
	return cfg.Validate()
}

// LoadConfigFile reads YAML settings from path on top of the current values.
func (cfg *Config) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.BlockTimeout <= 0 {
		return errors.Errorf("block_timeout must be positive, got %v", cfg.BlockTimeout)
	}
	if cfg.LossRatio < 0 || cfg.LossRatio > 1 {
		return errors.Errorf("loss_ratio must be within [0,1], got %v", cfg.LossRatio)
	}
	if ft := pcap.ParseFrameTypeStr(cfg.PcapFrameType); ft == pcap.FrameTypeUnknown {
		return errors.Errorf("unknown pcap frame type %q", cfg.PcapFrameType)
	}
	if cfg.TestName == "" {
		return errors.Errorf("empty test name")
	}
	for _, id := range cfg.Watch {
		if err := checkNodeId(id); err != nil {
			return err
		}
	}
	for _, l := range cfg.Links {
		if err := checkNodeId(l.A); err != nil {
			return err
		}
		if err := checkNodeId(l.B); err != nil {
			return err
		}
	}
	return nil
}

func checkNodeId(id types.NodeId) error {
	if id <= types.InvalidNodeId || id > types.MaxNodes {
		return errors.Errorf("invalid node id %d", id)
	}
	return nil
}
