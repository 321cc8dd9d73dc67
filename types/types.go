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

package types

import (
	"fmt"
	"math"
)

type NodeId = int

const (
	InvalidNodeId NodeId = 0
	// MaxNodes is the highest node id a single simulation can host.
	MaxNodes NodeId = 33
)

const (
	DefaultBasePort = 9000
	// PortsPerSimulation is the size of the port block reserved per PORT_OFFSET: the engine port,
	// MaxNodes core endpoints and MaxNodes radio endpoints.
	PortsPerSimulation = 2 * (MaxNodes + 1)
)

const (
	// Ever is the virtual time that is never reached; it is also the "next event" time of an empty queue.
	Ever uint64 = math.MaxUint64 / 2
	// InvalidTimestamp marks an event whose absolute time was not inferred yet.
	InvalidTimestamp uint64 = math.MaxUint64
)

// BasePort returns the engine port for the given port offset. Node endpoints are bound relative to it.
func BasePort(portOffset int) int {
	return DefaultBasePort + portOffset*PortsPerSimulation
}

// DeviceKey identifies one endpoint of a simulated node. It is the port number the endpoint uses:
// basePort+id for the core (or only) endpoint, basePort+MaxNodes+id for the radio half of a split node.
type DeviceKey int

const InvalidDeviceKey DeviceKey = 0

func CoreKey(basePort int, id NodeId) DeviceKey {
	return DeviceKey(basePort + id)
}

func RadioKey(basePort int, id NodeId) DeviceKey {
	return DeviceKey(basePort + MaxNodes + id)
}

// NodeIdOf returns the node id owning the endpoint, and whether it is a radio half.
func (k DeviceKey) NodeIdOf(basePort int) (NodeId, bool) {
	off := int(k) - basePort
	if off > MaxNodes {
		return off - MaxNodes, true
	}
	return off, false
}

func (k DeviceKey) String() string {
	return fmt.Sprintf("dev:%d", int(k))
}
