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
	"fmt"
	"sort"

	"github.com/openthread/ot-vtime/event"
	"github.com/openthread/ot-vtime/message"
	"github.com/openthread/ot-vtime/types"
)

// Device is one endpoint of a simulated node. In split mode a node has a core and a radio device;
// otherwise its single device plays both roles.
type Device struct {
	Key     types.DeviceKey
	NodeId  types.NodeId
	IsRadio bool
	IsCore  bool
	// CurTime is the last virtual time the device clock was advanced to.
	CurTime      uint64
	PendingAlarm *event.Event

	outbox []*message.Message
}

// Kind is "radio" or "core" for the endpoints of a split node, and "node" otherwise.
func (dev *Device) Kind() string {
	switch {
	case dev.IsRadio && !dev.IsCore:
		return "radio"
	case dev.IsCore && !dev.IsRadio:
		return "core"
	default:
		return "node"
	}
}

func (dev *Device) String() string {
	return fmt.Sprintf("%s<%d>@%d", dev.Kind(), dev.NodeId, int(dev.Key))
}

// deviceRegistry keeps devices in first-contact order and the set of awake device keys.
type deviceRegistry struct {
	basePort   int
	splitRadio bool
	devices    map[types.DeviceKey]*Device
	order      []types.DeviceKey
	awake      map[types.DeviceKey]struct{}
}

func newDeviceRegistry(basePort int, splitRadio bool) *deviceRegistry {
	return &deviceRegistry{
		basePort:   basePort,
		splitRadio: splitRadio,
		devices:    map[types.DeviceKey]*Device{},
		awake:      map[types.DeviceKey]struct{}{},
	}
}

// Ensure returns the device for key, creating it with its clock at now.
func (r *deviceRegistry) Ensure(key types.DeviceKey, now uint64) (dev *Device, created bool) {
	if dev = r.devices[key]; dev != nil {
		return dev, false
	}
	id, isRadio := key.NodeIdOf(r.basePort)
	dev = &Device{
		Key:     key,
		NodeId:  id,
		IsRadio: isRadio || !r.splitRadio,
		IsCore:  !isRadio || !r.splitRadio,
		CurTime: now,
	}
	r.devices[key] = dev
	r.order = append(r.order, key)
	return dev, true
}

func (r *deviceRegistry) Get(key types.DeviceKey) *Device {
	return r.devices[key]
}

// Remove tears down the device of a closed connection. The awake set is left to the caller.
func (r *deviceRegistry) Remove(key types.DeviceKey) *Device {
	dev := r.devices[key]
	if dev == nil {
		return nil
	}
	delete(r.devices, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return dev
}

// Devices returns the devices in first-contact order.
func (r *deviceRegistry) Devices() []*Device {
	devs := make([]*Device, 0, len(r.order))
	for _, k := range r.order {
		devs = append(devs, r.devices[k])
	}
	return devs
}

func (r *deviceRegistry) Len() int {
	return len(r.order)
}

// CoreKey is the key of the node's core device, which is its only device outside split mode.
func (r *deviceRegistry) CoreKey(id types.NodeId) types.DeviceKey {
	return types.CoreKey(r.basePort, id)
}

// RadioKey is the key of the device handling the node's radio.
func (r *deviceRegistry) RadioKey(id types.NodeId) types.DeviceKey {
	if !r.splitRadio {
		return types.CoreKey(r.basePort, id)
	}
	return types.RadioKey(r.basePort, id)
}

// PairedKey returns the other endpoint of a split node.
func (r *deviceRegistry) PairedKey(dev *Device) (types.DeviceKey, bool) {
	if !r.splitRadio {
		return types.InvalidDeviceKey, false
	}
	if dev.IsRadio {
		return types.CoreKey(r.basePort, dev.NodeId), true
	}
	return types.RadioKey(r.basePort, dev.NodeId), true
}

func (r *deviceRegistry) RecordMessage(key types.DeviceKey, msg *message.Message) {
	if dev := r.devices[key]; dev != nil {
		dev.outbox = append(dev.outbox, msg)
	}
}

// DrainMessages returns and clears the outbox of key.
func (r *deviceRegistry) DrainMessages(key types.DeviceKey) []*message.Message {
	dev := r.devices[key]
	if dev == nil {
		return nil
	}
	msgs := dev.outbox
	dev.outbox = nil
	return msgs
}

func (r *deviceRegistry) SetAwake(key types.DeviceKey) {
	r.awake[key] = struct{}{}
}

func (r *deviceRegistry) SetSleeping(key types.DeviceKey) {
	delete(r.awake, key)
}

func (r *deviceRegistry) IsAwake(key types.DeviceKey) bool {
	_, ok := r.awake[key]
	return ok
}

func (r *deviceRegistry) AwakeCount() int {
	return len(r.awake)
}

// AwakeKeys returns the awake keys in ascending order.
func (r *deviceRegistry) AwakeKeys() []types.DeviceKey {
	keys := make([]types.DeviceKey, 0, len(r.awake))
	for k := range r.awake {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (r *deviceRegistry) ClearAwake() {
	r.awake = map[types.DeviceKey]struct{}{}
}
