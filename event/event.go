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

package event

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/types"
)

type EventType = uint8

const (
	// Event type IDs shared between the engine and the simulated OT nodes.
	EventTypeAlarmFired       EventType = 0
	EventTypeRadioReceived    EventType = 1
	EventTypeUartWrite        EventType = 2
	EventTypeRadioSpinelWrite EventType = 3
	EventTypePostCmd          EventType = 4
	// EventTypeNodeInfo is the first frame a node sends on a stream (Unix socket) connection.
	EventTypeNodeInfo EventType = 12
)

// EventHeaderLen is the length of the fixed frame header: delay (8), type (1), payload length (2).
const EventHeaderLen = 11

// RadioMessagePsduOffset is the offset of the PSDU in a radio event payload, which starts with the
// channel byte.
const RadioMessagePsduOffset = 1

const nodeInfoDataLen = 4

type Event struct {
	Delay uint64
	Type  EventType
	Data  []byte

	// metadata kept locally for this Event.
	Timestamp uint64
	Seq       uint64
	Device    types.DeviceKey

	pos int // position in the event queue plus one; 0 when not queued.
}

// Serialize serializes this Event into the wire frame sent to a node. Only Delay, Type and Data
// are sent; the node infers absolute time from its own clock.
func (e *Event) Serialize() []byte {
	logger.AssertTrue(len(e.Data) <= 0xffff, "event payload too long: %d", len(e.Data))
	msg := make([]byte, EventHeaderLen+len(e.Data))
	binary.LittleEndian.PutUint64(msg[:8], e.Delay)
	msg[8] = e.Type
	binary.LittleEndian.PutUint16(msg[9:11], uint16(len(e.Data)))
	copy(msg[EventHeaderLen:], e.Data)
	return msg
}

// Deserialize deserializes a wire frame received from a node into e. It returns the number of bytes
// used from data, or 0 if data does not contain one entire frame.
func (e *Event) Deserialize(data []byte) int {
	n := len(data)
	if n < EventHeaderLen {
		return 0
	}
	datalen := int(binary.LittleEndian.Uint16(data[9:11]))
	if datalen > n-EventHeaderLen {
		return 0
	}
	e.Delay = binary.LittleEndian.Uint64(data[:8])
	e.Type = data[8]
	e.Data = make([]byte, datalen)
	copy(e.Data, data[EventHeaderLen:EventHeaderLen+datalen])

	// e.Timestamp is not in the frame, so set to invalid initially.
	e.Timestamp = types.InvalidTimestamp
	e.pos = 0
	return EventHeaderLen + datalen
}

// Index returns the position of the event in a queue, or -1.
func (e *Event) Index() int {
	return e.pos - 1
}

// SetIndex is used by queue implementations to track the event position.
func (e *Event) SetIndex(i int) {
	e.pos = i + 1
}

// NodeInfo decodes the payload of a NodeInfo event: the node id and whether the connection is the
// radio half of a split node.
func (e *Event) NodeInfo() (types.NodeId, bool, error) {
	if e.Type != EventTypeNodeInfo || len(e.Data) < nodeInfoDataLen {
		return types.InvalidNodeId, false, fmt.Errorf("not a node info event: %s", e)
	}
	id := types.NodeId(binary.LittleEndian.Uint32(e.Data[:nodeInfoDataLen]))
	isRadio := len(e.Data) > nodeInfoDataLen && e.Data[nodeInfoDataLen] != 0
	return id, isRadio, nil
}

// NewNodeInfo builds the NodeInfo event a node sends first on a stream connection.
func NewNodeInfo(id types.NodeId, isRadio bool) *Event {
	data := make([]byte, nodeInfoDataLen+1)
	binary.LittleEndian.PutUint32(data, uint32(id))
	if isRadio {
		data[nodeInfoDataLen] = 1
	}
	return &Event{Type: EventTypeNodeInfo, Data: data}
}

// TypeName returns a short name of the event type, for logs.
func TypeName(tp EventType) string {
	switch tp {
	case EventTypeAlarmFired:
		return "alarm"
	case EventTypeRadioReceived:
		return "radio"
	case EventTypeUartWrite:
		return "uart"
	case EventTypeRadioSpinelWrite:
		return "spinel"
	case EventTypePostCmd:
		return "postcmd"
	case EventTypeNodeInfo:
		return "nodeinfo"
	default:
		return fmt.Sprintf("type%d", tp)
	}
}

func (e *Event) String() string {
	paylStr := ""
	if len(e.Data) > 0 {
		paylStr = fmt.Sprintf(",payl=%s", hex.EncodeToString(e.Data))
	}
	tsStr := "-"
	if e.Timestamp != types.InvalidTimestamp {
		tsStr = fmt.Sprintf("%d", e.Timestamp)
	}
	return fmt.Sprintf("Ev{%s,t=%s,seq=%d,%s,dly=%d%s}", TypeName(e.Type), tsStr, e.Seq, e.Device, e.Delay, paylStr)
}
