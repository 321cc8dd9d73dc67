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

package vtnode

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-vtime/dissectpkt/wpan"
	"github.com/openthread/ot-vtime/event"
	"github.com/openthread/ot-vtime/types"
)

func TestFrameBuilders(t *testing.T) {
	f, err := wpan.Dissect(DataFrame(11, 7, 0xface, 0x0400, 0x1122334455667788, true, []byte{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, uint8(11), f.Channel)
	assert.Equal(t, uint8(7), f.Seq)
	assert.True(t, f.FrameControl.AckRequest())
	assert.Equal(t, uint16(0x0400), f.DstAddrShort)
	assert.Equal(t, uint64(0x1122334455667788), f.SrcAddrExtended)
	assert.False(t, f.IsBroadcast())

	f, err = wpan.Dissect(DataFrame(11, 8, 0xface, 0xffff, 1, false, nil))
	require.NoError(t, err)
	assert.True(t, f.IsBroadcast())
	assert.False(t, f.FrameControl.AckRequest())

	f, err = wpan.Dissect(AckFrame(12, 9))
	require.NoError(t, err)
	assert.True(t, f.IsAck())
	assert.Equal(t, uint8(9), f.Seq)
}

// fakeEngine is the engine side of the wire protocol for one node.
type fakeEngine struct {
	t    *testing.T
	conn *net.UDPConn
	node *net.UDPAddr
}

func newFakeEngine(t *testing.T, basePort int) *fakeEngine {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: basePort})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &fakeEngine{t: t, conn: conn}
}

func (e *fakeEngine) recv() *event.Event {
	buf := make([]byte, 4096)
	require.NoError(e.t, e.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, addr, err := e.conn.ReadFromUDP(buf)
	require.NoError(e.t, err)
	e.node = addr
	evt := &event.Event{}
	require.Equal(e.t, n, evt.Deserialize(buf[:n]))
	return evt
}

func (e *fakeEngine) send(evt *event.Event) {
	_, err := e.conn.WriteToUDP(evt.Serialize(), e.node)
	require.NoError(e.t, err)
}

func TestNodeProtocol(t *testing.T) {
	basePort := types.BasePort(700)
	eng := newFakeEngine(t, basePort)

	node := New(Config{Id: 2, BasePort: basePort, ShortAddr: 0x0800, AutoAck: true, TxDelay: 100})
	node.Schedule(5000, DataFrame(11, 1, 0xface, 0xffff, 2, false, nil))
	require.NoError(t, node.Start())
	defer node.Stop()

	alarm := eng.recv()
	assert.Equal(t, event.EventTypeAlarmFired, alarm.Type)
	assert.Equal(t, uint64(5000), alarm.Delay)
	assert.Equal(t, types.CoreKey(basePort, 2), types.DeviceKey(eng.node.Port))

	// a frame for the node at t=1000 is acknowledged.
	eng.send(&event.Event{Delay: 1000, Type: event.EventTypeRadioReceived, Data: DataFrame(11, 7, 0xface, 0x0800, 1, true, nil)})
	ack := eng.recv()
	assert.Equal(t, event.EventTypeRadioReceived, ack.Type)
	assert.Equal(t, DefaultAckDelay, ack.Delay)
	assert.Equal(t, AckFrame(11, 7), ack.Data)
	alarm = eng.recv()
	assert.Equal(t, uint64(4000), alarm.Delay)

	// the ACK echo is a transmit done, not a received frame.
	eng.send(&event.Event{Delay: DefaultAckDelay, Type: event.EventTypeRadioReceived, Data: AckFrame(11, 7)})
	alarm = eng.recv()
	assert.Equal(t, uint64(4000-DefaultAckDelay), alarm.Delay)

	// the alarm fires and the scheduled frame goes out.
	eng.send(&event.Event{Delay: 4000 - DefaultAckDelay, Type: event.EventTypeAlarmFired})
	tx := eng.recv()
	assert.Equal(t, event.EventTypeRadioReceived, tx.Type)
	assert.Equal(t, uint64(100), tx.Delay)
	alarm = eng.recv()
	assert.Equal(t, IdleDelay, alarm.Delay)

	assert.Equal(t, uint64(5000), node.Now())
	frames := node.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(1000), frames[0].Time)
	rcv := node.Received()
	require.Len(t, rcv, 2)
	assert.True(t, rcv[1].TxDone)
}
