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

package message

import (
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// channel 11, data, ack request, PAN id compression, dst short 0x1400, src extended, seq 7,
// IPHC with CID, SAC and DAC set and context ids 1/2, then FCS.
var iphcFrame = []byte{11, 0x61, 0xd8, 7, 0xce, 0xfa, 0x00, 0x14, 1, 2, 3, 4, 5, 6, 7, 8,
	0x7a, 0xd5, 0x12, 0x3a, 0x00, 0x00}

func TestMacFactoryCreate(t *testing.T) {
	f := NewMacFactory()
	f.SetLowpanContext(1, netip.MustParsePrefix("fd00:db8::/64"))
	f.SetLowpanContext(2, netip.MustParsePrefix("fd00:abcd::1/64"))

	msgs, err := f.Create(iphcFrame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "data", m.FrameType)
	assert.Equal(t, uint8(7), m.Seq)
	assert.Equal(t, uint8(11), m.Channel)
	assert.Equal(t, "1400", m.Dst)
	assert.Equal(t, "0807060504030201", m.Src)
	assert.True(t, m.AckReq)
	assert.False(t, m.Broadcast)
	assert.Equal(t, "iphc", m.Dispatch)
	assert.Equal(t, "fd00:db8::/64", m.SrcPrefix)
	assert.Equal(t, "fd00:abcd::/64", m.DstPrefix)
	assert.Equal(t, iphcFrame[1:], m.Psdu)
}

func TestMacFactoryUnknownContext(t *testing.T) {
	msgs, err := NewMacFactory().Create(iphcFrame)
	require.NoError(t, err)
	assert.Equal(t, "iphc", msgs[0].Dispatch)
	assert.Empty(t, msgs[0].SrcPrefix)
	assert.Empty(t, msgs[0].DstPrefix)
}

func TestMacFactoryDropsAck(t *testing.T) {
	_, err := NewMacFactory().Create([]byte{11, 0x02, 0x00, 7, 0, 0})
	assert.True(t, errors.Is(err, ErrDropPacket))
}

func TestMacFactoryTruncated(t *testing.T) {
	_, err := NewMacFactory().Create(iphcFrame[:6])
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDropPacket))
}

func TestMessagesSet(t *testing.T) {
	a := &Message{FrameType: "data", Seq: 1}
	b := &Message{FrameType: "cmd", Seq: 2}
	c := &Message{FrameType: "data", Seq: 3}
	s := &MessagesSet{Messages: []*Message{a, b}, CommissioningMessages: []*Message{c}}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []*Message{a, b, c}, s.All())

	got := s.Next(func(m *Message) bool { return m.FrameType == "cmd" })
	assert.Same(t, b, got)
	assert.Equal(t, []*Message{a}, s.Messages)
	assert.Nil(t, s.Next(func(m *Message) bool { return m.FrameType == "beacon" }))
	assert.Same(t, a, s.Next(nil))
	assert.Nil(t, s.Next(nil))
}
