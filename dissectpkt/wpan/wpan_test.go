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

package wpan

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var (
	// channel 11, data, ack request, PAN id compression, dst short 0x1400, src extended, seq 7.
	unicastFrame = []byte{11, 0x61, 0xd8, 7, 0xce, 0xfa, 0x00, 0x14, 1, 2, 3, 4, 5, 6, 7, 8, 0x11, 0x22}
	// channel 11, data, PAN id compression, dst short 0xffff, src extended, seq 9.
	broadcastFrame = []byte{11, 0x41, 0xd8, 9, 0xce, 0xfa, 0xff, 0xff, 1, 2, 3, 4, 5, 6, 7, 8, 0x11, 0x22}
	// channel 11, 2006 ack, seq 7.
	ackFrame = []byte{11, 0x02, 0x00, 7, 0x33, 0x44}
)

func TestDissectUnicast(t *testing.T) {
	f, err := Dissect(unicastFrame)
	assert.Nil(t, err)
	assert.Equal(t, uint8(11), f.Channel)
	assert.Equal(t, FrameTypeData, f.FrameControl.FrameType())
	assert.True(t, f.FrameControl.AckRequest())
	assert.Equal(t, uint8(7), f.Seq)
	assert.Equal(t, uint16(0xface), f.DstPanId)
	assert.Equal(t, uint16(0x1400), f.DstAddrShort)
	assert.Equal(t, uint64(0x0807060504030201), f.SrcAddrExtended)
	assert.Equal(t, uint16(len(unicastFrame)-1), f.LengthBytes)
	assert.Equal(t, 16, f.PayloadOffset)
	assert.False(t, f.IsAck())
	assert.False(t, f.IsBroadcast())
	assert.Equal(t, "MAC,FC:0xd861,Seq:7,Dst:1400", f.String())
}

func TestDissectBroadcast(t *testing.T) {
	f, err := Dissect(broadcastFrame)
	assert.Nil(t, err)
	assert.Equal(t, uint8(9), f.Seq)
	assert.True(t, f.IsBroadcast())
	assert.False(t, f.IsAck())
}

func TestDissectAck(t *testing.T) {
	f, err := Dissect(ackFrame)
	assert.Nil(t, err)
	assert.True(t, f.IsAck())
	assert.False(t, f.IsBroadcast())
	assert.Equal(t, uint8(7), f.Seq)
	assert.Equal(t, 4, f.PayloadOffset)
	assert.Equal(t, "ACK,FC:0x0002,Seq:7", f.String())
}

func TestDissectTruncated(t *testing.T) {
	_, err := Dissect(unicastFrame[:5])
	assert.True(t, errors.Is(err, ErrFrameTooShort))

	_, err = Dissect([]byte{11})
	assert.True(t, errors.Is(err, ErrFrameTooShort))

	_, err = Dissect(nil)
	assert.NotNil(t, err)
}

func TestPanIdFields(t *testing.T) {
	fc := FrameControl(0xd861) // 2006, dst short, src ext, compressed
	assert.True(t, fc.HasDestPanIdField())
	assert.False(t, fc.HasSourcePanIdField())

	fc = FrameControl(0xd821) // same without PAN id compression
	assert.True(t, fc.HasDestPanIdField())
	assert.True(t, fc.HasSourcePanIdField())

	fc = FrameControl(0xec41) // 2015, dst ext, src ext, compressed
	assert.False(t, fc.HasDestPanIdField())
	assert.False(t, fc.HasSourcePanIdField())
}
