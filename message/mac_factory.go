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
	"fmt"
	"net/netip"

	"github.com/openthread/ot-vtime/dissectpkt/wpan"
	"github.com/pkg/errors"
)

const (
	fcsLen = 2

	lowpanDispatchIphcMask = 0xe0
	lowpanDispatchIphc     = 0x60
	lowpanDispatchMeshMask = 0xc0
	lowpanDispatchMesh     = 0x80
	lowpanDispatchFragMask = 0xf8
	lowpanDispatchFrag1    = 0xc0
	lowpanDispatchFragN    = 0xe0

	iphcCid = 0x80
	iphcSac = 0x40
	iphcM   = 0x08
	iphcDac = 0x04
)

// MacFactory decodes the 802.15.4 MAC header and the 6LoWPAN dispatch of a frame. Stateful address
// compression is resolved against the contexts registered with SetLowpanContext.
type MacFactory struct {
	contexts map[uint8]netip.Prefix
}

func NewMacFactory() *MacFactory {
	return &MacFactory{contexts: map[uint8]netip.Prefix{}}
}

func (f *MacFactory) SetLowpanContext(cid uint8, prefix netip.Prefix) {
	f.contexts[cid&0x0f] = prefix.Masked()
}

func (f *MacFactory) Create(raw []byte) ([]*Message, error) {
	frame, err := wpan.Dissect(raw)
	if err != nil {
		return nil, errors.Wrap(err, "dissect")
	}
	if frame.IsAck() {
		return nil, ErrDropPacket
	}

	msg := &Message{
		Channel:   frame.Channel,
		FrameType: frameTypeName(frame.FrameControl.FrameType()),
		Seq:       frame.Seq,
		Src:       addrString(frame.FrameControl.SourceAddrMode(), frame.SrcAddrShort, frame.SrcAddrExtended),
		Dst:       addrString(frame.FrameControl.DestAddrMode(), frame.DstAddrShort, frame.DstAddrExtended),
		Broadcast: frame.IsBroadcast(),
		AckReq:    frame.FrameControl.AckRequest(),
		Secured:   frame.FrameControl.SecurityEnabled(),
		Psdu:      append([]byte(nil), raw[1:]...),
	}

	if frame.FrameControl.FrameType() == wpan.FrameTypeData && !msg.Secured {
		end := len(raw) - fcsLen
		if frame.PayloadOffset < end {
			f.decodeLowpan(msg, raw[frame.PayloadOffset:end])
		}
	}
	return []*Message{msg}, nil
}

func (f *MacFactory) decodeLowpan(msg *Message, payload []byte) {
	d := payload[0]
	switch {
	case d&lowpanDispatchIphcMask == lowpanDispatchIphc:
		msg.Dispatch = "iphc"
	case d&lowpanDispatchMeshMask == lowpanDispatchMesh:
		msg.Dispatch = "mesh"
		return
	case d&lowpanDispatchFragMask == lowpanDispatchFrag1:
		msg.Dispatch = "frag1"
		return
	case d&lowpanDispatchFragMask == lowpanDispatchFragN:
		msg.Dispatch = "fragn"
		return
	default:
		msg.Dispatch = fmt.Sprintf("0x%02x", d)
		return
	}

	if len(payload) < 2 {
		return
	}
	b := payload[1]
	var sci, dci uint8
	if b&iphcCid != 0 {
		if len(payload) < 3 {
			return
		}
		sci, dci = payload[2]>>4, payload[2]&0x0f
	}
	if b&iphcSac != 0 {
		if p, ok := f.contexts[sci]; ok {
			msg.SrcPrefix = p.String()
		}
	}
	if b&iphcDac != 0 && b&iphcM == 0 {
		if p, ok := f.contexts[dci]; ok {
			msg.DstPrefix = p.String()
		}
	}
}

func frameTypeName(tp wpan.FrameType) string {
	switch tp {
	case wpan.FrameTypeBeacon:
		return "beacon"
	case wpan.FrameTypeData:
		return "data"
	case wpan.FrameTypeCommand:
		return "cmd"
	default:
		return fmt.Sprintf("type%d", tp)
	}
}

func addrString(mode uint16, short uint16, ext uint64) string {
	switch mode {
	case wpan.AddrModeShort:
		return fmt.Sprintf("%04x", short)
	case wpan.AddrModeExtended:
		return fmt.Sprintf("%016x", ext)
	default:
		return "-"
	}
}
