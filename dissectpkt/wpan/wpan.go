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
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

type FrameType = uint16

const (
	FrameTypeBeacon  FrameType = 0
	FrameTypeData    FrameType = 1
	FrameTypeAck     FrameType = 2
	FrameTypeCommand FrameType = 3
)

// Values for both Src and Dst addressing modes, Table 7-3, 802.15.4-2015.
const (
	AddrModeNone     = 0
	AddrModeReserved = 1
	AddrModeShort    = 2
	AddrModeExtended = 3
)

const BroadcastAddrShort uint16 = 0xffff

var ErrFrameTooShort = errors.New("802.15.4 frame too short")

type FrameControl uint16

func (fc FrameControl) String() string {
	return fmt.Sprintf("0x%04x", uint16(fc))
}

func (fc FrameControl) FrameType() FrameType {
	return FrameType(fc & 0x0007)
}

func (fc FrameControl) SecurityEnabled() bool {
	return (fc & 0x0008) != 0
}

func (fc FrameControl) FramePending() bool {
	return (fc & 0x0010) != 0
}

func (fc FrameControl) AckRequest() bool {
	return (fc & 0x0020) != 0
}

func (fc FrameControl) PanidCompression() bool {
	return (fc & 0x0040) != 0
}

func (fc FrameControl) SequenceNumberSuppression() bool {
	return (fc & 0x0100) != 0
}

func (fc FrameControl) DestAddrMode() uint16 {
	return uint16((fc & 0x0c00) >> 10)
}

func (fc FrameControl) SourceAddrMode() uint16 {
	return uint16((fc & 0xc000) >> 14)
}

func (fc FrameControl) FrameVersion() uint16 {
	return uint16((fc & 0x3000) >> 12)
}

func (fc FrameControl) HasDestPanIdField() bool {
	if fc.FrameVersion() <= 1 {
		return fc.DestAddrMode() != AddrModeNone
	}
	dam := fc.DestAddrMode()
	sam := fc.SourceAddrMode()
	pc := fc.PanidCompression()
	if dam == AddrModeExtended && sam == AddrModeExtended {
		return !pc
	}
	if dam != AddrModeNone {
		return !pc || sam != AddrModeNone
	}
	return sam == AddrModeNone && pc
}

func (fc FrameControl) HasSourcePanIdField() bool {
	dam := fc.DestAddrMode()
	sam := fc.SourceAddrMode()
	pc := fc.PanidCompression()
	if sam == AddrModeNone {
		return false
	}
	if fc.FrameVersion() <= 1 {
		return !pc
	}
	if dam == AddrModeExtended && sam == AddrModeExtended {
		return false
	}
	return !pc
}

type MacFrame struct {
	Channel         uint8
	FrameControl    FrameControl
	Seq             uint8
	DstPanId        uint16
	SrcPanId        uint16
	DstAddrShort    uint16
	SrcAddrShort    uint16
	DstAddrExtended uint64
	SrcAddrExtended uint64
	LengthBytes     uint16
	// PayloadOffset is the offset of the MAC payload (or aux security header) in the dissected data.
	PayloadOffset int
}

func (f *MacFrame) IsAck() bool {
	return f.FrameControl.FrameType() == FrameTypeAck
}

// IsBroadcast is true for frames sent to the short broadcast address.
func (f *MacFrame) IsBroadcast() bool {
	return f.FrameControl.DestAddrMode() == AddrModeShort && f.DstAddrShort == BroadcastAddrShort
}

func (f *MacFrame) String() string {
	if f.IsAck() {
		return fmt.Sprintf("ACK,FC:%s,Seq:%d", f.FrameControl, f.Seq)
	}

	var dstAddrS string
	switch f.FrameControl.DestAddrMode() {
	case AddrModeShort:
		dstAddrS = fmt.Sprintf("%04x", f.DstAddrShort)
	case AddrModeExtended:
		dstAddrS = fmt.Sprintf("%016x", f.DstAddrExtended)
	default:
		dstAddrS = "-"
	}

	return fmt.Sprintf("MAC,FC:%s,Seq:%d,Dst:%s", f.FrameControl, f.Seq, dstAddrS)
}

type reader struct {
	data []byte
	n    int
}

func (r *reader) need(l int) error {
	if r.n+l > len(r.data) {
		return errors.Wrapf(ErrFrameTooShort, "need %d bytes at offset %d, have %d", l, r.n, len(r.data))
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.n]
	r.n += 1
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.n:])
	r.n += 2
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.n:])
	r.n += 8
	return v, nil
}

// Dissect dissects the MAC header of a radio event payload. The first byte is the channel, which is
// not part of 802.15.4 but of the simulation radio message format.
func Dissect(data []byte) (*MacFrame, error) {
	var err error
	r := &reader{data: data}
	frame := &MacFrame{}

	if frame.Channel, err = r.u8(); err != nil {
		return nil, err
	}
	frame.LengthBytes = uint16(len(data) - 1)
	fc, err := r.u16()
	if err != nil {
		return nil, err
	}
	frame.FrameControl = FrameControl(fc)
	if frame.FrameControl.FrameType() > FrameTypeCommand {
		frame.PayloadOffset = r.n
		return frame, nil // unsupported frame types carry no addressing we can use.
	}

	if !frame.FrameControl.SequenceNumberSuppression() {
		if frame.Seq, err = r.u8(); err != nil {
			return nil, err
		}
	}
	if frame.IsAck() {
		frame.PayloadOffset = r.n
		return frame, nil
	}

	if frame.FrameControl.HasDestPanIdField() {
		if frame.DstPanId, err = r.u16(); err != nil {
			return nil, err
		}
	}
	switch frame.FrameControl.DestAddrMode() {
	case AddrModeExtended:
		frame.DstAddrExtended, err = r.u64()
	case AddrModeShort:
		frame.DstAddrShort, err = r.u16()
	}
	if err != nil {
		return nil, err
	}

	if frame.FrameControl.HasSourcePanIdField() {
		if frame.SrcPanId, err = r.u16(); err != nil {
			return nil, err
		}
	}
	switch frame.FrameControl.SourceAddrMode() {
	case AddrModeExtended:
		frame.SrcAddrExtended, err = r.u64()
	case AddrModeShort:
		frame.SrcAddrShort, err = r.u16()
	}
	if err != nil {
		return nil, err
	}

	frame.PayloadOffset = r.n
	return frame, nil
}
