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

package pcap

import (
	"encoding/binary"
	"math"
)

// wpan-tap / DLT IEEE802 15 4 TAP specification is at
// https://gitlab.com/exegin/ieee802-15-4-tap
const (
	dltIeee802154Tap       = 283
	pcapTapFrameHeaderSize = 28
)

const (
	tlvFcsType           = 0
	tlvRss               = 1
	tlvChannelAssignment = 3
)

// appendTlv appends one TLV, padding the value to a multiple of 4 bytes.
func appendTlv(b []byte, tlvType uint16, value []byte) []byte {
	var tl [4]byte
	binary.LittleEndian.PutUint16(tl[0:2], tlvType)
	binary.LittleEndian.PutUint16(tl[2:4], uint16(len(value)))
	b = append(b, tl[:]...)
	b = append(b, value...)
	for pad := (4 - len(value)%4) % 4; pad > 0; pad-- {
		b = append(b, 0)
	}
	return b
}

func tapRecordHeader(frame Frame) []byte {
	b := make([]byte, 4, pcapTapFrameHeaderSize)
	b[0] = 0 // version
	b[1] = 0 // reserved
	binary.LittleEndian.PutUint16(b[2:4], pcapTapFrameHeaderSize)

	b = appendTlv(b, tlvFcsType, []byte{1}) // 16-bit CRC
	var rss [4]byte
	binary.LittleEndian.PutUint32(rss[:], math.Float32bits(frame.Rssi))
	b = appendTlv(b, tlvRss, rss[:])
	// channel number, then channel page 0.
	b = appendTlv(b, tlvChannelAssignment, []byte{frame.Channel, 0, 0})
	return b
}
