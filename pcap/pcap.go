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

// Package pcap writes captured radio frames to pcap files readable by Wireshark.
package pcap

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

type FrameType int

const (
	FrameTypeOff FrameType = iota
	FrameTypeWpan
	FrameTypeWpanTap
	FrameTypeUnknown
)

const (
	FrameTypeOffStr     string = "off"
	FrameTypeWpanStr    string = "wpan"
	FrameTypeWpanTapStr string = "wpan-tap"
)

const (
	dltIeee802154       = 195
	pcapMagicNumber     = 0xA1B2C3D4
	pcapVersionMajor    = 2
	pcapVersionMinor    = 4
	pcapSnapLen         = 256
	pcapFileHeaderSize  = 24
	pcapFrameHeaderSize = 16
)

// 802.15.4 frame of a reserved type, only written as the t=0 reference of a capture.
const timeReferenceFrameData string = "\x04\x21ot-vtime simulation PCAP-start t=0 reference frame.\x61\x3f"

// File is a pcap capture being written.
type File interface {
	AppendFrame(frame Frame) error
	Sync() error
	Close() error
}

// Frame is a single radio frame added to a capture. Timestamp is in microseconds of virtual time
// and Data is the PSDU.
type Frame struct {
	Timestamp uint64
	Data      []byte
	Channel   uint8
	Rssi      float32
}

// recordHeader returns the bytes written between the pcap record header and the PSDU.
type recordHeader func(frame Frame) []byte

type file struct {
	fd     *os.File
	w      *bufio.Writer
	prefix recordHeader
}

// NewFile creates (or truncates) a capture file using the given link type.
func NewFile(filename string, frameType FrameType, useTimeRefFrame bool) (File, error) {
	var dlt uint32
	var prefix recordHeader

	switch frameType {
	case FrameTypeWpan:
		dlt, prefix = dltIeee802154, nil
	case FrameTypeWpanTap:
		dlt, prefix = dltIeee802154Tap, tapRecordHeader
	default:
		return nil, errors.Errorf("invalid PCAP frame type: %d", frameType)
	}

	fd, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open pcap %s", filename)
	}
	pf := &file{fd: fd, w: bufio.NewWriter(fd), prefix: prefix}
	if err = pf.writeHeader(dlt); err != nil {
		_ = fd.Close()
		return nil, err
	}

	if useTimeRefFrame {
		if err = pf.AppendFrame(Frame{Data: []byte(timeReferenceFrameData)}); err != nil {
			_ = fd.Close()
			return nil, errors.Wrap(err, "write time reference frame")
		}
	}
	return pf, nil
}

func ParseFrameTypeStr(tp string) FrameType {
	switch tp {
	case FrameTypeOffStr:
		return FrameTypeOff
	case FrameTypeWpanStr:
		return FrameTypeWpan
	case FrameTypeWpanTapStr:
		return FrameTypeWpanTap
	default:
		return FrameTypeUnknown
	}
}

func (pf *file) AppendFrame(frame Frame) error {
	var prefix []byte
	if pf.prefix != nil {
		prefix = pf.prefix(frame)
	}

	var header [pcapFrameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(frame.Timestamp/1000000))
	binary.LittleEndian.PutUint32(header[4:8], uint32(frame.Timestamp%1000000))
	plen := uint32(len(prefix) + len(frame.Data))
	binary.LittleEndian.PutUint32(header[8:12], plen)
	binary.LittleEndian.PutUint32(header[12:16], plen)

	if _, err := pf.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := pf.w.Write(prefix); err != nil {
		return err
	}
	_, err := pf.w.Write(frame.Data)
	return err
}

func (pf *file) Sync() error {
	if err := pf.w.Flush(); err != nil {
		return err
	}
	return pf.fd.Sync()
}

func (pf *file) Close() error {
	err := pf.w.Flush()
	if cerr := pf.fd.Close(); err == nil {
		err = cerr
	}
	return err
}

func (pf *file) writeHeader(dlt uint32) error {
	var header [pcapFileHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], pcapMagicNumber)
	binary.LittleEndian.PutUint16(header[4:6], pcapVersionMajor)
	binary.LittleEndian.PutUint16(header[6:8], pcapVersionMinor)
	binary.LittleEndian.PutUint32(header[8:12], 0)
	binary.LittleEndian.PutUint32(header[12:16], 0)
	binary.LittleEndian.PutUint32(header[16:20], pcapSnapLen)
	binary.LittleEndian.PutUint32(header[20:24], dlt)
	if _, err := pf.w.Write(header[:]); err != nil {
		return err
	}
	return pf.Sync()
}
