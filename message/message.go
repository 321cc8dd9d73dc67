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

// Package message holds the messages decoded from captured radio frames and buffered per node until a
// test driver collects them.
package message

import (
	"fmt"
	"net/netip"

	"github.com/pkg/errors"
)

// ErrDropPacket is returned by a Factory for frames that must not be recorded. It is not an error
// condition for the engine.
var ErrDropPacket = errors.New("drop packet")

// Message is the decoded form of a radio frame sent by a node.
type Message struct {
	Timestamp uint64 `yaml:"time"`
	Channel   uint8  `yaml:"channel"`
	FrameType string `yaml:"frame"`
	Seq       uint8  `yaml:"seq"`
	Src       string `yaml:"src"`
	Dst       string `yaml:"dst"`
	Broadcast bool   `yaml:"bcast,omitempty"`
	AckReq    bool   `yaml:"ackreq,omitempty"`
	Secured   bool   `yaml:"secured,omitempty"`
	Dispatch  string `yaml:"dispatch,omitempty"`
	SrcPrefix string `yaml:"srcprefix,omitempty"`
	DstPrefix string `yaml:"dstprefix,omitempty"`
	Psdu      []byte `yaml:"-"`
}

func (m *Message) String() string {
	return fmt.Sprintf("Msg{%s,t=%d,seq=%d,%s->%s,len=%d}", m.FrameType, m.Timestamp, m.Seq, m.Src, m.Dst, len(m.Psdu))
}

// Factory turns the payload of a RadioReceived event into messages. Create may return ErrDropPacket.
type Factory interface {
	Create(raw []byte) ([]*Message, error)
	SetLowpanContext(cid uint8, prefix netip.Prefix)
}

// MessagesSet is what GetMessagesSentBy returns for one node.
type MessagesSet struct {
	Messages              []*Message `yaml:"messages"`
	CommissioningMessages []*Message `yaml:"commissioning,omitempty"`
}

func (s *MessagesSet) Len() int {
	return len(s.Messages) + len(s.CommissioningMessages)
}

// All returns radio messages followed by commissioning messages.
func (s *MessagesSet) All() []*Message {
	all := make([]*Message, 0, s.Len())
	all = append(all, s.Messages...)
	return append(all, s.CommissioningMessages...)
}

// Next removes and returns the first radio message matching pred, or nil.
func (s *MessagesSet) Next(pred func(m *Message) bool) *Message {
	for i, m := range s.Messages {
		if pred == nil || pred(m) {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			return m
		}
	}
	return nil
}
