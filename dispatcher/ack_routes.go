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
	"golang.org/x/exp/slices"

	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/types"
)

// ackRoutes maps an 802.15.4 sequence number to the radio devices whose last non-ACK transmission
// used it, so that an ACK with that sequence number only reaches them.
type ackRoutes struct {
	bySeq map[uint8][]types.DeviceKey
	seqOf map[types.DeviceKey]uint8
}

func newAckRoutes() *ackRoutes {
	return &ackRoutes{
		bySeq: map[uint8][]types.DeviceKey{},
		seqOf: map[types.DeviceKey]uint8{},
	}
}

// OnNonAckTransmit moves dev under seq, evicting it from its previous sequence number.
func (r *ackRoutes) OnNonAckTransmit(dev types.DeviceKey, seq uint8) {
	r.Remove(dev)
	logger.AssertFalse(r.Contains(seq, dev))
	r.bySeq[seq] = append(r.bySeq[seq], dev)
	r.seqOf[dev] = seq
	logger.AssertTrue(r.Contains(seq, dev))
}

// Lookup returns the devices awaiting an ACK for seq in registration order. The list may be empty
// when all members moved on; ok is false if seq was never registered.
func (r *ackRoutes) Lookup(seq uint8) (devs []types.DeviceKey, ok bool) {
	devs, ok = r.bySeq[seq]
	return
}

func (r *ackRoutes) Contains(seq uint8, dev types.DeviceKey) bool {
	return slices.Contains(r.bySeq[seq], dev)
}

// Remove drops dev from the table, if present.
func (r *ackRoutes) Remove(dev types.DeviceKey) {
	seq, ok := r.seqOf[dev]
	if !ok {
		return
	}
	devs := r.bySeq[seq]
	if i := slices.Index(devs, dev); i >= 0 {
		r.bySeq[seq] = slices.Delete(devs, i, i+1)
	}
	delete(r.seqOf, dev)
}
