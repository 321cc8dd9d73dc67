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
	"testing"

	"github.com/openthread/ot-vtime/types"
	"github.com/stretchr/testify/assert"
)

const (
	devA types.DeviceKey = 9001
	devB types.DeviceKey = 9002
	devC types.DeviceKey = 9003
)

func TestAckRoutes_Lookup(t *testing.T) {
	r := newAckRoutes()
	_, ok := r.Lookup(7)
	assert.False(t, ok)

	r.OnNonAckTransmit(devA, 7)
	r.OnNonAckTransmit(devB, 7)
	devs, ok := r.Lookup(7)
	assert.True(t, ok)
	assert.Equal(t, []types.DeviceKey{devA, devB}, devs)
}

func TestAckRoutes_Reregister(t *testing.T) {
	r := newAckRoutes()
	r.OnNonAckTransmit(devA, 1) // S1
	r.OnNonAckTransmit(devA, 2) // S2
	r.OnNonAckTransmit(devA, 1) // S1 again

	devs, ok := r.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, []types.DeviceKey{devA}, devs)
	assert.False(t, r.Contains(2, devA))

	devs, ok = r.Lookup(2)
	assert.True(t, ok)
	assert.Empty(t, devs)
}

func TestAckRoutes_SameSeqTwice(t *testing.T) {
	r := newAckRoutes()
	r.OnNonAckTransmit(devA, 5)
	r.OnNonAckTransmit(devA, 5)
	devs, _ := r.Lookup(5)
	assert.Equal(t, []types.DeviceKey{devA}, devs)
}

func TestAckRoutes_Remove(t *testing.T) {
	r := newAckRoutes()
	r.OnNonAckTransmit(devA, 3)
	r.OnNonAckTransmit(devB, 3)
	r.OnNonAckTransmit(devC, 4)

	r.Remove(devA)
	assert.False(t, r.Contains(3, devA))
	assert.True(t, r.Contains(3, devB))
	r.Remove(devA) // absent
	r.Remove(devC)
	devs, ok := r.Lookup(4)
	assert.True(t, ok)
	assert.Empty(t, devs)
}
