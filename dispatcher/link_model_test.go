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

	"github.com/stretchr/testify/assert"
)

func TestLinkModelDefaultFullMesh(t *testing.T) {
	m := newLinkModel("test-full-mesh")
	m.AddNode(1)
	m.AddNode(2)
	assert.True(t, m.Reachable(1, 2))
	assert.True(t, m.Reachable(2, 7))
	assert.Empty(t, m.Links())
}

func TestLinkModelTopology(t *testing.T) {
	m := newLinkModel("test-topology")
	m.Connect(1, 2)
	m.Connect(3, 2)

	assert.True(t, m.Reachable(1, 2))
	assert.True(t, m.Reachable(2, 1))
	assert.True(t, m.Reachable(2, 3))
	assert.False(t, m.Reachable(1, 3))
	assert.Equal(t, []Link{{1, 2}, {2, 3}}, m.Links())

	m.Disconnect(1, 2)
	assert.False(t, m.Reachable(1, 2))
	assert.Equal(t, []Link{{2, 3}}, m.Links())

	assert.Panics(t, func() { m.Connect(4, 4) })
}

func TestLinkModelLoss(t *testing.T) {
	m := newLinkModel("test-loss")
	for i := 0; i < 100; i++ {
		assert.False(t, m.Lost())
	}

	m.SetLossRatio(1)
	for i := 0; i < 100; i++ {
		assert.True(t, m.Lost())
	}

	m.SetLossRatio(0.5)
	lost := 0
	for i := 0; i < 2000; i++ {
		if m.Lost() {
			lost++
		}
	}
	assert.InDelta(t, 1000, lost, 200)
	assert.Panics(t, func() { m.SetLossRatio(-0.1) })
}
