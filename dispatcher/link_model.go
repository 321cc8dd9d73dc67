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
	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/types"
)

// linkModel decides whether a radio frame reaches a receiver. Until the first link is configured every
// radio reaches every other one; afterwards only nodes joined by a link do. On top of the topology, each
// delivery is lost with probability lossRatio, drawn from a named random stream.
type linkModel struct {
	topo       *simple.UndirectedGraph
	configured bool
	lossRatio  float64
	rng        *rngstream.RngStream
}

func newLinkModel(lossStream string) *linkModel {
	return &linkModel{
		topo: simple.NewUndirectedGraph(),
		rng:  rngstream.New(lossStream),
	}
}

func (m *linkModel) AddNode(id types.NodeId) {
	if m.topo.Node(int64(id)) == nil {
		m.topo.AddNode(simple.Node(id))
	}
}

func (m *linkModel) Connect(a, b types.NodeId) {
	logger.AssertTrue(a != b, "self link %d", a)
	m.configured = true
	m.topo.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(b)})
}

func (m *linkModel) Disconnect(a, b types.NodeId) {
	m.configured = true
	m.topo.RemoveEdge(int64(a), int64(b))
}

func (m *linkModel) Reachable(src, dst types.NodeId) bool {
	if !m.configured {
		return true
	}
	return m.topo.HasEdgeBetween(int64(src), int64(dst))
}

// Links returns the configured links, lower node id first.
func (m *linkModel) Links() []Link {
	var links []Link
	edges := m.topo.Edges()
	for edges.Next() {
		e := edges.Edge()
		a, b := types.NodeId(e.From().ID()), types.NodeId(e.To().ID())
		if a > b {
			a, b = b, a
		}
		links = append(links, Link{A: a, B: b})
	}
	slices.SortFunc(links, func(x, y Link) int {
		if x.A != y.A {
			return x.A - y.A
		}
		return x.B - y.B
	})
	return links
}

func (m *linkModel) SetLossRatio(ratio float64) {
	logger.AssertTrue(ratio >= 0 && ratio <= 1, "invalid loss ratio %v", ratio)
	m.lossRatio = ratio
}

func (m *linkModel) LossRatio() float64 {
	return m.lossRatio
}

// Lost draws whether one delivery is lost. No number is drawn while the loss ratio is 0, so enabling
// loss does not perturb earlier runs.
func (m *linkModel) Lost() bool {
	if m.lossRatio <= 0 {
		return false
	}
	return m.rng.RandU01() < m.lossRatio
}
