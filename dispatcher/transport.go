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
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-vtime/event"
	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/types"
)

const (
	maxFrameSize       = 65536
	socketBufferSize   = 4 * 1024 * 1024
	recvChanBufferSize = 10000
	acceptRetryDelay   = 10 * time.Millisecond
)

// recvItem is what transport readers hand to the engine goroutine. A nil evt with a nil err reports
// that the device's connection closed. A non-nil err is a receive error; the engine only treats it as
// fatal while it waits for a device.
type recvItem struct {
	key types.DeviceKey
	evt *event.Event
	err error
}

type transport interface {
	// Start starts the reader goroutines, which deliver to out until Close is called.
	Start(out chan<- recvItem)
	Send(key types.DeviceKey, data []byte) error
	Close() error
	String() string
}

// deserializeFrames decodes all frames contained in one datagram or packet.
func deserializeFrames(key types.DeviceKey, data []byte) []*event.Event {
	var evts []*event.Event
	for len(data) > 0 {
		evt := &event.Event{}
		n := evt.Deserialize(data)
		if n == 0 {
			logger.Warnf("%s: dropping %d bytes of incomplete frame", key, len(data))
			break
		}
		evt.Device = key
		evts = append(evts, evt)
		data = data[n:]
	}
	return evts
}

type udpTransport struct {
	conn  *net.UDPConn
	host  string
	done  chan struct{}
	wg    sync.WaitGroup
	lock  sync.Mutex
	peers map[types.DeviceKey]*net.UDPAddr
	once  sync.Once
}

func newUdpTransport(host string, port int) (*udpTransport, error) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s:%d", host, port)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	_ = conn.SetReadBuffer(socketBufferSize)
	_ = conn.SetWriteBuffer(socketBufferSize)
	logger.Infof("dispatcher listening on udp %s ...", addr)

	return &udpTransport{
		conn:  conn,
		host:  host,
		done:  make(chan struct{}),
		peers: map[types.DeviceKey]*net.UDPAddr{},
	}, nil
}

func (t *udpTransport) String() string {
	return "udp:" + t.conn.LocalAddr().String()
}

func (t *udpTransport) Start(out chan<- recvItem) {
	t.wg.Add(1)
	go t.readLoop(out)
}

func (t *udpTransport) readLoop(out chan<- recvItem) {
	defer t.wg.Done()
	buf := make([]byte, maxFrameSize)

	for {
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed(err) {
				logger.Debugf("udp events reader quit: %v", err)
				return
			}
			logger.Warnf("udp read: %v", err)
			select {
			case <-t.done:
				return
			case out <- recvItem{err: errors.Wrap(err, "udp read")}:
			}
			continue
		}

		key := types.DeviceKey(src.Port)
		t.lock.Lock()
		t.peers[key] = src
		t.lock.Unlock()

		for _, evt := range deserializeFrames(key, buf[:n]) {
			select {
			case out <- recvItem{key: key, evt: evt}:
			case <-t.done:
				return
			}
		}
	}
}

func (t *udpTransport) closed(err error) bool {
	select {
	case <-t.done:
		return true
	default:
		return errors.Is(err, net.ErrClosed)
	}
}

func (t *udpTransport) Send(key types.DeviceKey, data []byte) error {
	t.lock.Lock()
	addr := t.peers[key]
	t.lock.Unlock()
	if addr == nil {
		addr = &net.UDPAddr{IP: net.ParseIP(t.host), Port: int(key)}
	}
	_, err := t.conn.WriteToUDP(data, addr)
	return err
}

func (t *udpTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.conn.Close()
		t.wg.Wait()
	})
	return err
}

// unixTransport accepts one seqpacket connection per device. The first packet on a connection is a
// NodeInfo event naming the node and endpoint.
type unixTransport struct {
	ln         *net.UnixListener
	path       string
	basePort   int
	splitRadio bool
	done       chan struct{}
	wg         sync.WaitGroup
	lock       sync.Mutex
	conns      map[types.DeviceKey]*net.UnixConn
	once       sync.Once
}

func newUnixTransport(path string, basePort int, splitRadio bool) (*unixTransport, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "remove stale socket %s", path)
	}
	ln, err := net.ListenUnix("unixpacket", &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", path)
	}
	logger.Infof("dispatcher listening on unix %s ...", path)

	return &unixTransport{
		ln:         ln,
		path:       path,
		basePort:   basePort,
		splitRadio: splitRadio,
		done:       make(chan struct{}),
		conns:      map[types.DeviceKey]*net.UnixConn{},
	}, nil
}

func (t *unixTransport) String() string {
	return "unix:" + t.path
}

func (t *unixTransport) Start(out chan<- recvItem) {
	t.wg.Add(1)
	go t.acceptLoop(out)
}

func (t *unixTransport) acceptLoop(out chan<- recvItem) {
	defer t.wg.Done()
	for {
		conn, err := t.ln.AcceptUnix()
		if err != nil {
			if t.closed(err) {
				return
			}
			logger.Warnf("unix accept: %v", err)
			select {
			case <-t.done:
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}
		t.wg.Add(1)
		go t.serve(conn, out)
	}
}

func (t *unixTransport) closed(err error) bool {
	select {
	case <-t.done:
		return true
	default:
		return errors.Is(err, net.ErrClosed)
	}
}

func (t *unixTransport) serve(conn *net.UnixConn, out chan<- recvItem) {
	defer t.wg.Done()
	buf := make([]byte, maxFrameSize)

	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		_ = conn.Close()
		return
	}
	hello := &event.Event{}
	var id types.NodeId
	var isRadio bool
	if hello.Deserialize(buf[:n]) > 0 {
		id, isRadio, err = hello.NodeInfo()
	} else {
		err = errors.Errorf("incomplete frame")
	}
	if err != nil || id <= types.InvalidNodeId || id > types.MaxNodes {
		logger.Warnf("unix: rejecting connection without valid node info: %v", err)
		_ = conn.Close()
		return
	}

	key := types.CoreKey(t.basePort, id)
	if isRadio && t.splitRadio {
		key = types.RadioKey(t.basePort, id)
	}
	t.lock.Lock()
	if old := t.conns[key]; old != nil {
		_ = old.Close()
	}
	t.conns[key] = conn
	t.lock.Unlock()
	logger.Debugf("unix: %s connected", key)

	for {
		n, err = conn.Read(buf)
		if err != nil || n == 0 {
			break
		}
		for _, evt := range deserializeFrames(key, buf[:n]) {
			select {
			case out <- recvItem{key: key, evt: evt}:
			case <-t.done:
				return
			}
		}
	}

	t.lock.Lock()
	current := t.conns[key] == conn
	if current {
		delete(t.conns, key)
	}
	t.lock.Unlock()
	_ = conn.Close()
	if !current {
		return // replaced by a newer connection of the same device.
	}

	select {
	case out <- recvItem{key: key}:
	case <-t.done:
	}
}

func (t *unixTransport) Send(key types.DeviceKey, data []byte) error {
	t.lock.Lock()
	conn := t.conns[key]
	t.lock.Unlock()
	if conn == nil {
		return errors.Errorf("%s: not connected", key)
	}
	_, err := conn.Write(data)
	return err
}

func (t *unixTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.ln.Close()
		t.lock.Lock()
		for _, c := range t.conns {
			_ = c.Close()
		}
		t.lock.Unlock()
		t.wg.Wait()
		_ = os.Remove(t.path)
	})
	return err
}
