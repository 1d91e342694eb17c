package client

import (
	"encoding/gob"
	"net"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// UnixSocketClient is the concrete §6.5 library IPC transport: a Unix-domain
// socket listener, one connection per attached component, grounded on
// corosync's own coroipcs.c (a UNIX-socket IPC server predating the
// lib-handle abstraction this package's Call/Invocation types stand in
// for). Framing is gob-encoded Call values rather than corosync's shared-
// memory ring buffers — the wire format of an out-of-scope primitive (§1)
// isn't worth reproducing exactly, only its socket-per-component shape.
type UnixSocketClient struct {
	ln net.Listener

	mu    sync.Mutex
	conns map[interface{}]*gob.Encoder

	router Router
}

// Listen opens the Unix-domain socket at path and begins accepting
// component connections, dispatching each inbound Call to router.
func Listen(path string, router Router) (*UnixSocketClient, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrapf(err, "client: listen %s", path)
	}
	c := &UnixSocketClient{
		ln:     ln,
		conns:  make(map[interface{}]*gob.Encoder),
		router: router,
	}
	go c.acceptLoop()
	return c, nil
}

func (c *UnixSocketClient) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			glog.V(2).Infof("client: accept loop exiting: %v", err)
			return
		}
		c.mu.Lock()
		c.conns[conn] = gob.NewEncoder(conn)
		c.mu.Unlock()
		go c.readLoop(conn)
	}
}

func (c *UnixSocketClient) readLoop(conn net.Conn) {
	dec := gob.NewDecoder(conn)
	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		conn.Close()
	}()
	for {
		var call Call
		if err := dec.Decode(&call); err != nil {
			return
		}
		c.router.Route(call)
	}
}

// Send implements ComponentClient: conn is the net.Conn returned to the
// component's owning handler when it first connected.
func (c *UnixSocketClient) Send(conn interface{}, call Call) error {
	c.mu.Lock()
	enc, ok := c.conns[conn]
	c.mu.Unlock()
	if !ok {
		return errors.Errorf("client: unknown connection for comp=%d", call.Comp)
	}
	if err := enc.Encode(call); err != nil {
		return errors.Wrapf(err, "client: send to comp=%d", call.Comp)
	}
	return nil
}

func (c *UnixSocketClient) Close() error { return c.ln.Close() }

var _ ComponentClient = (*UnixSocketClient)(nil)
