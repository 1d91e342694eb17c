package transport

import (
	"net"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// LoopbackTransport is the test/single-process Substrate: it "multicasts"
// by POSTing the framed Message to every registered peer's HTTP listener,
// reusing fasthttp's client/server pair the way the teacher's go.mod already
// pulls in valyala/fasthttp for its own HTTP-heavy data path. Not meant for
// production multi-node use — §6.3's real substrate is out of scope (§1).
type LoopbackTransport struct {
	addr   string
	server *fasthttp.Server
	client *fasthttp.Client

	mu         sync.Mutex
	peers      []string
	onMsg      []func(Message)
	onMembers  []func(MembershipChange)
	memberList []string
}

// NewLoopback starts an HTTP listener at addr for inbound framed Messages.
func NewLoopback(addr string) (*LoopbackTransport, error) {
	t := &LoopbackTransport{
		addr:       addr,
		client:     &fasthttp.Client{},
		memberList: []string{addr},
	}
	t.server = &fasthttp.Server{
		Handler: t.handleRequest,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: listen %s", addr)
	}
	go func() {
		if err := t.server.Serve(ln); err != nil {
			glog.Errorf("transport: loopback server on %s exited: %v", addr, err)
		}
	}()
	return t, nil
}

func (t *LoopbackTransport) handleRequest(ctx *fasthttp.RequestCtx) {
	body := ctx.PostBody()
	if len(body) < 1 {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	msg := Message{Tag: MessageTag(body[0]), Payload: append([]byte(nil), body[1:]...)}
	t.mu.Lock()
	cbs := append([]func(Message){}, t.onMsg...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(msg)
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

// AddPeer registers another loopback instance's listen address as an mcast
// target, and fires a join MembershipChange.
func (t *LoopbackTransport) AddPeer(addr string) {
	t.mu.Lock()
	t.peers = append(t.peers, addr)
	t.memberList = append(t.memberList, addr)
	members := append([]string(nil), t.memberList...)
	cbs := append([]func(MembershipChange){}, t.onMembers...)
	t.mu.Unlock()

	change := MembershipChange{
		NodeIDs: stringsToIDs(members),
		Joined:  stringsToIDs([]string{addr}),
	}
	for _, cb := range cbs {
		cb(change)
	}
}

func (t *LoopbackTransport) Mcast(msg Message) error {
	t.mu.Lock()
	peers := append([]string(nil), t.peers...)
	t.mu.Unlock()

	buf := make([]byte, 1+len(msg.Payload))
	buf[0] = byte(msg.Tag)
	copy(buf[1:], msg.Payload)

	var firstErr error
	for _, peer := range peers {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.SetRequestURI("http://" + peer + "/")
		req.Header.SetMethod(fasthttp.MethodPost)
		req.SetBody(buf)
		err := t.client.Do(req, resp)
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		if err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "transport: mcast to %s", peer)
		}
	}
	return firstErr
}

func (t *LoopbackTransport) OnMessage(cb func(Message)) {
	t.mu.Lock()
	t.onMsg = append(t.onMsg, cb)
	t.mu.Unlock()
}

func (t *LoopbackTransport) OnMembershipChange(cb func(MembershipChange)) {
	t.mu.Lock()
	t.onMembers = append(t.onMembers, cb)
	t.mu.Unlock()
}

func (t *LoopbackTransport) Close() error {
	return t.server.Shutdown()
}

func stringsToIDs(addrs []string) []uint32 {
	out := make([]uint32, len(addrs))
	for i, a := range addrs {
		out[i] = uint32(xxhash.ChecksumString64S(a, 0))
	}
	return out
}

var _ Substrate = (*LoopbackTransport)(nil)
