package amf

import (
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/amfcore/amf/actuator"
	"github.com/amfcore/amf/client"
	"github.com/amfcore/amf/cluster"
	"github.com/amfcore/amf/noderepair"
	"github.com/amfcore/amf/transport"
)

// Reactor is the single-threaded event-driven core (§2, §5): it owns the
// object Graph exclusively and is the only goroutine that ever mutates it.
// Grounded on ais/daemon.go's Run()/rungroup shape: one top-level select loop
// fed by several channels, no handler blocking.
type Reactor struct {
	Graph    *cluster.Graph
	Timers   *TimerSet
	Actuator actuator.ComponentActuator
	Client   client.ComponentClient
	Net      transport.Substrate
	Repairer noderepair.Repairer

	events  chan Event
	results chan actuator.Result
	calls   chan client.Call

	stopping atomic.Bool
}

// NewReactor wires a Reactor around an already-loaded Graph (§6.2: config
// load only constructs entities, so the Graph handed in here must already be
// populated before Run starts).
func NewReactor(g *cluster.Graph, act actuator.ComponentActuator, cl client.ComponentClient, net transport.Substrate, rep noderepair.Repairer) *Reactor {
	r := &Reactor{
		Graph:    g,
		Timers:   NewTimerSet(),
		Actuator: act,
		Client:   cl,
		Net:      net,
		Repairer: rep,
		events:   make(chan Event, 1024),
		results:  make(chan actuator.Result, 256),
		calls:    make(chan client.Call, 256),
	}
	if sa, ok := act.(*actuator.ScriptActuator); ok {
		r.results = sa.Results
	}
	if net != nil {
		net.OnMessage(func(msg transport.Message) {
			if ev, ok := decodeTransportMessage(msg); ok {
				r.Post(ev)
			}
		})
	}
	return r
}

// Post enqueues an event for FIFO dispatch (§5: "events are dispatched FIFO
// in the order they were enqueued"). Safe to call from any goroutine —
// actuator/client/transport callbacks run off-reactor and hand control back
// this way.
func (r *Reactor) Post(ev Event) {
	if r.stopping.Load() {
		return
	}
	r.events <- ev
}

// Run is the top-level select loop (§5: "Suspension occurs only at the
// top-level select over membership-socket readiness, library-IPC readiness,
// timer-wheel expiry"). It returns when Stop is called and the event queue
// drains.
func (r *Reactor) Run() {
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.Dispatch(ev)
		case h := <-r.Timers.Fired():
			r.Timers.run(h)
		case res := <-r.results:
			r.handleActuatorResult(res)
		case call := <-r.calls:
			r.handleClientCall(call)
		}
		if r.stopping.Load() && len(r.events) == 0 {
			return
		}
	}
}

// Stop marks the reactor as stopping and arms a zero-delay timer so that a
// Run blocked in its select wakes up and sees the flag.
func (r *Reactor) Stop() {
	r.stopping.Store(true)
	r.Timers.Add(0, nil)
}

// Route implements client.Router: the concrete IPC transport (e.g.
// client.UnixSocketClient) hands every inbound component Call here,
// off-reactor, for FIFO dispatch alongside transport and timer events.
func (r *Reactor) Route(call client.Call) {
	if r.stopping.Load() {
		return
	}
	r.calls <- call
}

// Dispatch is the single entry point every external and internal report
// flows through (§6.1 envelope). Handlers that need to report up the
// hierarchy call Dispatch recursively — legal because the reactor is
// single-threaded and no handler blocks (§2, §5).
func (r *Reactor) Dispatch(ev Event) {
	glog.V(4).Infof("amf: dispatch %s", ev.Kind)
	switch ev.Kind {
	case EvNodeSyncReady:
		r.nodeSyncReady(ev.Node)
	case EvNodeLeave:
		r.nodeLeave(ev.Node)
	case EvNodeFailover:
		r.nodeFailover(ev.Node)
	case EvNodeCompRestartReq:
		r.nodeCompRestartReq(ev.Node, ev.Comp)
	case EvNodeCompFailoverReq:
		r.nodeCompFailoverReq(ev.Node, ev.Comp)
	case EvAppStart:
		r.appStart(ev.App, ev.Node)
	case EvAppAssignWorkload:
		r.appAssignWorkload(ev.App, ev.Node)
	case EvAppSgStarted:
		r.appSgStarted(ev.App, ev.SG, ev.Node)
	case EvAppSgAssigned:
		r.appSgAssigned(ev.App, ev.SG)
	case EvSgStart:
		r.sgStart(ev.SG, ev.Node)
	case EvSgAssignSi:
		r.sgAssignSi(ev.SG, ev.Level)
	case EvSgFailoverSuReq:
		r.sgFailoverSuReq(ev.SG, ev.SU, ev.Node)
	case EvSgFailoverNodeReq:
		r.sgFailoverNodeReq(ev.SG, ev.Node)
	case EvSgSuStateChanged:
		r.sgSuStateChanged(ev.SG, ev.SU, ev.ChangeKind, ev.PresenceVal, ev.OperVal)
	case EvSuCompStateChanged:
		r.suCompStateChanged(ev.SU, ev.Comp, ev.ChangeKind, ev.PresenceVal, ev.OperVal)
	case EvSuCompErrorSuspected:
		r.suCompErrorSuspected(ev.SU, ev.Comp, ev.Recovery)
	case EvCompInstantiateCompleted:
		r.compInstantiateCompleted(ev.Comp, ev.ExitCode)
	case EvCompTerminateCompleted:
		r.compTerminateCompleted(ev.Comp)
	case EvCompCleanupCompleted:
		r.compCleanupCompleted(ev.Comp, ev.ExitCode)
	case EvCompInstantiateTmo:
		r.compInstantiateTmo(ev.Comp)
	case EvCompCleanupTmo:
		r.compCleanupTmo(ev.Comp)
	case EvHealthcheckTmo:
		r.healthcheckTmo(ev.Comp, ev.HCKey, ev.Recovery)
	case EvClusterStartupTmo:
		r.clusterStartupTmo()
	case EvSyncDataChunk:
		r.syncDataChunk(ev.Payload)
	default:
		glog.Errorf("amf: unhandled event kind %v", ev.Kind)
	}
}

// handleActuatorResult routes a finished CLC-CLI script back to the reactor
// as the event matching which of Instantiate/Terminate/Cleanup it came from
// — the three scripts leave the component in different states, so a single
// "completed" event can't represent all of them.
func (r *Reactor) handleActuatorResult(res actuator.Result) {
	if res.Err != nil {
		glog.Warningf("amf: actuator result for comp=%d kind=%d err=%v", res.Comp, res.Kind, res.Err)
	}
	switch res.Kind {
	case actuator.CallInstantiate:
		r.Post(Event{Kind: EvCompInstantiateCompleted, Comp: res.Comp, ExitCode: res.ExitCode})
	case actuator.CallTerminate:
		r.Post(Event{Kind: EvCompTerminateCompleted, Comp: res.Comp, ExitCode: res.ExitCode})
	case actuator.CallCleanup:
		r.Post(Event{Kind: EvCompCleanupCompleted, Comp: res.Comp, ExitCode: res.ExitCode})
	}
}

func (r *Reactor) handleClientCall(call client.Call) {
	switch call.Kind {
	case client.CallHealthcheckConfirm:
		r.healthcheckConfirm(call.Comp, call.HCKey)
	case client.CallErrorReport:
		su := r.Graph.Comp(call.Comp).SU
		r.suCompErrorSuspected(su, call.Comp, call.Recovery)
	case client.CallHAStateGet:
		// Component asking the core what HA state it should be in; answered
		// synchronously through the Client interface by the caller, not
		// modeled further here.
	}
}

// armZeroDelay schedules cb to run on the next reactor tick, the idiom used
// throughout §4.2/§4.4 for "invoke cb on the next reactor tick" / "schedule
// the completion callback on the next tick".
func (r *Reactor) armZeroDelay(cb func()) cluster.TimerHandle {
	return r.Timers.Add(0, cb)
}

// armTimeout mirrors timer_add(duration, context, callback) (§5).
func (r *Reactor) armTimeout(d time.Duration, cb func()) cluster.TimerHandle {
	return r.Timers.Add(d, cb)
}
