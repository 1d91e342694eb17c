package amf

import (
	"github.com/golang/glog"

	"github.com/amfcore/amf/cluster"
)

// deferredOwner is any entity struct that exposes a deferred FIFO (§5).
// Application, ServiceGroup and ServiceUnit all do (§3 essential
// attributes).
type deferredOwner interface {
	Defer(e cluster.DeferredEntry)
	PopDeferred() (cluster.DeferredEntry, bool)
}

// toDeferred/fromDeferred translate between the reactor's Event envelope and
// the object model's transport-agnostic DeferredEntry (P3: re-dispatched
// events must carry an identical payload).
func toDeferred(e Event) cluster.DeferredEntry {
	return cluster.DeferredEntry{
		Kind: uint8(e.Kind), Node: e.Node, App: e.App, SG: e.SG, SU: e.SU, Comp: e.Comp,
		Level: e.Level, ChangeKind: uint8(e.ChangeKind), PresenceVal: e.PresenceVal,
		OperVal: e.OperVal, Recovery: e.Recovery, HCKey: e.HCKey, ExitCode: e.ExitCode,
		Payload: e.Payload,
	}
}

func fromDeferred(d cluster.DeferredEntry) Event {
	return Event{
		Kind: EventKind(d.Kind), Node: d.Node, App: d.App, SG: d.SG, SU: d.SU, Comp: d.Comp,
		Level: d.Level, ChangeKind: StateChangeKind(d.ChangeKind), PresenceVal: d.PresenceVal,
		OperVal: d.OperVal, Recovery: d.Recovery, HCKey: d.HCKey, ExitCode: d.ExitCode,
		Payload: d.Payload,
	}
}

// deferAndArm appends ev to owner's FIFO and arms a zero-delay recall timer
// so the event is re-dispatched the next time the entity is idle (§5,
// Design Notes §9: "uniform recall_deferred_events entry point").
func (r *Reactor) deferAndArm(owner deferredOwner, ev Event, armRecall func()) {
	glog.V(3).Infof("amf: deferring %s while owner busy", ev.Kind)
	owner.Defer(ev)
	if armRecall != nil {
		armRecall()
	}
}

// drainOneDeferred pops and redispatches exactly one deferred entry, the
// granularity the spec's zero-delay recall timer operates at (§5: "a
// zero-delay timer whose callback drains one entry and re-dispatches it").
func (r *Reactor) drainOneDeferred(owner deferredOwner) bool {
	d, ok := owner.PopDeferred()
	if !ok {
		return false
	}
	r.Dispatch(fromDeferred(d))
	return true
}
