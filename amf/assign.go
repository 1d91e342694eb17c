package amf

import (
	"github.com/golang/glog"

	"github.com/amfcore/amf/cluster"
)

// SI/CSI assignment layer (§4.2). These are plain Graph operations with
// actuator/client side effects; they are not individually part of the §6.1
// event envelope (si_activate/si_ha_state_assume are internal calls other
// FSM handlers make directly, per §2's "parent→child method calls").

// SiActivate implements si_activate(si, cb) (§4.2): request ACTIVE on every
// CSIAssignment under every CSI of si, invoke cb once the SI's aggregate HA
// state actually becomes ACTIVE.
func (r *Reactor) SiActivate(siH cluster.SIHandle, cb func()) {
	si := r.Graph.SI(siH)
	if cb != nil {
		si.onActivated = cb
	}
	for _, csiH := range si.CSIs {
		csi := r.Graph.CSI(csiH)
		for _, a := range csi.Assignments {
			a.Requested = cluster.HAActive
			comp := r.Graph.Comp(a.Comp)
			csiH, a := csiH, a
			r.Actuator.SetHAState(a.Comp, csiH, cluster.HAActive, func() {
				a.Current = a.Requested
				if a.Parent != nil {
					r.CompSetHastateDone(si.Handle, a.Parent)
				}
			})
			glog.V(4).Infof("amf: comp %d set_hastate(ACTIVE) for csi %d", comp.Handle, csiH)
		}
	}
}

// SiHaStateAssume implements si_ha_state_assume(si_assn, cb) (§4.2): for the
// one SU associated with si_assn, push its CSIAssignments whose current
// differs from requested; if none needed an update, cb still fires — but
// only on the next tick, so callers always observe a deferred callback
// (§4.2: "cb is invoked once the SI's HA state actually becomes ACTIVE").
func (r *Reactor) SiHaStateAssume(assn *cluster.SIAssignment, cb func()) {
	assn.SetPendingCB(cb)
	si := r.Graph.SI(assn.SI)
	updated := false
	for _, csiH := range si.CSIs {
		csi := r.Graph.CSI(csiH)
		for _, ca := range csi.Assignments {
			if ca.Parent != assn || r.Graph.Comp(ca.Comp).SU != assn.SU {
				continue
			}
			ca.Requested = assn.Requested
			if ca.Current == ca.Requested {
				continue
			}
			updated = true
			csiH, ca := csiH, ca
			r.Actuator.SetHAState(ca.Comp, csiH, ca.Requested, func() {
				ca.Current = ca.Requested
				r.CompSetHastateDone(si.Handle, assn)
			})
		}
	}
	if !updated {
		r.armZeroDelay(func() {
			r.CompSetHastateDone(si.Handle, assn)
		})
	}
}

// CompSetHastateDone implements comp_set_hastate_done(si, csi_assn) (§4.2):
// recompute the SI's aggregate HA state and, once every CSIAssignment
// parented to assn has itself converged (current==requested), fire assn's
// pending callback exactly once. AssignSi builds one CSIAssignment per
// capable Component in the SU, so an SU with more than one SA-aware/
// proxied-pre Component needs every one of them to confirm before the
// parent SIAssignment is considered settled.
func (r *Reactor) CompSetHastateDone(siH cluster.SIHandle, assn *cluster.SIAssignment) {
	si := r.Graph.SI(siH)
	if !assnConverged(r.Graph, si, assn) {
		return
	}
	assn.Current = assn.Requested
	assn.FirePendingCB()
	if aggregateSIHAState(r.Graph, si) == cluster.HAActive && si.onActivated != nil {
		cb := si.onActivated
		si.onActivated = nil
		cb()
	}
}

// assnConverged reports whether every CSIAssignment parented to assn has
// reached its requested HA state.
func assnConverged(g *cluster.Graph, si *cluster.ServiceInstance, assn *cluster.SIAssignment) bool {
	for _, csiH := range si.CSIs {
		csi := g.CSI(csiH)
		for _, ca := range csi.Assignments {
			if ca.Parent == assn && ca.Current != ca.Requested {
				return false
			}
		}
	}
	return true
}

// CsiDeleteAssignments implements csi_delete_assignments(csi, su) (§4.2):
// unlink and destroy every CSIAssignment of csi whose Component belongs to
// su.
func (r *Reactor) CsiDeleteAssignments(csiH cluster.CSIHandle, suH cluster.SUHandle) {
	csi := r.Graph.CSI(csiH)
	kept := csi.Assignments[:0]
	for _, ca := range csi.Assignments {
		if r.Graph.Comp(ca.Comp).SU == suH {
			continue
		}
		kept = append(kept, ca)
	}
	csi.Assignments = kept
}

// aggregateSIHAState implements the §4.2 table, first-match-wins, and writes
// the result nowhere (the spec models SI HA state as derived, not stored) —
// callers needing the value call this directly.
func aggregateSIHAState(g *cluster.Graph, si *cluster.ServiceInstance) cluster.HAState {
	anyQuiesced, anyQuiescing, allStandby, allActive := false, false, true, true
	any := false
	for _, csiH := range si.CSIs {
		csi := g.CSI(csiH)
		for _, ca := range csi.Assignments {
			any = true
			switch ca.Current {
			case cluster.HAQuiesced:
				anyQuiesced = true
			case cluster.HAQuiescing:
				anyQuiescing = true
			}
			if ca.Current != cluster.HAStandby {
				allStandby = false
			}
			if ca.Current != cluster.HAActive {
				allActive = false
			}
		}
	}
	switch {
	case anyQuiesced:
		return cluster.HAQuiesced
	case anyQuiescing:
		return cluster.HAQuiescing
	case any && allStandby:
		return cluster.HAStandby
	case any && allActive:
		return cluster.HAActive
	default:
		return cluster.HAActive // "otherwise: unchanged" — no prior value stored, default neutral
	}
}

// siAssignState implements the §4.2 SI assignment-state rule.
func siAssignState(si *cluster.ServiceInstance) cluster.SIAssignState {
	active, standby := 0, 0
	for _, a := range si.Assignments {
		switch a.Requested {
		case cluster.HAActive:
			active++
		case cluster.HAStandby:
			standby++
		}
	}
	switch {
	case active == 0:
		return cluster.SIUnassigned
	case active == int(si.PrefActiveAssignments) && standby == int(si.PrefStandbyAssignments):
		return cluster.SIFullyAssigned
	default:
		return cluster.SIPartiallyAssigned
	}
}
