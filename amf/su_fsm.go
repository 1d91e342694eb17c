package amf

import (
	"github.com/golang/glog"

	"github.com/amfcore/amf/cluster"
)

// ServiceUnit FSM (RCSM), §4.3.

// suIsBusy reports whether su's RCSM is mid-transition (I6): any state other
// than the three IDLE_LEVEL_* states counts as composite.
func suIsBusy(su *cluster.ServiceUnit) bool {
	switch su.RCSM {
	case cluster.IdleLevel0, cluster.IdleLevel1, cluster.IdleLevel2:
		return false
	default:
		return true
	}
}

// Instantiate implements instantiate(su) (§4.3): from UNINSTANTIATED, set
// current-level to the lowest Component instantiation-level, request the
// actuator to start every Component at that level. Ignored once already
// INSTANTIATED/TERMINATING/etc.
func (r *Reactor) Instantiate(suH cluster.SUHandle) {
	su := r.Graph.SU(suH)
	if su.Presence != cluster.PresenceUninstantiated {
		return
	}
	level := lowestLevel(r.Graph, su)
	su.CurInstLevel = level
	su.Presence = cluster.PresenceInstantiating
	r.instantiateLevel(su, level)
}

func (r *Reactor) instantiateLevel(su *cluster.ServiceUnit, level int32) {
	for _, ch := range su.Components {
		comp := r.Graph.Comp(ch)
		if comp.InstantiationLevel != level {
			continue
		}
		comp.Presence = cluster.PresenceInstantiating
		r.Actuator.Instantiate(ch, comp.InstantiateCmd, comp.InstantiateTmo)
	}
}

// Terminate implements terminate(su) (§4.3): set current-level to the
// highest level, mark all Components at that level error-suspected and
// request abrupt terminate.
func (r *Reactor) Terminate(suH cluster.SUHandle) {
	su := r.Graph.SU(suH)
	level := highestLevel(r.Graph, su)
	su.CurInstLevel = level
	su.Presence = cluster.PresenceTerminating
	for _, ch := range su.Components {
		comp := r.Graph.Comp(ch)
		if comp.InstantiationLevel != level {
			continue
		}
		comp.ErrorSuspected = true
		comp.Presence = cluster.PresenceTerminating
		r.Actuator.Terminate(ch, comp.TerminateCmd, comp.TerminateTmo)
	}
}

func lowestLevel(g *cluster.Graph, su *cluster.ServiceUnit) int32 {
	min := int32(0)
	first := true
	for _, ch := range su.Components {
		l := g.Comp(ch).InstantiationLevel
		if first || l < min {
			min, first = l, false
		}
	}
	return min
}

func highestLevel(g *cluster.Graph, su *cluster.ServiceUnit) int32 {
	max := int32(0)
	for _, ch := range su.Components {
		if l := g.Comp(ch).InstantiationLevel; l > max {
			max = l
		}
	}
	return max
}

// AssignSi implements assign_si(su, si, ha_state) (§4.3): build one
// SIAssignment and, for every Component in su whose CS-type list contains
// the SI's CSI's CS-type, build one CSIAssignment at the requested state.
// Open Question (b): requested_ha_state is reset to the current ha_state on
// re-entry so a partial prior failure never leaves a stale request.
func (r *Reactor) AssignSi(suH cluster.SUHandle, siH cluster.SIHandle, ha cluster.HAState) *cluster.SIAssignment {
	su := r.Graph.SU(suH)
	si := r.Graph.SI(siH)

	var assn *cluster.SIAssignment
	for _, a := range si.Assignments {
		if a.SU == suH {
			assn = a
			break
		}
	}
	if assn == nil {
		assn = cluster.NewSIAssignment(siH, suH, ha)
		si.Assignments = append(si.Assignments, assn)
	} else {
		assn.Requested = assn.Current // Open Question (b)
		assn.Requested = ha
	}

	for _, csiH := range si.CSIs {
		csi := r.Graph.CSI(csiH)
		for _, ch := range su.Components {
			comp := r.Graph.Comp(ch)
			if !hasCapableCSType(comp, csi.CSType) {
				continue
			}
			if existingCSIAssignment(csi, ch) != nil {
				continue
			}
			csi.Assignments = append(csi.Assignments, cluster.NewCSIAssignment(csiH, ch, assn.Current, ha, assn))
		}
	}
	return assn
}

// hasCapableCSType is a stand-in for the spec's "CS-type list" membership
// check; the object model does not carry a separate component CS-type
// catalogue (§3), so every SA-aware or proxied pre-instantiable component in
// the SU is considered capable of any CSI hosted by an SI assigned to that SU.
func hasCapableCSType(comp *cluster.Component, _ string) bool {
	return comp.Category == cluster.CapSAAware || comp.Category == cluster.CapProxiedPreInstantiable
}

func existingCSIAssignment(csi *cluster.CSI, comp cluster.CompHandle) *cluster.CSIAssignment {
	for _, ca := range csi.Assignments {
		if ca.Comp == comp {
			return ca
		}
	}
	return nil
}

// suCompStateChanged implements comp_state_changed(su, comp, kind, new_state)
// (§4.3): the presence/operational aggregation driver.
func (r *Reactor) suCompStateChanged(suH cluster.SUHandle, compH cluster.CompHandle, kind StateChangeKind, pres cluster.PresenceState, oper cluster.OperState) {
	su := r.Graph.SU(suH)
	if suIsBusy(su) {
		r.deferAndArm(su, Event{Kind: EvSuCompStateChanged, SU: suH, Comp: compH, ChangeKind: kind, PresenceVal: pres, OperVal: oper}, func() {
			r.armZeroDelay(func() { r.drainOneDeferred(su) })
		})
		return
	}

	comp := r.Graph.Comp(compH)
	switch kind {
	case ChangePresence:
		comp.Presence = pres
		r.aggregatePresence(su)
	case ChangeOper:
		comp.Oper = oper
		r.aggregateOper(su)
	}
}

// aggregatePresence implements the §4.3 presence-aggregation paragraph.
func (r *Reactor) aggregatePresence(su *cluster.ServiceUnit) {
	level := su.CurInstLevel
	allInstantiated, allDownOrFailed := true, true
	sawLevel := false
	for _, ch := range su.Components {
		comp := r.Graph.Comp(ch)
		if comp.InstantiationLevel != level {
			continue
		}
		sawLevel = true
		if comp.Presence != cluster.PresenceInstantiated {
			allInstantiated = false
		}
		if comp.Presence != cluster.PresenceUninstantiated && comp.Presence != cluster.PresenceTerminationFailed {
			allDownOrFailed = false
		}
	}
	if !sawLevel {
		return
	}

	switch {
	case allInstantiated && su.Presence != cluster.PresenceTerminating:
		next := level + 1
		if hasLevel(r.Graph, su, next) {
			su.CurInstLevel = next
			r.instantiateLevel(su, next)
			return
		}
		su.Presence = cluster.PresenceInstantiated
		r.reportSUStateToSG(su, cluster.ChangePresence)
	case allDownOrFailed && su.Presence == cluster.PresenceTerminating:
		prev := level - 1
		if prev >= 0 {
			su.CurInstLevel = prev
			r.terminateLevel(su, prev)
			return
		}
		su.Presence = worstComponentPresence(r.Graph, su)
		r.reportSUStateToSG(su, cluster.ChangePresence)
	}
}

func (r *Reactor) terminateLevel(su *cluster.ServiceUnit, level int32) {
	for _, ch := range su.Components {
		comp := r.Graph.Comp(ch)
		if comp.InstantiationLevel != level {
			continue
		}
		comp.Presence = cluster.PresenceTerminating
		r.Actuator.Terminate(ch, comp.TerminateCmd, comp.TerminateTmo)
	}
}

func hasLevel(g *cluster.Graph, su *cluster.ServiceUnit, level int32) bool {
	for _, ch := range su.Components {
		if g.Comp(ch).InstantiationLevel == level {
			return true
		}
	}
	return false
}

func worstComponentPresence(g *cluster.Graph, su *cluster.ServiceUnit) cluster.PresenceState {
	worst := cluster.PresenceUninstantiated
	for _, ch := range su.Components {
		if p := g.Comp(ch).Presence; p > worst {
			worst = p
		}
	}
	return worst
}

// aggregateOper implements I2: SU.op = ENABLED iff every Component is
// ENABLED.
func (r *Reactor) aggregateOper(su *cluster.ServiceUnit) {
	enabled := true
	for _, ch := range su.Components {
		if r.Graph.Comp(ch).Oper != cluster.OperEnabled {
			enabled = false
			break
		}
	}
	prev := su.Oper
	if enabled {
		su.Oper = cluster.OperEnabled
	} else {
		su.Oper = cluster.OperDisabled
	}
	if prev != su.Oper {
		r.reportSUStateToSG(su, cluster.ChangeOper)
	}
}

// reportSUStateToSG is the child→parent report step (§2): SG observes SU
// state changes through su_state_changed.
func (r *Reactor) reportSUStateToSG(su *cluster.ServiceUnit, kind StateChangeKind) {
	r.Dispatch(Event{
		Kind: EvSgSuStateChanged, SG: su.SG, SU: su.Handle,
		ChangeKind: kind, PresenceVal: su.Presence, OperVal: su.Oper,
	})
}

// suCompErrorSuspected implements comp_error_suspected(su, comp, recovery)
// (§4.3): the restart escalation ladder.
func (r *Reactor) suCompErrorSuspected(suH cluster.SUHandle, compH cluster.CompHandle, recovery cluster.RecommendedRecovery) {
	su := r.Graph.SU(suH)
	comp := r.Graph.Comp(compH)
	sg := r.Graph.SG(su.SG)

	switch su.RCSM {
	case cluster.IdleLevel0:
		glog.V(2).Infof("amf: su %d rcsm IDLE_LEVEL_0 -> IDLE_LEVEL_1 on comp %d error", suH, compH)
		su.RCSM = cluster.IdleLevel1
		if comp.RestartCount >= sg.CompRestartMax {
			r.suCompErrorSuspected(suH, compH, recovery)
			return
		}
		r.restartComponent(su, comp)
	case cluster.IdleLevel1:
		if comp.RestartCount >= sg.CompRestartMax {
			glog.V(2).Infof("amf: su %d rcsm IDLE_LEVEL_1 -> IDLE_LEVEL_2, delegating to node", suH)
			su.RCSM = cluster.IdleLevel2
			r.Dispatch(Event{Kind: EvNodeCompRestartReq, Node: su.HostingNode, Comp: compH})
		} else {
			r.restartComponent(su, comp)
		}
	case cluster.IdleLevel2:
		r.Dispatch(Event{Kind: EvNodeCompRestartReq, Node: su.HostingNode, Comp: compH})
	default:
		glog.V(3).Infof("amf: su %d busy (rcsm=%s), deferring comp_error_suspected", suH, su.RCSM)
		r.deferAndArm(su, Event{Kind: EvSuCompErrorSuspected, SU: suH, Comp: compH, Recovery: recovery}, func() {
			r.armZeroDelay(func() { r.drainOneDeferred(su) })
		})
	}
}

func (r *Reactor) restartComponent(su *cluster.ServiceUnit, comp *cluster.Component) {
	comp.RestartCount++
	compRestarts.WithLabelValues(comp.Name).Inc()
	comp.Presence = cluster.PresenceRestarting
	r.Actuator.Terminate(comp.Handle, comp.TerminateCmd, comp.TerminateTmo)
	r.Actuator.Instantiate(comp.Handle, comp.InstantiateCmd, comp.InstantiateTmo)
}

// compInstantiateCompleted is the success/failure report of the
// instantiate_cmd script (§4.3). A successful instantiate also enables the
// Component's operational state, which the SU aggregates (I2) before its
// presence is re-evaluated.
func (r *Reactor) compInstantiateCompleted(compH cluster.CompHandle, exitCode int) {
	comp := r.Graph.Comp(compH)
	if exitCode != 0 {
		glog.Warningf("amf: comp %d instantiate exited %d", compH, exitCode)
		comp.Presence = cluster.PresenceInstantiationFailed
		comp.Oper = cluster.OperDisabled
	} else {
		comp.Presence = cluster.PresenceInstantiated
		comp.Oper = cluster.OperEnabled
	}
	su := r.Graph.SU(comp.SU)
	r.aggregateOper(su)
	r.aggregatePresence(su)
}

// compTerminateCompleted runs the cleanup_cmd script once terminate_cmd has
// exited, per the CLC-CLI terminate-then-cleanup lifecycle: terminate asks
// the component to exit, cleanup releases any resources it leaves behind.
func (r *Reactor) compTerminateCompleted(compH cluster.CompHandle) {
	comp := r.Graph.Comp(compH)
	glog.V(3).Infof("amf: comp %d terminate completed, running cleanup", compH)
	r.Actuator.Cleanup(compH, comp.CleanupCmd, comp.CleanupTmo)
}

func (r *Reactor) compCleanupCompleted(compH cluster.CompHandle, exitCode int) {
	comp := r.Graph.Comp(compH)
	glog.V(3).Infof("amf: comp %d cleanup completed, exit=%d", compH, exitCode)
	comp.Presence = cluster.PresenceUninstantiated
	su := r.Graph.SU(comp.SU)
	r.aggregatePresence(su)
}

func (r *Reactor) compInstantiateTmo(compH cluster.CompHandle) {
	comp := r.Graph.Comp(compH)
	comp.Presence = cluster.PresenceInstantiationFailed
	su := r.Graph.SU(comp.SU)
	r.aggregatePresence(su)
}

func (r *Reactor) compCleanupTmo(compH cluster.CompHandle) {
	comp := r.Graph.Comp(compH)
	comp.Presence = cluster.PresenceTerminationFailed
	su := r.Graph.SU(comp.SU)
	r.aggregatePresence(su)
}

// healthcheckTmo / healthcheckConfirm implement the §6.5 healthcheck
// lifecycle; Open Question (d): the duration timer is armed fresh after
// every confirm, per original_source/exec/amfnode.c's actual behavior
// rather than the ambiguous paraphrase in §4.3.
func (r *Reactor) healthcheckTmo(compH cluster.CompHandle, key string, recovery cluster.RecommendedRecovery) {
	comp := r.Graph.Comp(compH)
	hcH, err := r.Graph.FindHCByKey(compH, key)
	if err != nil {
		glog.Warningf("amf: healthcheck_tmo for unknown key %q on comp %d", key, compH)
		return
	}
	hc := r.Graph.HC(hcH)
	comp.ErrorSuspected = true
	r.suCompErrorSuspected(comp.SU, compH, orRecovery(recovery, hc.RecommendedRecovery))
}

func (r *Reactor) healthcheckConfirm(compH cluster.CompHandle, key string) {
	hcH, err := r.Graph.FindHCByKey(compH, key)
	if err != nil {
		return
	}
	hc := r.Graph.HC(hcH)
	if !hc.Active {
		return
	}
	r.armTimeout(hc.MaxDuration, func() {
		r.healthcheckTmo(compH, key, hc.RecommendedRecovery)
	})
}

func orRecovery(r, fallback cluster.RecommendedRecovery) cluster.RecommendedRecovery {
	if r == cluster.RecoveryNoAction {
		return fallback
	}
	return r
}
