package amf

import (
	"github.com/golang/glog"

	"github.com/amfcore/amf/cluster"
)

// ServiceGroup FSM (ACSM), §4.4.

func sgIsBusy(sg *cluster.ServiceGroup) bool { return sg.ACSM != cluster.ACIdle }

// sgStart implements start(sg, node) (§4.4): instantiate every local SU (all
// SUs if node is cluster.InvalidNode, matching the Application FSM's
// cluster-wide bring-up call with node=None) that is still UNINSTANTIATED.
// Completion is observed through sgSuStateChanged and reported up as
// AppSgStarted once every targeted SU reaches a terminal presence state.
func (r *Reactor) sgStart(sgH cluster.SGHandle, nodeH cluster.NodeHandle) {
	sg := r.Graph.SG(sgH)
	for _, suh := range sg.SUs {
		su := r.Graph.SU(suh)
		if nodeH != cluster.InvalidNode && su.HostingNode != nodeH {
			continue
		}
		if su.Presence == cluster.PresenceUninstantiated {
			r.Instantiate(suh)
		}
	}
	if sgStartComplete(r.Graph, sg, nodeH) {
		r.Dispatch(Event{Kind: EvAppSgStarted, App: sg.App, SG: sgH, Node: nodeH})
	}
}

func sgStartComplete(g *cluster.Graph, sg *cluster.ServiceGroup, nodeH cluster.NodeHandle) bool {
	for _, suh := range sg.SUs {
		su := g.SU(suh)
		if nodeH != cluster.InvalidNode && su.HostingNode != nodeH {
			continue
		}
		if su.Presence == cluster.PresenceInstantiating {
			return false
		}
	}
	return true
}

// sgAssignSi implements assign_si(sg, dep_level) (§4.4): run the N+M
// algorithm; on completion report AppSgAssigned and return the SG to Idle.
func (r *Reactor) sgAssignSi(sgH cluster.SGHandle, level int32) {
	sg := r.Graph.SG(sgH)
	if sgIsBusy(sg) {
		r.deferAndArm(sg, Event{Kind: EvSgAssignSi, SG: sgH, Level: level}, func() {
			r.armZeroDelay(func() { r.drainOneDeferred(sg) })
		})
		return
	}
	sg.ACSM = cluster.ACAssigningActiveWorkload
	r.nplusmAssign(sgH, func() {
		sg.ACSM = cluster.ACIdle
		r.Dispatch(Event{Kind: EvAppSgAssigned, App: sg.App, SG: sgH})
		r.recallSG(sg)
	})
}

// sgSuStateChanged implements su_state_changed (§4.4): during recovery this
// drives steps 3/4 of the sequence; while Idle and the owning Application is
// starting its SGs, a presence change that completes sgStart is reported up
// as AppSgStarted.
func (r *Reactor) sgSuStateChanged(sgH cluster.SGHandle, suH cluster.SUHandle, kind StateChangeKind, pres cluster.PresenceState, oper cluster.OperState) {
	sg := r.Graph.SG(sgH)
	switch sg.ACSM {
	case cluster.ACIdle:
		app := r.Graph.App(sg.App)
		if kind == ChangePresence && app.ACSM == cluster.AppStartingSGs && sgStartComplete(r.Graph, sg, app.NodeToStart) {
			r.Dispatch(Event{Kind: EvAppSgStarted, App: sg.App, SG: sgH, Node: app.NodeToStart})
		}
	case cluster.ACTerminatingSuspected:
		r.recoveryAfterTerminate(sg)
	case cluster.ACDeactivatingDependantWorkload, cluster.ACActivatingStandby, cluster.ACReparingSu:
		// Advanced via the dedicated completion callbacks below; state
		// observation alone doesn't move these steps forward.
	}
}

// sgFailoverSuReq implements failover_su_req(sg, su, node) (§4.4.2):
// scope.sus={su}; scope.sis = every SI su has an assignment to.
func (r *Reactor) sgFailoverSuReq(sgH cluster.SGHandle, suH cluster.SUHandle, nodeH cluster.NodeHandle) {
	sg := r.Graph.SG(sgH)
	if sgIsBusy(sg) {
		r.deferAndArm(sg, Event{Kind: EvSgFailoverSuReq, SG: sgH, SU: suH, Node: nodeH}, func() {
			r.armZeroDelay(func() { r.drainOneDeferred(sg) })
		})
		return
	}
	sis := sisAssignedToSU(r.Graph, suH)
	sg.Recovery = cluster.RecoveryScope{EventType: cluster.RecoveryFailoverSU, SUs: []cluster.SUHandle{suH}, SIs: sis, Comp: cluster.InvalidComp, Node: cluster.InvalidNode}
	glog.V(2).Infof("amf: sg %d recovery scope FailoverSU su=%d", sgH, suH)
	r.beginRecovery(sg)
}

// sgFailoverNodeReq implements failover_node_req(sg, node) (§4.4.2):
// scope.sus = every SU in this SG hosted on node.
func (r *Reactor) sgFailoverNodeReq(sgH cluster.SGHandle, nodeH cluster.NodeHandle) {
	sg := r.Graph.SG(sgH)
	if sgIsBusy(sg) {
		r.deferAndArm(sg, Event{Kind: EvSgFailoverNodeReq, SG: sgH, Node: nodeH}, func() {
			r.armZeroDelay(func() { r.drainOneDeferred(sg) })
		})
		return
	}
	var sus []cluster.SUHandle
	for _, suh := range sg.SUs {
		if r.Graph.SU(suh).HostingNode == nodeH {
			sus = append(sus, suh)
		}
	}
	var sis []cluster.SIHandle
	seen := map[cluster.SIHandle]bool{}
	for _, suh := range sus {
		for _, sih := range sisAssignedToSU(r.Graph, suh) {
			if !seen[sih] {
				seen[sih] = true
				sis = append(sis, sih)
			}
		}
	}
	sg.Recovery = cluster.RecoveryScope{EventType: cluster.RecoveryFailoverNode, SUs: sus, SIs: sis, Comp: cluster.InvalidComp, Node: nodeH}
	glog.V(2).Infof("amf: sg %d recovery scope FailoverNode node=%d", sgH, nodeH)
	r.beginRecovery(sg)
}

func sisAssignedToSU(g *cluster.Graph, suH cluster.SUHandle) []cluster.SIHandle {
	su := g.SU(suH)
	var out []cluster.SIHandle
	for _, sih := range allSIsOfSG(g, su.SG) {
		si := g.SI(sih)
		for _, a := range si.Assignments {
			if a.SU == suH {
				out = append(out, sih)
				break
			}
		}
	}
	return out
}

// beginRecovery runs §4.4.3 steps 2 onward.
func (r *Reactor) beginRecovery(sg *cluster.ServiceGroup) {
	recoveriesActive.WithLabelValues(sg.Name).Set(1)
	anyActive := false
	for _, suh := range sg.Recovery.SUs {
		for _, sih := range sisAssignedToSU(r.Graph, suh) {
			si := r.Graph.SI(sih)
			for _, a := range si.Assignments {
				if a.SU == suh && a.Requested == cluster.HAActive {
					anyActive = true
				}
			}
		}
	}
	if !anyActive {
		r.recoveryTerminateOrSkip(sg)
		return
	}
	sg.ACSM = cluster.ACDeactivatingDependantWorkload
	dependents := dependentSIs(r.Graph, sg.Recovery.SIs)
	if len(dependents) == 0 {
		r.armZeroDelay(func() { r.recoveryTerminateOrSkip(sg) })
		return
	}
	pending := len(dependents)
	for _, sih := range dependents {
		si := r.Graph.SI(sih)
		for _, a := range si.Assignments {
			a := a
			r.SiHaStateAssume(a, func() {
				pending--
				if pending == 0 {
					r.recoveryTerminateOrSkip(sg)
				}
			})
		}
	}
}

func dependentSIs(g *cluster.Graph, scoped []cluster.SIHandle) []cluster.SIHandle {
	inScope := map[cluster.SIHandle]bool{}
	for _, s := range scoped {
		inScope[s] = true
	}
	var out []cluster.SIHandle
	seen := map[cluster.SIHandle]bool{}
	for _, sih := range scoped {
		si := g.SI(sih)
		for _, d := range si.Dependents {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

// recoveryTerminateOrSkip implements step 3: terminate scoped SUs not
// already at a terminal presence, else delete SIAssignments and proceed.
func (r *Reactor) recoveryTerminateOrSkip(sg *cluster.ServiceGroup) {
	needsTerm := false
	for _, suh := range sg.Recovery.SUs {
		su := r.Graph.SU(suh)
		switch su.Presence {
		case cluster.PresenceUninstantiated, cluster.PresenceInstantiationFailed, cluster.PresenceTerminationFailed:
		default:
			needsTerm = true
		}
	}
	if needsTerm {
		sg.ACSM = cluster.ACTerminatingSuspected
		for _, suh := range sg.Recovery.SUs {
			su := r.Graph.SU(suh)
			switch su.Presence {
			case cluster.PresenceUninstantiated, cluster.PresenceInstantiationFailed, cluster.PresenceTerminationFailed:
			default:
				r.Terminate(suh)
			}
		}
		return
	}
	r.deleteScopedAssignments(sg)
	r.recoveryActivateStandbyOrSkip(sg)
}

// recoveryAfterTerminate re-checks step 3's exit condition once SU state
// changes arrive while ACTerminatingSuspected.
func (r *Reactor) recoveryAfterTerminate(sg *cluster.ServiceGroup) {
	for _, suh := range sg.Recovery.SUs {
		su := r.Graph.SU(suh)
		if su.Presence != cluster.PresenceUninstantiated {
			return
		}
	}
	r.deleteScopedAssignments(sg)
	r.recoveryActivateStandbyOrSkip(sg)
}

func (r *Reactor) deleteScopedAssignments(sg *cluster.ServiceGroup) {
	for _, suh := range sg.Recovery.SUs {
		for _, sih := range sisAssignedToSU(r.Graph, suh) {
			si := r.Graph.SI(sih)
			kept := si.Assignments[:0]
			for _, a := range si.Assignments {
				if a.SU == suh {
					continue
				}
				kept = append(kept, a)
			}
			si.Assignments = kept
			for _, csih := range si.CSIs {
				r.CsiDeleteAssignments(csih, suh)
			}
		}
	}
}

// recoveryActivateStandbyOrSkip implements step 4: if any scoped SI has a
// STANDBY assignment outside the scope, activate it; else jump to
// AssigningStandbyToSpare directly.
func (r *Reactor) recoveryActivateStandbyOrSkip(sg *cluster.ServiceGroup) {
	scopedSUs := map[cluster.SUHandle]bool{}
	for _, s := range sg.Recovery.SUs {
		scopedSUs[s] = true
	}
	var toActivate []*cluster.SIAssignment
	for _, sih := range sg.Recovery.SIs {
		si := r.Graph.SI(sih)
		for _, a := range si.Assignments {
			if !scopedSUs[a.SU] && a.Requested == cluster.HAStandby {
				toActivate = append(toActivate, a)
				break
			}
		}
	}
	if len(toActivate) == 0 {
		r.recoveryRepair(sg)
		return
	}
	sg.ACSM = cluster.ACActivatingStandby
	pending := len(toActivate)
	for _, a := range toActivate {
		a.Requested = cluster.HAActive
		a := a
		r.SiHaStateAssume(a, func() {
			pending--
			if pending == 0 {
				r.recoveryRepair(sg)
			}
		})
	}
}

// recoveryRepair implements steps 5-6: AssigningStandbyToSpare then
// ReparingSu, instantiating scoped SUs until pref_inservice_SUs is met,
// skipping SUs hosted on a DISABLED node.
func (r *Reactor) recoveryRepair(sg *cluster.ServiceGroup) {
	sg.ACSM = cluster.ACAssigningStandbyToSpare
	sg.ACSM = cluster.ACReparingSu
	instantiated := 0
	for _, suh := range sg.SUs {
		if r.Graph.SU(suh).Presence == cluster.PresenceInstantiated {
			instantiated++
		}
	}
	for _, suh := range sg.Recovery.SUs {
		if uint32(instantiated) >= sg.PrefInserviceSUs {
			break
		}
		su := r.Graph.SU(suh)
		node := r.Graph.Node(su.HostingNode)
		if node.Oper != cluster.OperEnabled {
			continue
		}
		if su.Presence == cluster.PresenceUninstantiated {
			r.Instantiate(suh)
			instantiated++
		}
	}
	r.returnToIdle(sg)
}

// returnToIdle implements step 7 (§4.4.3, P6): zero the recovery scope and
// announce completion to the owning Application.
func (r *Reactor) returnToIdle(sg *cluster.ServiceGroup) {
	recoveredNode := sg.Recovery.Node
	sg.Recovery.Reset()
	sg.ACSM = cluster.ACIdle
	recoveriesActive.WithLabelValues(sg.Name).Set(0)
	r.Dispatch(Event{Kind: EvAppSgAssigned, App: sg.App, SG: sg.Handle})
	r.recallSG(sg)
	if recoveredNode != cluster.InvalidNode {
		r.checkNodeRecoveryComplete(recoveredNode)
	}
}

func (r *Reactor) recallSG(sg *cluster.ServiceGroup) {
	if len(sg.DeferredEvents) == 0 {
		return
	}
	r.armZeroDelay(func() { r.drainOneDeferred(sg) })
}
