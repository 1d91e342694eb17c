package amf

import (
	"github.com/amfcore/amf/cluster"
)

// reduction is the Step-1 branch outcome of the N+M algorithm (§4.4.1).
type reduction struct {
	active, standby, spare uint32
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// reduce implements Step 1's branch table, evaluated VI→I (first match
// wins), exactly as listed in §4.4.1.
func reduce(sg *cluster.ServiceGroup, inservice, numSI uint32) reduction {
	activeNeeded := ceilDiv(numSI, sg.MaxActiveSIsPerSU)
	standbyNeeded := ceilDiv(numSI, sg.MaxStandbySIsPerSU)
	P, S := sg.PrefActiveSUs, sg.PrefStandbySUs

	switch {
	case inservice < activeNeeded:
		return reduction{active: inservice}
	case inservice < activeNeeded+standbyNeeded:
		return reduction{active: activeNeeded, standby: inservice - activeNeeded}
	case inservice < P+standbyNeeded:
		return reduction{active: inservice - standbyNeeded, standby: standbyNeeded}
	case inservice < P+S:
		return reduction{active: P, standby: inservice - P}
	case inservice == P+S:
		return reduction{active: P, standby: S}
	default:
		return reduction{active: P, standby: S, spare: inservice - P - S}
	}
}

// orderedSUs returns sg's SUs sorted by rank, the "walk SUs in order" basis
// for Step 2/3.
func orderedSUs(g *cluster.Graph, sg *cluster.ServiceGroup) []cluster.SUHandle {
	sus := append([]cluster.SUHandle(nil), sg.SUs...)
	for i := 1; i < len(sus); i++ {
		for j := i; j > 0 && g.SU(sus[j-1]).Rank > g.SU(sus[j]).Rank; j-- {
			sus[j-1], sus[j] = sus[j], sus[j-1]
		}
	}
	return sus
}

func suInService(su *cluster.ServiceUnit) bool {
	return su.Admin == cluster.AdminUnlocked && su.Oper == cluster.OperEnabled &&
		su.Presence == cluster.PresenceInstantiated
}

func suHasStandby(g *cluster.Graph, su *cluster.ServiceUnit) bool {
	for _, sih := range allSIsOfSG(g, su.SG) {
		si := g.SI(sih)
		for _, a := range si.Assignments {
			if a.SU == su.Handle && a.Requested == cluster.HAStandby {
				return true
			}
		}
	}
	return false
}

func suHasActive(g *cluster.Graph, su *cluster.ServiceUnit) bool {
	for _, sih := range allSIsOfSG(g, su.SG) {
		si := g.SI(sih)
		for _, a := range si.Assignments {
			if a.SU == su.Handle && a.Requested == cluster.HAActive {
				return true
			}
		}
	}
	return false
}

func siHasRequestedAssignment(g *cluster.Graph, si *cluster.ServiceInstance, state cluster.HAState) bool {
	for _, a := range si.Assignments {
		if a.Requested == state {
			return true
		}
	}
	return false
}

// allSIsOfSG returns the SIs this SG protects, found by scanning every
// Application's SI list for ProtectingSG == sg (§3: "SI -> protecting-SG by
// DN").
func allSIsOfSG(g *cluster.Graph, sgH cluster.SGHandle) []cluster.SIHandle {
	sg := g.SG(sgH)
	app := g.App(sg.App)
	var out []cluster.SIHandle
	for _, sih := range app.SIs {
		if g.SI(sih).ProtectingSG == sgH {
			out = append(out, sih)
		}
	}
	return out
}

// nplusmAssign runs the full Step 1-4 N+M algorithm for sg (§4.4.1),
// committing new/changed assignments through SiHaStateAssume. It takes no
// dependency level: every SI the SG protects is considered in one pass, and
// the level sgAssignSi receives is not consulted.
func (r *Reactor) nplusmAssign(sgH cluster.SGHandle, cb func()) {
	g := r.Graph
	sg := g.SG(sgH)
	sus := orderedSUs(g, sg)

	var inservice uint32
	for _, suh := range sus {
		if suInService(g.SU(suh)) {
			inservice++
		}
	}
	sis := allSIsOfSG(g, sgH)
	red := reduce(sg, inservice, uint32(len(sis)))

	var changed []*cluster.SIAssignment

	// Step 2: allocate active.
	remainingSUs := red.active
	remainingSIs := uint32(len(sis))
	for _, suh := range sus {
		if remainingSUs == 0 {
			break
		}
		su := g.SU(suh)
		if !suInService(su) || suHasStandby(g, su) {
			continue
		}
		quota := ceilDiv(remainingSIs, remainingSUs)
		if quota > sg.MaxActiveSIsPerSU {
			quota = sg.MaxActiveSIsPerSU
		}
		var given uint32
		for _, sih := range sis {
			if given >= quota {
				break
			}
			si := g.SI(sih)
			if siHasRequestedAssignment(g, si, cluster.HAActive) {
				continue
			}
			a := r.AssignSi(suh, sih, cluster.HAActive)
			changed = append(changed, a)
			given++
		}
		remainingSUs--
		if remainingSIs >= given {
			remainingSIs -= given
		}
	}

	// Step 3: allocate standby.
	remainingSUs = red.standby
	remainingSIs = uint32(len(sis))
	for _, suh := range sus {
		if remainingSUs == 0 {
			break
		}
		su := g.SU(suh)
		if !suInService(su) || suHasActive(g, su) {
			continue
		}
		quota := ceilDiv(remainingSIs, remainingSUs)
		if quota > sg.MaxStandbySIsPerSU {
			quota = sg.MaxStandbySIsPerSU
		}
		var given uint32
		for _, sih := range sis {
			if given >= quota {
				break
			}
			si := g.SI(sih)
			if siHasRequestedAssignment(g, si, cluster.HAStandby) {
				continue
			}
			a := r.AssignSi(suh, sih, cluster.HAStandby)
			changed = append(changed, a)
			given++
		}
		remainingSUs--
		if remainingSIs >= given {
			remainingSIs -= given
		}
	}

	// Step 4: commit.
	if len(changed) == 0 {
		r.armZeroDelay(func() {
			if cb != nil {
				cb()
			}
		})
		return
	}
	pending := len(changed)
	for _, a := range changed {
		a := a
		r.SiHaStateAssume(a, func() {
			pending--
			if pending == 0 && cb != nil {
				cb()
			}
		})
	}
}
