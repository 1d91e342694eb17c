package amf

import (
	"testing"
	"time"

	"github.com/amfcore/amf/cluster"
	"github.com/amfcore/amf/noderepair"
)

// mockActuator completes every CLC-CLI call on the next reactor tick instead
// of spawning a real process, the same substitution ScriptActuator's own
// Results channel makes possible, just without os/exec in the loop.
type mockActuator struct {
	r *Reactor

	// instantiateExit, if set, overrides the exit code Instantiate reports
	// for a given Component, letting a test drive an instantiation failure.
	instantiateExit map[cluster.CompHandle]int
}

func (m *mockActuator) Instantiate(comp cluster.CompHandle, args []string, tmo time.Duration) {
	m.r.Post(Event{Kind: EvCompInstantiateCompleted, Comp: comp, ExitCode: m.instantiateExit[comp]})
}

func (m *mockActuator) Terminate(comp cluster.CompHandle, args []string, tmo time.Duration) {
	m.r.Post(Event{Kind: EvCompTerminateCompleted, Comp: comp})
}

func (m *mockActuator) Cleanup(comp cluster.CompHandle, args []string, tmo time.Duration) {
	m.r.Post(Event{Kind: EvCompCleanupCompleted, Comp: comp})
}

func (m *mockActuator) SetHAState(comp cluster.CompHandle, csi cluster.CSIHandle, state cluster.HAState, confirm func()) {
	if confirm != nil {
		confirm()
	}
}

// testReactor builds the S1 topology (§8) — a single node/app/sg/su/comp/si/
// csi — and a Reactor whose goroutine is never started. pump steps its
// internal select loop synchronously from the calling (test) goroutine
// instead, so every assertion observes a quiescent Graph with no concurrent
// writer.
func testReactor(t *testing.T) (*Reactor, *cluster.Graph, cluster.NodeHandle, cluster.AppHandle, cluster.SGHandle, cluster.SUHandle, cluster.CompHandle, cluster.SIHandle) {
	t.Helper()
	g := cluster.NewGraph()

	n := g.NewNode("N1")
	g.Node(n).NodeID = 1

	a := g.NewApplication("A")
	sg := g.NewServiceGroup(a, "G")
	su := g.NewServiceUnit(sg, "S")
	g.SU(su).HostingNode = n
	comp := g.NewComponent(su, "C")
	c := g.Comp(comp)
	c.InstantiateCmd = []string{"/bin/true"}
	c.InstantiateTmo = time.Second
	c.TerminateCmd = []string{"/bin/true"}
	c.TerminateTmo = time.Second
	c.CleanupCmd = []string{"/bin/true"}
	c.CleanupTmo = time.Second

	si := g.NewServiceInstance(a, sg, "I")
	g.NewCSI(si, "X", "default")

	r := NewReactor(g, nil, nil, nil, &noderepair.Mock{})
	r.Actuator = &mockActuator{r: r, instantiateExit: map[cluster.CompHandle]int{}}

	return r, g, n, a, sg, su, comp, si
}

// pump steps the same four channels Run's select loop serves — events,
// fired timers, actuator results and client calls — until cond reports
// true, stopping only the calling goroutine, never spawning one, so
// there is exactly one writer of Graph state throughout a test.
func pump(t *testing.T, r *Reactor, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; !cond(); i++ {
		if i > 100000 {
			t.Fatal("pump: exceeded step budget without condition becoming true")
		}
		select {
		case ev := <-r.events:
			r.Dispatch(ev)
		case h := <-r.Timers.Fired():
			r.Timers.run(h)
		case res := <-r.results:
			r.handleActuatorResult(res)
		case call := <-r.calls:
			r.handleClientCall(call)
		case <-deadline:
			t.Fatal("pump: condition never became true before deadline")
		}
	}
}

// TestS1SingleNodeStartup drives scenario S1 (§8): a single sync_ready on an
// UNINSTANTIATED cluster reaches Cluster=STARTED, App=WORKLOAD_ASSIGNED,
// SG=Idle, SU.Presence=INSTANTIATED and the SI's sole assignment ACTIVE.
func TestS1SingleNodeStartup(t *testing.T) {
	r, g, n, a, sg, su, _, si := testReactor(t)

	r.Post(Event{Kind: EvNodeSyncReady, Node: n})

	pump(t, r, func() bool {
		return g.Cluster.ACSM == cluster.ClusterStarted &&
			g.App(a).ACSM == cluster.AppWorkloadAssigned &&
			g.SG(sg).ACSM == cluster.ACIdle &&
			g.SU(su).Presence == cluster.PresenceInstantiated &&
			len(g.SI(si).Assignments) == 1
	})

	assn := g.SI(si).Assignments[0]
	if assn.Current != cluster.HAActive || assn.Requested != cluster.HAActive {
		t.Errorf("SIAssignment HA state = %v/%v, want ACTIVE/ACTIVE", assn.Current, assn.Requested)
	}
}

func startup(t *testing.T, r *Reactor, g *cluster.Graph, n cluster.NodeHandle, a cluster.AppHandle, su cluster.SUHandle) {
	t.Helper()
	r.Post(Event{Kind: EvNodeSyncReady, Node: n})
	pump(t, r, func() bool {
		return g.App(a).ACSM == cluster.AppWorkloadAssigned && g.SU(su).Presence == cluster.PresenceInstantiated
	})
}

// TestS2ComponentRestartBelowThreshold exercises the SU.RCSM restart ladder
// (§4.3) staying within IDLE_LEVEL_1: a single comp_error_suspected below
// sg.CompRestartMax restarts the Component in place and never delegates to
// the Node FSM.
func TestS2ComponentRestartBelowThreshold(t *testing.T) {
	r, g, n, a, sg, su, comp, _ := testReactor(t)
	g.SG(sg).CompRestartMax = 3
	startup(t, r, g, n, a, su)

	r.Post(Event{Kind: EvSuCompErrorSuspected, SU: su, Comp: comp, Recovery: cluster.RecoveryComponentRestart})

	pump(t, r, func() bool { return g.SU(su).RCSM == cluster.IdleLevel1 })
	if g.Comp(comp).RestartCount != 1 {
		t.Errorf("Component.RestartCount = %d, want 1", g.Comp(comp).RestartCount)
	}
	if g.Node(n).ACSM != cluster.NodeIdleL0 {
		t.Errorf("Node.ACSM = %v, want IDLE_L0 (restart stayed local to the SU)", g.Node(n).ACSM)
	}
}

// TestS3ComponentRestartEscalatesToNode exercises the rest of the ladder
// (§4.3, §4.6): with CompRestartMax and SURestartMax already exhausted,
// comp_error_suspected runs straight through IDLE_LEVEL_1 to the Node FSM's
// comp_restart_req, which escalates one notch further to sg.failover_su_req
// since the node itself has no restart budget left either.
func TestS3ComponentRestartEscalatesToNode(t *testing.T) {
	r, g, n, a, sg, su, comp, _ := testReactor(t)
	g.SG(sg).CompRestartMax = 0
	g.SG(sg).SURestartMax = 0
	g.SG(sg).SUFailoverMax = 5
	startup(t, r, g, n, a, su)

	r.Post(Event{Kind: EvSuCompErrorSuspected, SU: su, Comp: comp, Recovery: cluster.RecoveryComponentRestart})

	pump(t, r, func() bool { return g.SU(su).SUFailoverCount == 1 })
	if g.SU(su).RCSM != cluster.IdleLevel2 {
		t.Errorf("SU.RCSM = %v, want IDLE_LEVEL_2 (delegated to node)", g.SU(su).RCSM)
	}
	if g.Node(n).ACSM != cluster.NodeIdleL3 {
		t.Errorf("Node.ACSM = %v, want IDLE_L3 (node restart budget also exhausted)", g.Node(n).ACSM)
	}

	// The failover_su_req this escalation triggers runs §4.4.3's recovery
	// sequence to completion: the SU is torn down and repaired back up.
	pump(t, r, func() bool { return g.SG(sg).ACSM == cluster.ACIdle })
	pump(t, r, func() bool { return g.SU(su).Presence == cluster.PresenceInstantiated })
}

// TestS4SpontaneousNodeLeave exercises scenario S4 (§8, §4.6): a node_leave
// on an IDLE node marks its SUs/Components abruptly gone, fails its SGs
// over, and — once every scoped SG returns to Idle — settles in
// LEAVING_SPONTANEOUSLY_WAITING_FOR_NODE_TO_JOIN without ever calling
// Repair (node_leave is a spontaneous departure; only the graceful
// failover path ends in repair).
func TestS4SpontaneousNodeLeave(t *testing.T) {
	r, g, n, a, sg, su, _, _ := testReactor(t)
	startup(t, r, g, n, a, su)

	r.Post(Event{Kind: EvNodeLeave, Node: n})

	pump(t, r, func() bool {
		return g.Node(n).ACSM == cluster.NodeLeavingSpontaneouslyWaitingForNodeToJoin
	})
	pump(t, r, func() bool { return g.SG(sg).ACSM == cluster.ACIdle })

	mock := r.Repairer.(*noderepair.Mock)
	if len(mock.Repaired) != 0 {
		t.Errorf("Repairer.Repair called %d times on a graceful leave, want 0", len(mock.Repaired))
	}
}

// TestS6DeferredEventRedispatch exercises scenario S6 (§8, §5): an
// assign_si arriving while the SG is already busy is deferred rather than
// dropped, and the zero-delay recall timer drains (re-dispatches) it once
// posted, the "uniform recall_deferred_events entry point" Design Notes §9
// describes.
func TestS6DeferredEventRedispatch(t *testing.T) {
	r, g, n, a, sg, su, _, _ := testReactor(t)
	startup(t, r, g, n, a, su)

	g.SG(sg).ACSM = cluster.ACAssigningActiveWorkload // force busy
	r.Post(Event{Kind: EvSgAssignSi, SG: sg, Level: 0})
	pump(t, r, func() bool { return len(g.SG(sg).DeferredEvents) == 1 })

	g.SG(sg).ACSM = cluster.ACIdle // let the recall through on its next tick
	pump(t, r, func() bool {
		return len(g.SG(sg).DeferredEvents) == 0 && g.SG(sg).ACSM == cluster.ACIdle
	})
}
