package wire

import (
	"testing"
	"time"

	"github.com/amfcore/amf/cluster"
)

// buildGraph constructs a small but non-trivial model exercising every
// entity kind, so EncodeGraph/DecodeGraph round-trips every encode/decode
// pair in wire.go.
func buildGraph() *cluster.Graph {
	g := cluster.NewGraph()
	g.Cluster.ACSM = cluster.ClusterStarted

	n := g.NewNode("N1")
	node := g.Node(n)
	node.NodeID = 7
	node.CLMName = "clm1"
	node.CtrlNet = cluster.NetInfo{Hostname: "10.0.0.1", Port: "5000"}

	a := g.NewApplication("A")
	g.App(a).ACSM = cluster.AppWorkloadAssigned

	sg := g.NewServiceGroup(a, "G")
	g.SG(sg).ACSM = cluster.ACIdle

	su := g.NewServiceUnit(sg, "S")
	g.SU(su).HostingNode = n
	g.SU(su).Presence = cluster.PresenceInstantiated

	comp := g.NewComponent(su, "C")
	c := g.Comp(comp)
	c.InstantiateCmd = []string{"/bin/start.sh", "--foo"}
	c.InstantiateTmo = 2 * time.Second
	c.TerminateCmd = []string{"/bin/stop.sh"}
	c.TerminateTmo = 3 * time.Second
	c.CleanupCmd = []string{"/bin/cleanup.sh"}
	c.CleanupTmo = time.Second
	c.Presence = cluster.PresenceInstantiated

	g.NewHealthcheck(comp, "hc1")

	si := g.NewServiceInstance(a, sg, "I")
	assn := cluster.NewSIAssignment(si, su, cluster.HAActive)
	g.SI(si).Assignments = append(g.SI(si).Assignments, assn)

	csi := g.NewCSI(si, "X", "default")
	g.CSI(csi).Attrs["key"] = "value"
	csiAssn := cluster.NewCSIAssignment(csi, comp, assn.Current, cluster.HAActive, assn)
	g.CSI(csi).Assignments = append(g.CSI(csi).Assignments, csiAssn)

	csi2 := g.NewCSI(si, "Y", "default")
	g.CSI(csi2).DependsOn = append(g.CSI(csi2).DependsOn, csi)

	si2 := g.NewServiceInstance(a, sg, "J")
	g.SI(si2).DependsOn = append(g.SI(si2).DependsOn, si)
	g.SI(si).Dependents = append(g.SI(si).Dependents, si2)

	return g
}

func TestEncodeDecodeGraphRoundTrip(t *testing.T) {
	g := buildGraph()

	data, err := EncodeGraph(g)
	if err != nil {
		t.Fatalf("EncodeGraph: %v", err)
	}

	g2, err := DecodeGraph(data)
	if err != nil {
		t.Fatalf("DecodeGraph: %v", err)
	}

	if g2.Cluster.ACSM != g.Cluster.ACSM {
		t.Errorf("Cluster.ACSM = %v, want %v", g2.Cluster.ACSM, g.Cluster.ACSM)
	}

	n1, err := g2.FindNode("N1")
	if err != nil {
		t.Fatalf("FindNode(N1) on decoded graph: %v", err)
	}
	node := g2.Node(n1)
	if node.NodeID != 7 || node.CLMName != "clm1" || node.CtrlNet.Hostname != "10.0.0.1" {
		t.Errorf("decoded node = %+v, want NodeID=7 CLMName=clm1 Hostname=10.0.0.1", node)
	}

	appH, err := g2.FindApp("A")
	if err != nil {
		t.Fatalf("FindApp(A): %v", err)
	}
	if g2.App(appH).ACSM != cluster.AppWorkloadAssigned {
		t.Errorf("decoded App.ACSM = %v, want WORKLOAD_ASSIGNED", g2.App(appH).ACSM)
	}

	sgH, err := g2.FindSG(appH, "G")
	if err != nil {
		t.Fatalf("FindSG(G): %v", err)
	}
	suH, err := g2.FindSU(sgH, "S")
	if err != nil {
		t.Fatalf("FindSU(S): %v", err)
	}
	su := g2.SU(suH)
	if su.Presence != cluster.PresenceInstantiated {
		t.Errorf("decoded SU.Presence = %v, want INSTANTIATED", su.Presence)
	}
	if su.HostingNode != n1 {
		t.Errorf("decoded SU.HostingNode = %d, want %d (resolved by name)", su.HostingNode, n1)
	}

	compH, err := g2.FindComp(suH, "C")
	if err != nil {
		t.Fatalf("FindComp(C): %v", err)
	}
	comp := g2.Comp(compH)
	if len(comp.InstantiateCmd) != 2 || comp.InstantiateCmd[0] != "/bin/start.sh" {
		t.Errorf("decoded Component.InstantiateCmd = %v, want [/bin/start.sh --foo]", comp.InstantiateCmd)
	}
	if comp.InstantiateTmo != 2*time.Second {
		t.Errorf("decoded InstantiateTmo = %v, want 2s", comp.InstantiateTmo)
	}

	siH, err := g2.FindSI(appH, "I")
	if err != nil {
		t.Fatalf("FindSI(I): %v", err)
	}
	si := g2.SI(siH)
	if len(si.Assignments) != 1 {
		t.Fatalf("decoded SI.Assignments = %d entries, want 1", len(si.Assignments))
	}
	decodedAssn := si.Assignments[0]
	origAppH, _ := g.FindApp("A")
	origSiH, _ := g.FindSI(origAppH, "I")
	origAssn := g.SI(origSiH).Assignments[0]
	if decodedAssn.ID != origAssn.ID {
		t.Errorf("SIAssignment.ID = %q, want %q (P4: ID must round-trip)", decodedAssn.ID, origAssn.ID)
	}
	if decodedAssn.Current != cluster.HAActive || decodedAssn.Requested != cluster.HAActive {
		t.Errorf("decoded SIAssignment HA state = %v/%v, want ACTIVE/ACTIVE", decodedAssn.Current, decodedAssn.Requested)
	}
	if decodedAssn.SU != suH {
		t.Errorf("decoded SIAssignment.SU = %d, want %d (resolved by DN)", decodedAssn.SU, suH)
	}

	csiH, err := g2.FindCSI(siH, "X")
	if err != nil {
		t.Fatalf("FindCSI(X): %v", err)
	}
	csi := g2.CSI(csiH)
	if csi.Attrs["key"] != "value" {
		t.Errorf("decoded CSI.Attrs[key] = %q, want %q", csi.Attrs["key"], "value")
	}
	if len(csi.Assignments) != 1 {
		t.Fatalf("decoded CSI.Assignments = %d entries, want 1", len(csi.Assignments))
	}
	if csi.Assignments[0].Comp != compH {
		t.Errorf("decoded CSIAssignment.Comp = %d, want %d (resolved by DN)", csi.Assignments[0].Comp, compH)
	}

	csi2H, err := g2.FindCSI(siH, "Y")
	if err != nil {
		t.Fatalf("FindCSI(Y): %v", err)
	}
	if deps := g2.CSI(csi2H).DependsOn; len(deps) != 1 || deps[0] != csiH {
		t.Errorf("decoded CSI Y.DependsOn = %v, want [%d] (P4: depends_on must round-trip)", deps, csiH)
	}

	siJH, err := g2.FindSI(appH, "J")
	if err != nil {
		t.Fatalf("FindSI(J): %v", err)
	}
	if deps := g2.SI(siJH).DependsOn; len(deps) != 1 || deps[0] != siH {
		t.Errorf("decoded SI J.DependsOn = %v, want [%d] (P4: depends_on must round-trip)", deps, siH)
	}
	if dependents := si.Dependents; len(dependents) != 1 || dependents[0] != siJH {
		t.Errorf("decoded SI I.Dependents = %v, want [%d] (P4: dependents must round-trip)", dependents, siJH)
	}
}

func TestDecodeGraphRejectsBadSignature(t *testing.T) {
	if _, err := DecodeGraph([]byte("not a valid sync payload")); err == nil {
		t.Fatal("DecodeGraph: expected error on malformed input, got nil")
	}
}

func TestEncodeGraphEmpty(t *testing.T) {
	g := cluster.NewGraph()
	data, err := EncodeGraph(g)
	if err != nil {
		t.Fatalf("EncodeGraph(empty): %v", err)
	}
	g2, err := DecodeGraph(data)
	if err != nil {
		t.Fatalf("DecodeGraph(empty): %v", err)
	}
	if len(g2.AllNodes()) != 0 || len(g2.AllApps()) != 0 {
		t.Errorf("decoded empty graph has nodes=%d apps=%d, want 0/0", len(g2.AllNodes()), len(g2.AllApps()))
	}
}
