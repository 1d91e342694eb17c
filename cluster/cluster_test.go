package cluster

import "testing"

func buildSmallGraph(t *testing.T) (*Graph, NodeHandle, AppHandle, SGHandle, SUHandle, CompHandle, SIHandle, CSIHandle) {
	t.Helper()
	g := NewGraph()
	n := g.NewNode("N1")
	a := g.NewApplication("A")
	sg := g.NewServiceGroup(a, "G")
	su := g.NewServiceUnit(sg, "S")
	g.SU(su).HostingNode = n
	comp := g.NewComponent(su, "C")
	si := g.NewServiceInstance(a, sg, "I")
	csi := g.NewCSI(si, "X", "default")
	return g, n, a, sg, su, comp, si, csi
}

func TestDNConstruction(t *testing.T) {
	g, n, a, sg, su, comp, si, csi := buildSmallGraph(t)

	if got, want := g.NodeDN(n), "safNode=N1"; got != want {
		t.Errorf("NodeDN = %q, want %q", got, want)
	}
	if got, want := g.AppDN(a), "safApp=A"; got != want {
		t.Errorf("AppDN = %q, want %q", got, want)
	}
	if got, want := g.SGDN(sg), "safSg=G,safApp=A"; got != want {
		t.Errorf("SGDN = %q, want %q", got, want)
	}
	if got, want := g.SUDN(su), "safSu=S,safSg=G,safApp=A"; got != want {
		t.Errorf("SUDN = %q, want %q", got, want)
	}
	if got, want := g.CompDN(comp), "safComp=C,safSu=S,safSg=G,safApp=A"; got != want {
		t.Errorf("CompDN = %q, want %q", got, want)
	}
	if got, want := g.SIDN(si), "safSi=I,safApp=A"; got != want {
		t.Errorf("SIDN = %q, want %q", got, want)
	}
	if got, want := g.CSIDN(csi), "safCsi=X,safSi=I,safApp=A"; got != want {
		t.Errorf("CSIDN = %q, want %q", got, want)
	}
}

func TestFindByDNRoundTrip(t *testing.T) {
	g, _, _, _, su, comp, _, csi := buildSmallGraph(t)

	ref, err := g.FindByDN(g.SUDN(su))
	if err != nil {
		t.Fatalf("FindByDN(SU): %v", err)
	}
	if ref.Kind != KindSU || ref.SU != su {
		t.Errorf("FindByDN(SU) = %+v, want SU %d", ref, su)
	}

	ref, err = g.FindByDN(g.CompDN(comp))
	if err != nil {
		t.Fatalf("FindByDN(Comp): %v", err)
	}
	if ref.Kind != KindComp || ref.Comp != comp {
		t.Errorf("FindByDN(Comp) = %+v, want Comp %d", ref, comp)
	}

	ref, err = g.FindByDN(g.CSIDN(csi))
	if err != nil {
		t.Fatalf("FindByDN(CSI): %v", err)
	}
	if ref.Kind != KindCSI || ref.CSI != csi {
		t.Errorf("FindByDN(CSI) = %+v, want CSI %d", ref, csi)
	}
}

func TestFindByDNUnknownRDN(t *testing.T) {
	g := NewGraph()
	if _, err := g.FindByDN("safBogus=x"); err == nil {
		t.Fatal("FindByDN: expected error for unknown RDN, got nil")
	}
}

func TestFindNotFound(t *testing.T) {
	g := NewGraph()
	g.NewNode("N1")
	if _, err := g.FindNode("N2"); err != ErrNotFound {
		t.Errorf("FindNode(missing) err = %v, want ErrNotFound", err)
	}
}

// TestFindNodeByID exercises the uint32 node-id bridge used by transport and
// discovery membership events (§6.3).
func TestFindNodeByID(t *testing.T) {
	g := NewGraph()
	n1 := g.NewNode("N1")
	g.Node(n1).NodeID = 7

	h, ok := g.FindNodeByID(7)
	if !ok || h != n1 {
		t.Fatalf("FindNodeByID(7) = (%d, %v), want (%d, true)", h, ok, n1)
	}
	if _, ok := g.FindNodeByID(99); ok {
		t.Fatal("FindNodeByID(99): expected not found")
	}
}

// TestNewSIAssignmentID checks that each assignment gets a distinct, non-empty
// runtime id (§1 domain stack: teris-io/shortid), not config-loaded state.
func TestNewSIAssignmentID(t *testing.T) {
	a1 := NewSIAssignment(0, 0, HAActive)
	a2 := NewSIAssignment(0, 0, HAActive)
	if a1.ID == "" || a2.ID == "" {
		t.Fatal("NewSIAssignment: expected non-empty ID")
	}
	if a1.ID == a2.ID {
		t.Fatalf("NewSIAssignment: expected distinct IDs, got %q twice", a1.ID)
	}
	if a1.Current != HAActive || a1.Requested != HAActive {
		t.Errorf("NewSIAssignment: Current/Requested = %v/%v, want both ACTIVE", a1.Current, a1.Requested)
	}
}

// TestNewCSIAssignmentCurrentVsRequested checks the constructor keeps the
// distinction between where an assignment currently is and what it has been
// asked to move to.
func TestNewCSIAssignmentCurrentVsRequested(t *testing.T) {
	parent := NewSIAssignment(0, 0, HAStandby)
	csia := NewCSIAssignment(0, 0, parent.Current, HAActive, parent)
	if csia.Current != HAStandby {
		t.Errorf("Current = %v, want STANDBY (carried over from parent)", csia.Current)
	}
	if csia.Requested != HAActive {
		t.Errorf("Requested = %v, want ACTIVE (the new target)", csia.Requested)
	}
	if csia.Parent != parent {
		t.Error("Parent not linked to the SIAssignment it was derived from")
	}
}

// TestRecoveryScopeReset exercises P6: after a recovery scope completes,
// sg.recovery_scope is empty (null sus[]/sis[]).
func TestRecoveryScopeReset(t *testing.T) {
	var rs RecoveryScope
	rs.Reset()
	if !rs.IsEmpty() {
		t.Fatal("RecoveryScope.Reset: expected IsEmpty true on a fresh scope")
	}

	rs.EventType = RecoveryFailoverSU
	rs.SUs = []SUHandle{1, 2}
	rs.SIs = []SIHandle{3}
	if rs.IsEmpty() {
		t.Fatal("RecoveryScope: expected IsEmpty false once populated")
	}

	rs.Reset()
	if !rs.IsEmpty() {
		t.Fatal("RecoveryScope.Reset: expected IsEmpty true after reset")
	}
	if rs.Comp != invalidHandle || rs.Node != invalidHandle {
		t.Errorf("RecoveryScope.Reset: Comp/Node = %v/%v, want invalidHandle", rs.Comp, rs.Node)
	}
}

// TestDigestStable checks Digest is a pure function of its input, the
// property the arena index cache relies on.
func TestDigestStable(t *testing.T) {
	d1 := Digest("safSu=S,safSg=G,safApp=A")
	d2 := Digest("safSu=S,safSg=G,safApp=A")
	if d1 != d2 {
		t.Fatal("Digest: expected identical hash for identical input")
	}
	if d1 == Digest("safSu=T,safSg=G,safApp=A") {
		t.Fatal("Digest: expected different hash for different DN")
	}
}
