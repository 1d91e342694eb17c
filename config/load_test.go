package config

import (
	"strings"
	"testing"

	"github.com/amfcore/amf/cluster"
)

const sample = `
# comment line, ignored
node N1 {
  admin: UNLOCKED
  auto_repair: true
  su_failover_max: 3
  ctrl_net_hostname: 10.0.0.1
  ctrl_net_port: 7000
}

application App1 {
  servicegroup SG1 {
    pref_active: 2
    pref_standby: 1
    serviceunit SU1 {
      rank: 0
      hosting_node: N1
      component C1 {
        category: SA_AWARE
        instantiate_cmd: /bin/sleep 1
        healthcheck HC1 {
          period: 1s
          max_duration: 10s
        }
      }
    }
  }
  serviceinstance SI1 {
    protecting_sg: SG1
    pref_active: 1
    csi CSI1 {
      cs_type: TypeA
      attr_foo: bar
    }
  }
}
`

func TestLoadReaderBuildsGraph(t *testing.T) {
	g, err := LoadReader(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}

	nodeH, err := g.FindNode("N1")
	if err != nil {
		t.Fatalf("FindNode: %v", err)
	}
	node := g.Node(nodeH)
	if node.Admin != cluster.AdminUnlocked {
		t.Errorf("node admin = %v, want UNLOCKED", node.Admin)
	}
	if !node.AutoRepair {
		t.Errorf("node auto_repair = false, want true")
	}
	if node.SUFailoverMax != 3 {
		t.Errorf("node su_failover_max = %d, want 3", node.SUFailoverMax)
	}
	if node.CtrlNet.Hostname != "10.0.0.1" || node.CtrlNet.Port != "7000" {
		t.Errorf("node ctrl net = %+v", node.CtrlNet)
	}

	appH, err := g.FindApp("App1")
	if err != nil {
		t.Fatalf("FindApp: %v", err)
	}
	sgH, err := g.FindSG(appH, "SG1")
	if err != nil {
		t.Fatalf("FindSG: %v", err)
	}
	sg := g.SG(sgH)
	if sg.PrefActiveSUs != 2 || sg.PrefStandbySUs != 1 {
		t.Errorf("sg pref = %d/%d, want 2/1", sg.PrefActiveSUs, sg.PrefStandbySUs)
	}

	suH, err := g.FindSU(sgH, "SU1")
	if err != nil {
		t.Fatalf("FindSU: %v", err)
	}
	su := g.SU(suH)
	if su.HostingNode != nodeH {
		t.Errorf("su hosting_node = %d, want %d", su.HostingNode, nodeH)
	}

	compH, err := g.FindComp(suH, "C1")
	if err != nil {
		t.Fatalf("FindComp: %v", err)
	}
	comp := g.Comp(compH)
	if comp.Category != cluster.CapSAAware {
		t.Errorf("comp category = %v, want CapSAAware", comp.Category)
	}
	if len(comp.InstantiateCmd) != 2 || comp.InstantiateCmd[0] != "/bin/sleep" {
		t.Errorf("comp instantiate_cmd = %v", comp.InstantiateCmd)
	}

	siH, err := g.FindSI(appH, "SI1")
	if err != nil {
		t.Fatalf("FindSI: %v", err)
	}
	si := g.SI(siH)
	if si.ProtectingSG != sgH {
		t.Errorf("si protecting_sg = %d, want %d", si.ProtectingSG, sgH)
	}

	csiH, err := g.FindCSI(siH, "CSI1")
	if err != nil {
		t.Fatalf("FindCSI: %v", err)
	}
	csi := g.CSI(csiH)
	if csi.CSType != "TypeA" {
		t.Errorf("csi cs_type = %q, want TypeA", csi.CSType)
	}
	if csi.Attrs["foo"] != "bar" {
		t.Errorf("csi attrs = %v, want foo=bar", csi.Attrs)
	}

	// Cluster FSM must remain UNINSTANTIATED: §6.2 forbids FSM events at
	// load time.
	if g.Cluster.ACSM != cluster.ClusterUninstantiated {
		t.Errorf("cluster ACSM = %v, want UNINSTANTIATED (load must not fire FSM events)", g.Cluster.ACSM)
	}
}

func TestLoadReaderRejectsUnclosedSection(t *testing.T) {
	_, err := LoadReader(strings.NewReader("node N1 {\n  admin: UNLOCKED\n"))
	if err == nil {
		t.Fatal("expected error for unclosed section")
	}
}

func TestLoadReaderIgnoresUnknownKey(t *testing.T) {
	g, err := LoadReader(strings.NewReader("node N1 {\n  bogus_key: 1\n}\n"))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if _, err := g.FindNode("N1"); err != nil {
		t.Fatalf("FindNode: %v", err)
	}
}
