// Package noderepair implements the Open Question (c) resolution: repair_node
// (§4.6) must be swappable for a mockable interface rather than a direct OS
// reboot call.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package noderepair

import (
	"os"
	"os/exec"

	"github.com/golang/glog"
)

// Repairer is injected into the Node FSM so tests never actually reboot a
// machine.
type Repairer interface {
	Repair(nodeName string)
}

// OSRepairer runs the OS reboot command when repairing the local node, the
// release-build behavior of repair_node (§4.6).
type OSRepairer struct{}

func (OSRepairer) Repair(nodeName string) {
	glog.Warningf("noderepair: rebooting local node %s", nodeName)
	cmd := exec.Command("reboot")
	if err := cmd.Run(); err != nil {
		glog.Errorf("noderepair: reboot command failed: %v", err)
		os.Exit(1)
	}
}

// Mock records repair calls for tests instead of touching the OS.
type Mock struct {
	Repaired []string
}

func (m *Mock) Repair(nodeName string) {
	m.Repaired = append(m.Repaired, nodeName)
}
