package amf

import (
	"encoding/binary"

	"github.com/amfcore/amf/cluster"
	"github.com/amfcore/amf/transport"
)

// decodeTransportMessage maps a transport.Message's wire tag (§6.3) onto the
// reactor's internal Event envelope (§6.1). Most tags correspond 1:1 to an
// Event kind; SYNC_START/SYNC_REQUEST are transport-layer handshake
// messages with no core-visible Event, handled entirely by the transport
// package itself. TagComponentRegister/TagComponentErrorReport/
// TagComponentInstantiate/TagResponse are component-initiated IPC calls
// already modeled by client.Call — a cluster member forwards them over the
// mcast substrate only when the owning component lives on a different node
// than the one driving that Component's FSM, out of scope here (§1: no
// concrete substrate), so those four tags carry no core-visible Event of
// their own.
func decodeTransportMessage(msg transport.Message) (Event, bool) {
	switch msg.Tag {
	case transport.TagSyncData:
		return Event{Kind: EvSyncDataChunk, Payload: msg.Payload}, true
	case transport.TagClusterStartTmo:
		return Event{Kind: EvClusterStartupTmo}, true
	case transport.TagComponentInstantiateTmo:
		comp, ok := decodeCompHandle(msg.Payload)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EvCompInstantiateTmo, Comp: comp}, true
	case transport.TagComponentCleanupTmo:
		comp, ok := decodeCompHandle(msg.Payload)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EvCompCleanupTmo, Comp: comp}, true
	case transport.TagClcCleanupCompleted:
		comp, exitCode, ok := decodeCompExitCode(msg.Payload)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EvCompCleanupCompleted, Comp: comp, ExitCode: exitCode}, true
	case transport.TagHealthcheckTmo:
		comp, key, recovery, ok := decodeHealthcheckTmo(msg.Payload)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EvHealthcheckTmo, Comp: comp, HCKey: key, Recovery: recovery}, true
	default:
		return Event{}, false
	}
}

// The four payload encodings below are fixed-width/length-prefixed binary,
// not msgp: each carries at most a handle, an int, and a short key string,
// too small to justify the full Graph-oriented msgp machinery in the wire
// package.

func decodeCompHandle(payload []byte) (cluster.CompHandle, bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return cluster.CompHandle(binary.BigEndian.Uint32(payload)), true
}

func decodeCompExitCode(payload []byte) (cluster.CompHandle, int, bool) {
	if len(payload) < 8 {
		return 0, 0, false
	}
	comp := cluster.CompHandle(binary.BigEndian.Uint32(payload))
	exitCode := int(int32(binary.BigEndian.Uint32(payload[4:])))
	return comp, exitCode, true
}

func decodeHealthcheckTmo(payload []byte) (cluster.CompHandle, string, cluster.RecommendedRecovery, bool) {
	if len(payload) < 6 {
		return 0, "", 0, false
	}
	comp := cluster.CompHandle(binary.BigEndian.Uint32(payload))
	keyLen := int(binary.BigEndian.Uint16(payload[4:6]))
	if len(payload) < 6+keyLen+1 {
		return 0, "", 0, false
	}
	key := string(payload[6 : 6+keyLen])
	recovery := cluster.RecommendedRecovery(payload[6+keyLen])
	return comp, key, recovery, true
}
