package cluster

// DeferredEntry is a full event tuple (enum variant + payload) parked on an
// entity's deferred FIFO while that entity is mid-transition (§5, I6). The
// field set mirrors the amf package's Event envelope; it lives here (rather
// than in amf) so Application/ServiceGroup/ServiceUnit can own a FIFO of them
// without the object model importing the reactor package.
type DeferredEntry struct {
	Kind uint8

	Node NodeHandle
	App  AppHandle
	SG   SGHandle
	SU   SUHandle
	Comp CompHandle
	Level int32

	ChangeKind  uint8
	PresenceVal PresenceState
	OperVal     OperState
	Recovery    RecommendedRecovery

	HCKey    string
	ExitCode int
	Payload  []byte
}
