package cluster

// Exported "no entity" sentinels, callers outside this package need these to
// build events/back-pointers that reference "no node"/"no app" (e.g. the
// Application.node_to_start back-pointer when no node is driving a start,
// §4.5: "report up ... to Cluster if node_to_start==None").
const (
	InvalidNode NodeHandle = invalidHandle
	InvalidApp  AppHandle  = invalidHandle
	InvalidSG   SGHandle   = invalidHandle
	InvalidSU   SUHandle   = invalidHandle
	InvalidComp CompHandle = invalidHandle
	InvalidHC   HCHandle   = invalidHandle
	InvalidSI   SIHandle   = invalidHandle
	InvalidCSI  CSIHandle  = invalidHandle
)
