package cluster

import "strings"

// DN separator and RDN prefixes, following the corosync AMF "safX=..." form
// (§3, GLOSSARY).
const (
	dnSep = ","

	rdnNode = "safNode"
	rdnApp  = "safApp"
	rdnSG   = "safSg"
	rdnSU   = "safSu"
	rdnComp = "safComp"
	rdnHC   = "safHealthcheck"
	rdnSI   = "safSi"
	rdnCSI  = "safCsi"
)

func joinRDN(rdn, name string) string { return rdn + "=" + name }

// dnOf builds a DN by prepending an RDN to a parent DN, innermost first, the
// way the spec's dn_make(entity) does (§4.1). The cluster singleton's DN is
// empty.
func dnOf(rdn, name, parentDN string) string {
	self := joinRDN(rdn, name)
	if parentDN == "" {
		return self
	}
	return self + dnSep + parentDN
}

// SplitDN returns the ordered RDN components of a DN, innermost first.
func SplitDN(dn string) []string {
	if dn == "" {
		return nil
	}
	return strings.Split(dn, dnSep)
}
