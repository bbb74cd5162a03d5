package scan

import (
	"memhound/process"
)

// WritePair is one address/value pair of a batch modification.
type WritePair struct {
	Addr  process.Address
	Value process.Value
}

// BatchModify writes every pair once through the target's write path. Each
// pair's outcome is independent; the returned slice is parallel to pairs.
func BatchModify(target process.Target, pairs []WritePair, mode process.AccessMode) []error {
	reqs := make([]process.WriteRequest, len(pairs))
	for i, p := range pairs {
		reqs[i] = process.WriteRequest{Addr: p.Addr, Data: p.Value.Raw}
	}
	return target.WriteBatch(reqs, mode)
}
