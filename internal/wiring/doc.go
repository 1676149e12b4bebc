// Package wiring builds the value-propagation graph of one machine from the
// resolved configurations of its placed blocks.
//
// Every input resolved to type "wire" names a producer block and one of its
// output connectors. Build rejects references that cannot be honored:
// unknown producers, unknown outputs, kind mismatches and cycles. The graph
// performs no implicit cycle breaking.
//
// Removed producers are tombstones: a wire that points at one stays valid
// and its consumer reads the edge's fallback kind default instead.
package wiring
