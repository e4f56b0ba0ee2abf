// Package params holds network-wide constants that aren't tied to any
// one package's internal state: the well-known bootstrap peer lists a
// fresh node dials when its operator supplies none of its own.
package params

// MainnetBootstrapPeers and TestnetBootstrapPeers are address@host:port
// entries for this network's own operated bootstrap validators, in the
// same format node.BootstrapPeer/cmd/slotnode's --bootstrap flag
// parses. Adapted from the teacher's params/bootnodes.go (itself
// derived from go-ethereum's bootnode list): that file's MainnetBootnodes/
// BaobabBootnodes held kni:// enode URLs for klaytn's Kademlia discovery
// protocol, which this node doesn't run — entries here name this
// protocol's own validators instead, in its own wire address format.
//
// Both lists are intentionally empty placeholders, exactly as the
// teacher's MainnetBootnodes shipped commented out pending real
// addresses: a fresh deployment supplies its own --bootstrap flags
// until this network has durable, known-good bootstrap validators to
// hardcode.
var MainnetBootstrapPeers = []string{}

var TestnetBootstrapPeers = []string{}
