package approval

// ValidatorIndex identifies a validator within a session.
type ValidatorIndex uint32

// CandidateIndex identifies a candidate within a relay block.
type CandidateIndex uint32

// CoreIndex identifies an availability core.
type CoreIndex uint32

// GroupIndex identifies a backing group within a session.
type GroupIndex uint32

// SessionIndex identifies a session of the relay chain.
type SessionIndex uint32

// BlockNumber is the height of a relay block.
type BlockNumber uint64

// Slot is the relay-chain slot a block was produced in.
type Slot uint64

// Tranche is a discrete delay slice staggering when assignments become
// valid. It bounds how early an assignment may legitimately arrive.
type Tranche uint32

// VRFStory is the per-block relay VRF output that assignment
// certificates are evaluated against.
type VRFStory [32]byte

// ValidatorSignature is an opaque signature produced by a validator's
// approval-voting key. Verification is delegated to the signature
// oracle; this subsystem only routes it.
type ValidatorSignature [64]byte

// ProtocolVersion is the validation-protocol version a peer negotiated
// on connect. Peers on versions we do not speak are tracked but never
// sent to.
type ProtocolVersion uint32

// ValidationProtocolV1 is the only version this implementation speaks.
const ValidationProtocolV1 ProtocolVersion = 1

// CandidateMeta describes one candidate included in a relay block.
type CandidateMeta struct {
	Hash  Identifier
	Core  CoreIndex
	Group GroupIndex
}

// BlockApprovalMeta is the per-block metadata delivered with a
// new-blocks notification. It is everything this subsystem needs to
// know about a relay block to gossip votes for it.
type BlockApprovalMeta struct {
	Hash       Identifier
	Number     BlockNumber
	ParentHash Identifier
	Candidates []CandidateMeta
	Slot       Slot
	Session    SessionIndex
	VRFStory   VRFStory
}

// SessionInfo is the session data consumed from the session-info
// provider. Only the fields this subsystem reads are modeled.
type SessionInfo struct {
	ValidatorCount     uint32
	SlotDurationMillis uint64
	// Groups maps each backing group to its validator members,
	// indexed by GroupIndex.
	Groups [][]ValidatorIndex
}

// View is a peer's (or our own) announced chain view: the current
// fork heads plus the highest finalized block number.
type View struct {
	Heads     []Identifier
	Finalized BlockNumber
}

// ContainsHead reports whether the view lists the given block as a head.
func (v View) ContainsHead(hash Identifier) bool {
	for _, h := range v.Heads {
		if h == hash {
			return true
		}
	}
	return false
}
