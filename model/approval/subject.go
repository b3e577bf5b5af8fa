package approval

// MessageKind distinguishes the two vote classes moving through the
// gossip layer. The kinds form a two-state lattice: knowing an approval
// for a subject implies knowing its assignment, never the reverse.
type MessageKind uint8

const (
	KindAssignment MessageKind = iota + 1
	KindApproval
)

func (k MessageKind) String() string {
	switch k {
	case KindAssignment:
		return "assignment"
	case KindApproval:
		return "approval"
	default:
		return "unknown"
	}
}

// Subsumes reports whether knowledge at kind k implies knowledge at
// kind other for the same subject.
func (k MessageKind) Subsumes(other MessageKind) bool {
	return k == other || (k == KindApproval && other == KindAssignment)
}

// MessageSubject is the identity of a vote for knowledge-tracking
// purposes: which validator said something about which candidates of
// which block. Two subjects are equal iff all three fields match.
type MessageSubject struct {
	Block      Identifier
	Candidates CandidateBitfield
	Validator  ValidatorIndex
}

// SubjectKey is the comparable form of a MessageSubject, usable as a
// map key.
type SubjectKey struct {
	Block      Identifier
	Candidates string
	Validator  ValidatorIndex
}

// Key returns the comparable form of the subject.
func (s MessageSubject) Key() SubjectKey {
	return SubjectKey{
		Block:      s.Block,
		Candidates: s.Candidates.Key(),
		Validator:  s.Validator,
	}
}

// Decompose returns one single-candidate subject per claimed candidate.
// A multi-candidate assignment is tracked under its own subject and
// each decomposed subject, so a later single-candidate approval can be
// matched against knowledge learned from the wider certificate.
// Subjects claiming a single candidate decompose to themselves.
func (s MessageSubject) Decompose() []MessageSubject {
	indices := s.Candidates.Indices()
	if len(indices) <= 1 {
		return []MessageSubject{s}
	}
	out := make([]MessageSubject, 0, len(indices))
	for _, i := range indices {
		out = append(out, MessageSubject{
			Block:      s.Block,
			Candidates: BitfieldFromIndices(i),
			Validator:  s.Validator,
		})
	}
	return out
}
