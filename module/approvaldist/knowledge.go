package approvaldist

import (
	"github.com/relaynet/approvaldist/model/approval"
)

// Knowledge records which message subjects a party is aware of, at
// assignment- or approval-level granularity. Per subject it is a
// two-state lattice with one legal upward transition
// (assignment -> approval); any other transition is a no-op, which
// keeps Insert idempotent.
type Knowledge struct {
	known map[approval.SubjectKey]approval.MessageKind
}

func NewKnowledge() Knowledge {
	return Knowledge{known: make(map[approval.SubjectKey]approval.MessageKind)}
}

// Contains reports whether the subject is known at the given kind,
// counting subsumption: a known approval implies the assignment.
func (k Knowledge) Contains(subject approval.MessageSubject, kind approval.MessageKind) bool {
	existing, ok := k.known[subject.Key()]
	return ok && existing.Subsumes(kind)
}

// insertOne records a single subject at the given kind and reports
// whether new information was added. Downgrades are rejected as
// no-ops.
func (k Knowledge) insertOne(subject approval.MessageSubject, kind approval.MessageKind) bool {
	key := subject.Key()
	existing, ok := k.known[key]
	if ok && existing.Subsumes(kind) {
		return false
	}
	k.known[key] = kind
	return true
}

// Insert records the subject at the given kind and reports whether new
// information was added.
//
// An assignment subject claiming more than one candidate is
// additionally recorded under one single-candidate assignment subject
// per claimed candidate, so a later single-candidate message can be
// matched against the assignment knowledge learned from a wider claim.
// The operation reports success only if every sub-insert also added
// new information, so a partially-known multi-candidate subject never
// counts as fresh. Approval inserts are never decomposed: a vote on
// a set of candidates says nothing about votes on its subsets.
func (k Knowledge) Insert(subject approval.MessageSubject, kind approval.MessageKind) bool {
	added := k.insertOne(subject, kind)
	if kind == approval.KindAssignment && subject.Candidates.Count() > 1 {
		for _, sub := range subject.Decompose() {
			added = k.insertOne(sub, kind) && added
		}
	}
	return added
}

// Len returns the number of distinct subjects known.
func (k Knowledge) Len() int {
	return len(k.known)
}

// PeerKnowledge is the two-sided knowledge record for one peer: what
// we sent it and what it sent us. The peer knows a subject iff either
// side records it.
type PeerKnowledge struct {
	Sent     Knowledge
	Received Knowledge
}

func NewPeerKnowledge() *PeerKnowledge {
	return &PeerKnowledge{
		Sent:     NewKnowledge(),
		Received: NewKnowledge(),
	}
}

// Contains reports whether the peer knows the subject at the given
// kind through either direction.
func (pk *PeerKnowledge) Contains(subject approval.MessageSubject, kind approval.MessageKind) bool {
	return pk.Sent.Contains(subject, kind) || pk.Received.Contains(subject, kind)
}
