package topology

import (
	"github.com/rs/zerolog"

	"github.com/relaynet/approvaldist/model/approval"
)

type sessionEntry struct {
	topology *SessionGridTopology // nil while pending
	refs     int
}

// SessionTopologies tracks the grid topology of every session with at
// least one live block, reference-counted so a session's topology can
// be forgotten once the last block referencing it is pruned. Topology
// information may arrive after blocks of its session do; until then
// lookups return nil and routing stays pending.
type SessionTopologies struct {
	log      zerolog.Logger
	sessions map[approval.SessionIndex]*sessionEntry
}

func NewSessionTopologies(log zerolog.Logger) *SessionTopologies {
	return &SessionTopologies{
		log:      log.With().Str("component", "session_topologies").Logger(),
		sessions: make(map[approval.SessionIndex]*sessionEntry),
	}
}

// Insert stores the topology for its session. A replacement for an
// already-known session overwrites the previous topology; reference
// counts are unaffected.
func (s *SessionTopologies) Insert(topology *SessionGridTopology) {
	session := topology.Session()
	entry, ok := s.sessions[session]
	if !ok {
		entry = &sessionEntry{}
		s.sessions[session] = entry
	}
	entry.topology = topology
	s.log.Debug().
		Uint32("session", uint32(session)).
		Int("validators", topology.ValidatorCount()).
		Msg("session topology stored")
}

// Get returns the topology of the session, or nil while it is still
// pending or after it was forgotten.
func (s *SessionTopologies) Get(session approval.SessionIndex) *SessionGridTopology {
	entry, ok := s.sessions[session]
	if !ok {
		return nil
	}
	return entry.topology
}

// IncRef notes one more live block referencing the session.
func (s *SessionTopologies) IncRef(session approval.SessionIndex) {
	entry, ok := s.sessions[session]
	if !ok {
		entry = &sessionEntry{}
		s.sessions[session] = entry
	}
	entry.refs++
}

// DecRef notes one fewer live block referencing the session. When the
// count reaches zero the session's topology is forgotten.
func (s *SessionTopologies) DecRef(session approval.SessionIndex) {
	entry, ok := s.sessions[session]
	if !ok {
		s.log.Warn().Uint32("session", uint32(session)).Msg("unreferencing unknown session")
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.sessions, session)
	}
}

// RefCount returns the number of live blocks referencing the session.
func (s *SessionTopologies) RefCount(session approval.SessionIndex) int {
	entry, ok := s.sessions[session]
	if !ok {
		return 0
	}
	return entry.refs
}
