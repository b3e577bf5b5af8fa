package approval

// AssignmentCert is a validator's VRF-backed claim material over a set
// of availability cores. The cryptographic content is opaque to this
// subsystem; only the claimed core bitfield is inspected (for
// sanitization), everything else is handed to the assignment-criteria
// oracle untouched.
type AssignmentCert struct {
	Cores    CoreBitfield `cbor:"1,keyasint"`
	VRFProof []byte       `cbor:"2,keyasint"`
}

// IndirectAssignmentCert anchors an assignment certificate to a relay
// block and the validator that produced it.
type IndirectAssignmentCert struct {
	BlockHash Identifier     `cbor:"1,keyasint"`
	Validator ValidatorIndex `cbor:"2,keyasint"`
	Cert      AssignmentCert `cbor:"3,keyasint"`
}

// Assignment pairs an assignment certificate with the candidate
// bitfield it claims within its block.
type Assignment struct {
	Cert              IndirectAssignmentCert `cbor:"1,keyasint"`
	CandidateBitfield CandidateBitfield      `cbor:"2,keyasint"`
}

// ApprovalVote is a validator's signed verdict that the candidates
// indexed by its bitfield, within the given relay block, are valid.
type ApprovalVote struct {
	BlockHash         Identifier         `cbor:"1,keyasint"`
	CandidateBitfield CandidateBitfield  `cbor:"2,keyasint"`
	Validator         ValidatorIndex     `cbor:"3,keyasint"`
	Signature         ValidatorSignature `cbor:"4,keyasint"`
}
