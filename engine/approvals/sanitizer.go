package approvals

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/relaynet/approvaldist/model/approval"
)

// checkBitfield rejects bitfields that are empty, larger than the
// protocol cap, or not in canonical form (highest set bit must be the
// declared last bit).
func checkBitfield(b approval.Bitfield) error {
	if b.Len() == 0 {
		return fmt.Errorf("empty bitfield")
	}
	if b.Len() > approval.MaxBitfieldSize {
		return fmt.Errorf("bitfield length %d exceeds cap %d", b.Len(), approval.MaxBitfieldSize)
	}
	if !b.WellFormed() {
		return fmt.Errorf("bitfield of length %d without its last bit set", b.Len())
	}
	return nil
}

// sanitizeAssignments vets every structural field of an inbound
// assignment batch before any of it reaches protocol state. Bad items
// are dropped from the batch individually; the survivors are returned
// for import. violations is the number of reputation charges owed:
// one per rejected item, or a single one for a batch exceeding the
// wire limit, which is dropped whole. All collected errors are
// returned so the log shows the full shape of a bad batch.
func sanitizeAssignments(batch *approval.AssignmentsV1) (accepted []approval.Assignment, violations int, err error) {
	if len(batch.Assignments) > approval.MaxAssignmentBatch {
		return nil, 1, fmt.Errorf("batch of %d assignments exceeds limit %d", len(batch.Assignments), approval.MaxAssignmentBatch)
	}
	var result *multierror.Error
	accepted = make([]approval.Assignment, 0, len(batch.Assignments))
	for i := range batch.Assignments {
		assignment := batch.Assignments[i]
		candidatesErr := checkBitfield(assignment.CandidateBitfield)
		coresErr := checkBitfield(assignment.Cert.Cert.Cores)
		if candidatesErr == nil && coresErr == nil {
			accepted = append(accepted, assignment)
			continue
		}
		violations++
		if candidatesErr != nil {
			result = multierror.Append(result, fmt.Errorf("assignment %d claimed candidates: %w", i, candidatesErr))
		}
		if coresErr != nil {
			result = multierror.Append(result, fmt.Errorf("assignment %d certificate cores: %w", i, coresErr))
		}
	}
	return accepted, violations, result.ErrorOrNil()
}

// sanitizeApprovals vets an inbound approval batch, dropping bad items
// individually like sanitizeAssignments does.
func sanitizeApprovals(batch *approval.ApprovalsV1) (accepted []approval.ApprovalVote, violations int, err error) {
	if len(batch.Approvals) > approval.MaxApprovalBatch {
		return nil, 1, fmt.Errorf("batch of %d approvals exceeds limit %d", len(batch.Approvals), approval.MaxApprovalBatch)
	}
	var result *multierror.Error
	accepted = make([]approval.ApprovalVote, 0, len(batch.Approvals))
	for i := range batch.Approvals {
		vote := batch.Approvals[i]
		if checkErr := checkBitfield(vote.CandidateBitfield); checkErr != nil {
			violations++
			result = multierror.Append(result, fmt.Errorf("approval %d candidates: %w", i, checkErr))
			continue
		}
		accepted = append(accepted, vote)
	}
	return accepted, violations, result.ErrorOrNil()
}
