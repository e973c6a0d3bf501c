// Package escrow is the multi-party escrow case engine. A case locks a
// fixed amount between two or more parties under an authorization model,
// moves through an approval or dispute lifecycle, and settles by an
// admin-executed release or refund after resolution.
package escrow

import (
	"fmt"

	"github.com/keelhq/keel/internal/types"
)

// InitMsg configures the component. Admin defaults to the instantiating
// caller and the approval threshold defaults to 2 when omitted.
type InitMsg struct {
	Admin                string  `json:"admin,omitempty"`
	DefaultDenom         string  `json:"default_denom"`
	MinApprovalThreshold *uint32 `json:"min_approval_threshold,omitempty"`
}

// ExecuteMsg is the command vocabulary, one variant per invocation.
type ExecuteMsg struct {
	OpenCase *OpenCaseMsg `json:"open_case,omitempty"`
	Approve  *ApproveMsg  `json:"approve,omitempty"`
	Dispute  *DisputeMsg  `json:"dispute,omitempty"`
	Resolve  *ResolveMsg  `json:"resolve,omitempty"`
	Release  *ReleaseMsg  `json:"release,omitempty"`
	Refund   *RefundMsg   `json:"refund,omitempty"`
}

// OpenCaseMsg opens a case holding amount between parties. Attached funds
// must equal amount exactly.
type OpenCaseMsg struct {
	Parties  []types.AccountID `json:"parties"`
	Amount   types.Coin        `json:"amount"`
	Model    Model             `json:"model"`
	ExpiryTS *int64            `json:"expiry_ts,omitempty"`
	Remark   string            `json:"remark,omitempty"`
}

// ApproveMsg records the caller's approval on an open case.
type ApproveMsg struct {
	CaseID uint64 `json:"case_id"`
}

// DisputeMsg moves an open or approved case into dispute.
type DisputeMsg struct {
	CaseID uint64 `json:"case_id"`
	Reason string `json:"reason,omitempty"`
}

// ResolveMsg records the settlement decision on a disputed case.
type ResolveMsg struct {
	CaseID   uint64     `json:"case_id"`
	Decision Resolution `json:"decision"`
}

// ReleaseMsg pays out a share of the case amount to a recipient.
// ShareBps defaults to 10000 (the full amount) when omitted.
type ReleaseMsg struct {
	CaseID   uint64          `json:"case_id"`
	To       types.AccountID `json:"to"`
	ShareBps *uint32         `json:"share_bps,omitempty"`
}

// RefundMsg returns the full case amount to the first party.
type RefundMsg struct {
	CaseID uint64 `json:"case_id"`
}

// Model is the authorization model, a tagged union with exactly one
// variant set.
type Model struct {
	MultiSig   *MultiSigModel   `json:"multi_sig,omitempty"`
	TimeTiered *TimeTieredModel `json:"time_tiered,omitempty"`
	Milestones *MilestonesModel `json:"milestones,omitempty"`
}

// MultiSigModel approves when threshold distinct parties have approved.
type MultiSigModel struct {
	Threshold uint32 `json:"threshold"`
}

// TimeTieredModel carries staged approval requirements. Only the first
// stage gates approval; later stages are recorded bookkeeping.
type TimeTieredModel struct {
	Stages []TimeStage `json:"stages"`
}

// TimeStage is one tier of a TimeTiered model.
type TimeStage struct {
	Duration          int64  `json:"duration"`
	RequiredApprovals uint32 `json:"required_approvals"`
}

// MilestonesModel carries per-step approval requirements. As with
// TimeTiered, only the first step gates approval.
type MilestonesModel struct {
	Steps []Milestone `json:"steps"`
}

// Milestone is one step of a Milestones model.
type Milestone struct {
	Description       string `json:"description"`
	RequiredApprovals uint32 `json:"required_approvals"`
	Completed         bool   `json:"completed"`
}

// Validate checks that exactly one variant is set and that staged models
// carry at least one gate.
func (m Model) Validate() error {
	set := 0
	if m.MultiSig != nil {
		set++
	}
	if m.TimeTiered != nil {
		set++
		if len(m.TimeTiered.Stages) == 0 {
			return fmt.Errorf("time_tiered model needs at least one stage")
		}
	}
	if m.Milestones != nil {
		set++
		if len(m.Milestones.Steps) == 0 {
			return fmt.Errorf("milestones model needs at least one step")
		}
	}
	if set != 1 {
		return fmt.Errorf("model must have exactly one variant, got %d", set)
	}
	return nil
}

// RequiredApprovals returns the approval count that moves the case to
// Approved: the MultiSig threshold, or the first stage or step's
// requirement.
func (m Model) RequiredApprovals() uint32 {
	switch {
	case m.MultiSig != nil:
		return m.MultiSig.Threshold
	case m.TimeTiered != nil:
		return m.TimeTiered.Stages[0].RequiredApprovals
	case m.Milestones != nil:
		return m.Milestones.Steps[0].RequiredApprovals
	}
	return 0
}

// Describe renders the model for event attributes.
func (m Model) Describe() string {
	switch {
	case m.MultiSig != nil:
		return fmt.Sprintf("MultiSig(%d)", m.MultiSig.Threshold)
	case m.TimeTiered != nil:
		return fmt.Sprintf("TimeTiered(%d)", len(m.TimeTiered.Stages))
	case m.Milestones != nil:
		return fmt.Sprintf("Milestones(%d)", len(m.Milestones.Steps))
	}
	return "Unknown"
}

// Resolution is a settlement decision, a tagged union with exactly one
// variant set.
type Resolution struct {
	Release *ReleaseDecision `json:"release,omitempty"`
	Refund  *RefundDecision  `json:"refund,omitempty"`
	Split   *SplitDecision   `json:"split,omitempty"`
}

// ReleaseDecision records that a share of the amount goes to one account.
type ReleaseDecision struct {
	To       types.AccountID `json:"to"`
	ShareBps uint32          `json:"share_bps"`
}

// RefundDecision records that the amount goes back to the first party.
type RefundDecision struct{}

// SplitDecision records a multi-way division in basis points.
type SplitDecision struct {
	Shares []SplitShare `json:"shares"`
}

// SplitShare is one leg of a split decision.
type SplitShare struct {
	Account  types.AccountID `json:"account"`
	ShareBps uint32          `json:"share_bps"`
}

// Validate checks that exactly one variant is set and that every share is
// within basis-point range.
func (r Resolution) Validate() error {
	set := 0
	if r.Release != nil {
		set++
		if err := types.ValidateAccount(string(r.Release.To)); err != nil {
			return fmt.Errorf("release decision: %w", err)
		}
		if err := types.ValidateBps(r.Release.ShareBps, types.BasisPoints); err != nil {
			return fmt.Errorf("release decision: %w", err)
		}
	}
	if r.Refund != nil {
		set++
	}
	if r.Split != nil {
		set++
		if len(r.Split.Shares) == 0 {
			return fmt.Errorf("split decision needs at least one share")
		}
		for _, s := range r.Split.Shares {
			if err := types.ValidateAccount(string(s.Account)); err != nil {
				return fmt.Errorf("split decision: %w", err)
			}
			if err := types.ValidateBps(s.ShareBps, types.BasisPoints); err != nil {
				return fmt.Errorf("split decision: %w", err)
			}
		}
	}
	if set != 1 {
		return fmt.Errorf("decision must have exactly one variant, got %d", set)
	}
	return nil
}

// Describe renders the decision for event attributes.
func (r Resolution) Describe() string {
	switch {
	case r.Release != nil:
		return fmt.Sprintf("Release(%s, %d bps)", r.Release.To, r.Release.ShareBps)
	case r.Refund != nil:
		return "Refund"
	case r.Split != nil:
		return fmt.Sprintf("Split(%d parts)", len(r.Split.Shares))
	}
	return "Unknown"
}

// QueryMsg is the read-only query vocabulary.
type QueryMsg struct {
	Config        *ConfigQuery        `json:"config,omitempty"`
	GetCase       *GetCaseQuery       `json:"get_case,omitempty"`
	ListCases     *ListCasesQuery     `json:"list_cases,omitempty"`
	ListByParty   *ListByPartyQuery   `json:"list_by_party,omitempty"`
	GetReputation *GetReputationQuery `json:"get_reputation,omitempty"`
}

// ConfigQuery returns the component configuration.
type ConfigQuery struct{}

// GetCaseQuery returns one case by id.
type GetCaseQuery struct {
	ID uint64 `json:"id"`
}

// ListCasesQuery pages all cases in id order. StartAfter is exclusive.
type ListCasesQuery struct {
	StartAfter *uint64 `json:"start_after,omitempty"`
	Limit      uint32  `json:"limit,omitempty"`
}

// ListByPartyQuery pages the cases a party belongs to, in id order.
type ListByPartyQuery struct {
	Party      types.AccountID `json:"party"`
	StartAfter *uint64         `json:"start_after,omitempty"`
	Limit      uint32          `json:"limit,omitempty"`
}

// GetReputationQuery returns an account's reputation score, 0 when the
// account has none recorded.
type GetReputationQuery struct {
	Address types.AccountID `json:"address"`
}
