package campaign

import "clonebo/internal/model"

// State is a phase of the optimization loop.
type State string

const (
	StateInitializing    State = "initializing"
	StateProposing       State = "proposing"
	StateValidating      State = "validating"
	StateScoring         State = "scoring"
	StateSelecting       State = "selecting"
	StateEvaluating      State = "evaluating"
	StateUpdating        State = "updating"
	StateConverged       State = "converged"
	StateBudgetExhausted State = "budget_exhausted"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateBudgetExhausted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Status maps a state to the persisted campaign status.
func (s State) Status() model.CampaignStatus {
	switch s {
	case StateConverged:
		return model.StatusConverged
	case StateBudgetExhausted:
		return model.StatusBudgetExhausted
	case StateFailed:
		return model.StatusFailed
	case StateCancelled:
		return model.StatusCancelled
	default:
		return model.StatusRunning
	}
}
