package store

import "github.com/memberhub/memberhub/services/scheduling-service/internal/model"

// Appointment lifecycle actions.
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

var transitionMap = map[string][]string{
	ActionApprove:  {model.StatusPending},
	ActionReject:   {model.StatusPending},
	ActionComplete: {model.StatusApproved},
	ActionCancel:   {model.StatusPending, model.StatusApproved},
}

var resultStatus = map[string]string{
	ActionApprove:  model.StatusApproved,
	ActionReject:   model.StatusRejected,
	ActionComplete: model.StatusCompleted,
	ActionCancel:   model.StatusCancelled,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// NextStatus returns the status an action leads to, or "" for an unknown
// action.
func NextStatus(action string) string {
	return resultStatus[action]
}
