package directory

import "context"

// Member is the slice of the membership directory the scheduler cares
// about: whether the requester exists and is in good standing.
type Member struct {
	ID       string
	Name     string
	Standing string
}

const StandingActive = "active"

// Provider resolves booking requesters against the member directory
// service. A nil Provider disables the lookup (local/dev builds).
type Provider interface {
	GetMember(ctx context.Context, memberID string) (Member, error)
}
