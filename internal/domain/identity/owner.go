package identity

import (
	"strings"
	"time"

	"github.com/storelink/backend/internal/domain/shared"
)

// Owner represents the application account administering one or more
// tenants. Identity resolution always flows Tenant -> Owner; an Owner is
// never inferred from request signals directly.
type Owner struct {
	shared.BaseEntity
	Email        string
	PasswordHash string
	TrialEndsAt  time.Time
	Subscribed   bool
}

// NewOwner creates a new owner with a trial window starting now.
func NewOwner(email, passwordHash string, trialWindow time.Duration) (*Owner, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, shared.NewDomainError("INVALID_EMAIL", "A valid email address is required")
	}
	if passwordHash == "" {
		return nil, shared.NewDomainError("INVALID_PASSWORD", "Password hash cannot be empty")
	}

	entity := shared.NewBaseEntity()
	return &Owner{
		BaseEntity:   entity,
		Email:        email,
		PasswordHash: passwordHash,
		TrialEndsAt:  entity.CreatedAt.Add(trialWindow),
		Subscribed:   false,
	}, nil
}

// InTrial reports whether the owner's trial window is still open at now.
// The boundary is exclusive: the trial is over at exactly TrialEndsAt.
func (o *Owner) InTrial(now time.Time) bool {
	return now.Before(o.TrialEndsAt)
}

// MarkSubscribed flips the subscribed flag after a confirmed activation.
func (o *Owner) MarkSubscribed() {
	o.Subscribed = true
	o.UpdatedAt = time.Now()
}

// MarkUnsubscribed clears the subscribed flag after cancellation.
func (o *Owner) MarkUnsubscribed() {
	o.Subscribed = false
	o.UpdatedAt = time.Now()
}
