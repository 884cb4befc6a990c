package models

import "time"

// Credential holds the password hash and the associate-to-member approval
// record for one user. Soft-deleted in lockstep with the User so recovery can
// re-authenticate the original password.
type Credential struct {
	ID           string
	UserID       string
	PasswordHash string
	ApprovedAt   *time.Time // set when an admin promotes associate -> member
	ApprovedBy   *string
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsApproved reports whether the associate->member promotion has been recorded.
func (c *Credential) IsApproved() bool {
	return c.ApprovedAt != nil
}

// Approve stamps the promotion metadata.
func (c *Credential) Approve(approverID string, now time.Time) {
	c.ApprovedAt = &now
	c.ApprovedBy = &approverID
}
