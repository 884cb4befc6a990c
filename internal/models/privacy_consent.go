package models

import "time"

// PrivacyConsent is an append-only record of a user accepting a privacy
// policy version at signup. Pruned only by the withdrawn-account sweep.
type PrivacyConsent struct {
	ID            string
	UserID        string
	PolicyVersion string
	ConsentedAt   time.Time
}
