package store

import "time"

// Contact is a CRM directory entry resolved by normalized phone number.
type Contact struct {
	ID        string
	TenantID  string
	Phone     string
	Name      string
	CreatedAt time.Time
}
