// Package model defines the domain types used across the application.
package model

import "time"

// Feed represents a polled feed source owned by an account.
type Feed struct {
	ID              int64
	AccountID       string
	Name            string
	URL             string
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}
