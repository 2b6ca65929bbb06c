package model

import "time"

// Repository represents a monitored CI target: a GitHub repository or a
// Jenkins job. FullName is unique within a provider.
type Repository struct {
	ID       int64
	Name     string
	FullName string
	Provider Provider
	URL      string
	AddedAt  time.Time
}
