package domain

import (
	"time"
)

// Product is the read-only catalogue record sourced from the product collection.
type Product struct {
	ID          int64
	Title       string
	Description string
	Price       float64
	Currency    string
	ImageURL    string
	Images      []string
	CategoryID  int64
	Artisan     string
	Featured    bool
	Published   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category groups products for navigation.
type Category struct {
	ID        int64
	Name      string
	Slug      string
	ImageURL  string
	SortOrder int
}

// WishlistEntry records a product saved by a user.
type WishlistEntry struct {
	ProductID int64
	AddedAt   time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
