// Package domain contains core business types for the Tradevine marketplace.
//
// This file defines the Job entity and its status machine. All status
// transitions are driven through the job service; nothing else mutates a
// job's status, accepted quote or payment status.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a posted job.
type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusQuoted     JobStatus = "quoted"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true for states that accept no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// AcceptsQuotes returns true while new quotes may be submitted or an
// existing quote accepted.
func (s JobStatus) AcceptsQuotes() bool {
	return s == JobStatusOpen || s == JobStatusQuoted
}

// Job represents a piece of work posted by a customer.
//
// Invariant: TradespersonID and AcceptedQuoteID are set together, exactly
// when the status is assigned, in_progress or completed.
type Job struct {
	ID              uuid.UUID
	CustomerID      uuid.UUID
	Title           string
	Description     string
	Status          JobStatus
	Budget          *int64 // optional, minor currency units
	AcceptedQuoteID *uuid.UUID
	TradespersonID  *uuid.UUID
	PaymentStatus   PaymentStatus // empty until a quote is accepted
	DeletionReason  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOwnedBy returns true if the job was posted by the given user.
func (j *Job) IsOwnedBy(userID uuid.UUID) bool {
	return j.CustomerID == userID
}

// IsAssignedTo returns true if the given provider won this job.
func (j *Job) IsAssignedTo(userID uuid.UUID) bool {
	return j.TradespersonID != nil && *j.TradespersonID == userID
}

// HasAcceptedQuote reports whether the given quote is the one already
// accepted on this job. Used to make repeated acceptance a no-op.
func (j *Job) HasAcceptedQuote(quoteID uuid.UUID) bool {
	return j.AcceptedQuoteID != nil && *j.AcceptedQuoteID == quoteID
}

// JobParams holds the caller-supplied fields for creating a job.
type JobParams struct {
	Title       string
	Description string
	Budget      *int64
}

// Validate checks job creation input.
func (p JobParams) Validate() error {
	const op = "job.validate"
	if p.Title == "" {
		return Invalid(op, "title is required")
	}
	if len(p.Title) > 200 {
		return Invalid(op, "title must be 200 characters or fewer")
	}
	if p.Budget != nil && *p.Budget <= 0 {
		return Invalid(op, "budget must be positive")
	}
	return nil
}
