// Package ves binds the generic dimension and snapshot datasets to
// the Veteran Evaluation Services reporting tables: the veteran and
// provider dimensions and the exam-request and appointment
// accumulating-snapshot facts.
package ves

import "time"

// VeteranRecord is one staged source row for the veteran dimension.
type VeteranRecord struct {
	FileNumber        string
	FirstName         string
	LastName          string
	State             string
	ServiceBranch     string
	CombinedRatingPct int64
	POACode           string
}

// ProviderRecord is one staged source row for the provider dimension.
type ProviderRecord struct {
	NPI         string
	Name        string
	Specialty   string
	ClinicState string
	Active      bool
}

// ExamRequestRecord is one staged source row for the exam-request
// fact. Milestone dates are pointers: nil means the source batch has
// no information for that milestone, which the merger must never
// confuse with "the milestone was reached at the zero time".
type ExamRequestRecord struct {
	RequestNumber string

	ReceivedDate      *time.Time
	AssignedDate      *time.Time
	ScheduledDate     *time.Time
	ExamCompletedDate *time.Time
	QAReviewedDate    *time.Time
	DeliveredDate     *time.Time
	CanceledDate      *time.Time

	Status              string
	Priority            *string
	AssignedProviderNPI *string
	ExamType            *string
}

// AppointmentRecord is one staged source row for the scheduled
// appointment fact.
type AppointmentRecord struct {
	AppointmentID string
	RequestNumber string

	RequestedDate *time.Time
	ScheduledDate *time.Time
	ConfirmedDate *time.Time
	CheckedInDate *time.Time
	CompletedDate *time.Time
	NoShowDate    *time.Time

	Status      string
	ClinicCode  *string
	ProviderNPI *string
}
