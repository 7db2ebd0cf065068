package ves

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vesdata/warehouse/loader/pkg/dataset"
)

// Staging transforms raw source rows into writable records: keys are
// trimmed, codes uppercased, dates normalized to UTC midnight, and
// rows that cannot identify an entity or carry out-of-domain values
// are rejected individually so the rest of the batch proceeds.

var npiRe = regexp.MustCompile(`^[0-9]{10}$`)

var examRequestStatuses = map[string]struct{}{
	"UNASSIGNED": {},
	"ASSIGNED":   {},
	"SCHEDULED":  {},
	"COMPLETED":  {},
	"QA_REVIEW":  {},
	"DELIVERED":  {},
	"CANCELED":   {},
}

var appointmentStatuses = map[string]struct{}{
	"REQUESTED":  {},
	"SCHEDULED":  {},
	"CONFIRMED":  {},
	"CHECKED_IN": {},
	"COMPLETED":  {},
	"NO_SHOW":    {},
	"CANCELED":   {},
}

// toDate normalizes a milestone timestamp to UTC midnight, so the
// same calendar day always produces the same stored value and the
// same content regardless of source timezone jitter.
func toDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// StageVeterans validates and normalizes veteran dimension rows.
func StageVeterans(records []VeteranRecord) ([]VeteranRecord, []dataset.SkippedRow) {
	staged := make([]VeteranRecord, 0, len(records))
	var rejected []dataset.SkippedRow

	for _, r := range records {
		r.FileNumber = strings.TrimSpace(r.FileNumber)
		if r.FileNumber == "" {
			rejected = append(rejected, dataset.SkippedRow{
				Reason: dataset.SkipInvalidKey,
				Detail: "file number is empty",
			})
			continue
		}
		if r.CombinedRatingPct < 0 || r.CombinedRatingPct > 100 {
			rejected = append(rejected, dataset.SkippedRow{
				Key:    r.FileNumber,
				Reason: dataset.SkipInvalidValue,
				Detail: fmt.Sprintf("combined rating %d outside 0-100", r.CombinedRatingPct),
			})
			continue
		}
		r.State = strings.ToUpper(strings.TrimSpace(r.State))
		r.ServiceBranch = strings.ToUpper(strings.TrimSpace(r.ServiceBranch))
		staged = append(staged, r)
	}
	return staged, rejected
}

// StageProviders validates and normalizes provider dimension rows.
func StageProviders(records []ProviderRecord) ([]ProviderRecord, []dataset.SkippedRow) {
	staged := make([]ProviderRecord, 0, len(records))
	var rejected []dataset.SkippedRow

	for _, r := range records {
		r.NPI = strings.TrimSpace(r.NPI)
		if !npiRe.MatchString(r.NPI) {
			rejected = append(rejected, dataset.SkippedRow{
				Key:    r.NPI,
				Reason: dataset.SkipInvalidKey,
				Detail: "provider npi must be 10 digits",
			})
			continue
		}
		r.ClinicState = strings.ToUpper(strings.TrimSpace(r.ClinicState))
		staged = append(staged, r)
	}
	return staged, rejected
}

// StageExamRequests validates and normalizes exam-request fact rows.
func StageExamRequests(records []ExamRequestRecord) ([]ExamRequestRecord, []dataset.SkippedRow) {
	staged := make([]ExamRequestRecord, 0, len(records))
	var rejected []dataset.SkippedRow

	for _, r := range records {
		r.RequestNumber = strings.TrimSpace(r.RequestNumber)
		if r.RequestNumber == "" {
			rejected = append(rejected, dataset.SkippedRow{
				Reason: dataset.SkipInvalidKey,
				Detail: "request number is empty",
			})
			continue
		}
		r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
		if _, ok := examRequestStatuses[r.Status]; !ok {
			rejected = append(rejected, dataset.SkippedRow{
				Key:    r.RequestNumber,
				Reason: dataset.SkipInvalidValue,
				Detail: fmt.Sprintf("unknown exam request status %q", r.Status),
			})
			continue
		}
		r.ReceivedDate = toDate(r.ReceivedDate)
		r.AssignedDate = toDate(r.AssignedDate)
		r.ScheduledDate = toDate(r.ScheduledDate)
		r.ExamCompletedDate = toDate(r.ExamCompletedDate)
		r.QAReviewedDate = toDate(r.QAReviewedDate)
		r.DeliveredDate = toDate(r.DeliveredDate)
		r.CanceledDate = toDate(r.CanceledDate)
		staged = append(staged, r)
	}
	return staged, rejected
}

// StageAppointments validates and normalizes appointment fact rows.
func StageAppointments(records []AppointmentRecord) ([]AppointmentRecord, []dataset.SkippedRow) {
	staged := make([]AppointmentRecord, 0, len(records))
	var rejected []dataset.SkippedRow

	for _, r := range records {
		r.AppointmentID = strings.TrimSpace(r.AppointmentID)
		if r.AppointmentID == "" {
			rejected = append(rejected, dataset.SkippedRow{
				Reason: dataset.SkipInvalidKey,
				Detail: "appointment id is empty",
			})
			continue
		}
		r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
		if _, ok := appointmentStatuses[r.Status]; !ok {
			rejected = append(rejected, dataset.SkippedRow{
				Key:    r.AppointmentID,
				Reason: dataset.SkipInvalidValue,
				Detail: fmt.Sprintf("unknown appointment status %q", r.Status),
			})
			continue
		}
		r.RequestNumber = strings.TrimSpace(r.RequestNumber)
		r.RequestedDate = toDate(r.RequestedDate)
		r.ScheduledDate = toDate(r.ScheduledDate)
		r.ConfirmedDate = toDate(r.ConfirmedDate)
		r.CheckedInDate = toDate(r.CheckedInDate)
		r.CompletedDate = toDate(r.CompletedDate)
		r.NoShowDate = toDate(r.NoShowDate)
		staged = append(staged, r)
	}
	return staged, rejected
}
