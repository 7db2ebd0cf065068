package ves

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesdata/warehouse/loader/pkg/dataset"
)

func ts(day, hour int) *time.Time {
	t := time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func TestWarehouse_VES_StageVeterans(t *testing.T) {
	t.Parallel()

	t.Run("normalizes codes and trims keys", func(t *testing.T) {
		t.Parallel()
		staged, rejected := StageVeterans([]VeteranRecord{
			{FileNumber: " 12345678 ", State: "tx", ServiceBranch: "army", CombinedRatingPct: 70},
		})
		require.Empty(t, rejected)
		require.Len(t, staged, 1)
		assert.Equal(t, "12345678", staged[0].FileNumber)
		assert.Equal(t, "TX", staged[0].State)
		assert.Equal(t, "ARMY", staged[0].ServiceBranch)
	})

	t.Run("rejects empty file number", func(t *testing.T) {
		t.Parallel()
		staged, rejected := StageVeterans([]VeteranRecord{{FileNumber: "   "}})
		require.Empty(t, staged)
		require.Len(t, rejected, 1)
		assert.Equal(t, dataset.SkipInvalidKey, rejected[0].Reason)
	})

	t.Run("rejects rating outside range", func(t *testing.T) {
		t.Parallel()
		staged, rejected := StageVeterans([]VeteranRecord{
			{FileNumber: "123", CombinedRatingPct: 110},
			{FileNumber: "456", CombinedRatingPct: -10},
			{FileNumber: "789", CombinedRatingPct: 100},
		})
		require.Len(t, staged, 1)
		assert.Equal(t, "789", staged[0].FileNumber)
		require.Len(t, rejected, 2)
		for _, r := range rejected {
			assert.Equal(t, dataset.SkipInvalidValue, r.Reason)
		}
	})
}

func TestWarehouse_VES_StageProviders(t *testing.T) {
	t.Parallel()

	staged, rejected := StageProviders([]ProviderRecord{
		{NPI: " 1234567890 ", ClinicState: "co"},
		{NPI: "12345"},
		{NPI: "123456789X"},
	})
	require.Len(t, staged, 1)
	assert.Equal(t, "1234567890", staged[0].NPI)
	assert.Equal(t, "CO", staged[0].ClinicState)
	require.Len(t, rejected, 2)
	for _, r := range rejected {
		assert.Equal(t, dataset.SkipInvalidKey, r.Reason)
	}
}

func TestWarehouse_VES_StageExamRequests(t *testing.T) {
	t.Parallel()

	t.Run("milestones collapse to UTC midnight", func(t *testing.T) {
		t.Parallel()
		est := time.Date(2024, 3, 4, 22, 30, 0, 0, time.FixedZone("EST", -5*3600))
		staged, rejected := StageExamRequests([]ExamRequestRecord{
			{RequestNumber: "R-1", Status: "assigned", ReceivedDate: ts(1, 14), AssignedDate: &est},
		})
		require.Empty(t, rejected)
		require.Len(t, staged, 1)
		assert.Equal(t, "ASSIGNED", staged[0].Status)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *staged[0].ReceivedDate)
		// 22:30 EST is already March 5 in UTC.
		assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *staged[0].AssignedDate)
		assert.Nil(t, staged[0].ScheduledDate)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		t.Parallel()
		staged, rejected := StageExamRequests([]ExamRequestRecord{
			{RequestNumber: "R-2", Status: "PENDING"},
		})
		require.Empty(t, staged)
		require.Len(t, rejected, 1)
		assert.Equal(t, dataset.SkipInvalidValue, rejected[0].Reason)
		assert.Equal(t, "R-2", rejected[0].Key)
	})

	t.Run("rejects empty request number", func(t *testing.T) {
		t.Parallel()
		staged, rejected := StageExamRequests([]ExamRequestRecord{{Status: "ASSIGNED"}})
		require.Empty(t, staged)
		require.Len(t, rejected, 1)
		assert.Equal(t, dataset.SkipInvalidKey, rejected[0].Reason)
	})
}

func TestWarehouse_VES_StageAppointments(t *testing.T) {
	t.Parallel()

	staged, rejected := StageAppointments([]AppointmentRecord{
		{AppointmentID: "A-1", RequestNumber: " R-1 ", Status: "confirmed", RequestedDate: ts(1, 9)},
		{AppointmentID: "A-2", Status: "WAITLISTED"},
		{AppointmentID: "", Status: "CONFIRMED"},
	})
	require.Len(t, staged, 1)
	assert.Equal(t, "A-1", staged[0].AppointmentID)
	assert.Equal(t, "R-1", staged[0].RequestNumber)
	assert.Equal(t, "CONFIRMED", staged[0].Status)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *staged[0].RequestedDate)
	require.Len(t, rejected, 2)
}
