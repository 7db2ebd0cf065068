package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vesdata/warehouse/loader/pkg/ves"
)

// Batch is one pull from the operational source: the raw dimension and
// fact extracts the loader stages and writes in a single cycle.
type Batch struct {
	Veterans     []ves.VeteranRecord
	Providers    []ves.ProviderRecord
	ExamRequests []ves.ExamRequestRecord
	Appointments []ves.AppointmentRecord
}

// Source supplies extracts from the operational exam-management system.
type Source interface {
	FetchBatch(ctx context.Context) (*Batch, error)
	Close() error
}

// MockSource generates synthetic exam lifecycles for dev and staging
// environments without a connection to the operational system. Each
// fetch advances every open request one stage, so repeated cycles
// exercise the full received-to-delivered path, including replays of
// already-stored milestones.
type MockSource struct {
	log   *slog.Logger
	clock clockwork.Clock

	mu       sync.Mutex
	requests int
	cycle    int
}

type MockSourceConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// Requests is the number of concurrent synthetic exam requests.
	Requests int
}

func NewMockSource(cfg MockSourceConfig) *MockSource {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Requests <= 0 {
		cfg.Requests = 25
	}
	return &MockSource{
		log:      cfg.Logger,
		clock:    cfg.Clock,
		requests: cfg.Requests,
	}
}

var mockStatuses = []string{"UNASSIGNED", "ASSIGNED", "SCHEDULED", "COMPLETED", "QA_REVIEW", "DELIVERED"}

func (s *MockSource) FetchBatch(ctx context.Context) (*Batch, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	cycle := s.cycle
	s.cycle++
	s.mu.Unlock()

	now := s.clock.Now().UTC()
	base := now.AddDate(0, 0, -len(mockStatuses))

	batch := &Batch{}
	for i := 0; i < s.requests; i++ {
		fileNumber := fmt.Sprintf("%08d", 10000000+i)
		npi := fmt.Sprintf("%010d", 1000000000+i)

		batch.Veterans = append(batch.Veterans, ves.VeteranRecord{
			FileNumber:        fileNumber,
			FirstName:         fmt.Sprintf("First%d", i),
			LastName:          fmt.Sprintf("Last%d", i),
			State:             "TX",
			ServiceBranch:     "ARMY",
			CombinedRatingPct: int64((i % 11) * 10),
		})
		batch.Providers = append(batch.Providers, ves.ProviderRecord{
			NPI:         npi,
			Name:        fmt.Sprintf("Provider %d", i),
			Specialty:   "General Medicine",
			ClinicState: "TX",
			Active:      true,
		})

		// Stagger lifecycles so one batch carries requests at every
		// stage, and later cycles replay earlier milestones.
		stage := (cycle + i) % len(mockStatuses)
		req := ves.ExamRequestRecord{
			RequestNumber: fmt.Sprintf("REQ-%06d", i),
			Status:        mockStatuses[stage],
		}
		milestones := []**time.Time{
			&req.ReceivedDate, &req.AssignedDate, &req.ScheduledDate,
			&req.ExamCompletedDate, &req.QAReviewedDate, &req.DeliveredDate,
		}
		for m := 0; m <= stage; m++ {
			d := base.AddDate(0, 0, m)
			*milestones[m] = &d
		}
		if stage >= 1 {
			req.AssignedProviderNPI = &npi
		}
		batch.ExamRequests = append(batch.ExamRequests, req)

		if stage >= 2 {
			apt := ves.AppointmentRecord{
				AppointmentID: fmt.Sprintf("APT-%06d", i),
				RequestNumber: req.RequestNumber,
				Status:        "SCHEDULED",
				RequestedDate: req.AssignedDate,
				ScheduledDate: req.ScheduledDate,
				ProviderNPI:   &npi,
			}
			if stage >= 3 {
				apt.Status = "COMPLETED"
				apt.ConfirmedDate = req.ScheduledDate
				apt.CompletedDate = req.ExamCompletedDate
			}
			batch.Appointments = append(batch.Appointments, apt)
		}
	}

	s.log.Debug("mock source: generated batch",
		"cycle", cycle,
		"veterans", len(batch.Veterans),
		"providers", len(batch.Providers),
		"exam_requests", len(batch.ExamRequests),
		"appointments", len(batch.Appointments))
	return batch, nil
}

func (s *MockSource) Close() error {
	return nil
}
