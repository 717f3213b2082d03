package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"realty-agent/internal/domain"
)

const (
	apptTimeLayout  = "2006-01-02 15:04"
	conflictPadding = 30 * time.Minute
)

// AppointmentStore is the persistence surface the scheduler needs.
type AppointmentStore interface {
	PutAppointment(ctx context.Context, appt domain.Appointment) error
	BookingsInWindow(ctx context.Context, date, start, end string) ([]domain.Appointment, error)
}

// Mirror replicates booking state to an external spreadsheet. Best effort:
// a failed sync never fails the booking that triggered it.
type Mirror interface {
	Sync(ctx context.Context) error
}

// Scheduler owns the appointment sub-flow of a turn: conflict resolution,
// persistence, mirroring, and confirmation message selection.
type Scheduler struct {
	store     AppointmentStore
	mirror    Mirror
	sender    MessageSender
	agentName string
	log       *slog.Logger
}

func NewScheduler(store AppointmentStore, mirror Mirror, sender MessageSender, agentName string, log *slog.Logger) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("usecase: appointment store must not be nil")
	}
	if mirror == nil {
		return nil, errors.New("usecase: mirror must not be nil")
	}
	if sender == nil {
		return nil, errors.New("usecase: message sender must not be nil")
	}
	if strings.TrimSpace(agentName) == "" {
		return nil, errors.New("usecase: agent name must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{store: store, mirror: mirror, sender: sender, agentName: agentName, log: log}, nil
}

// HasConflict reports whether a booking at instant would double-book the
// calendar. Cancellations never conflict. The window is computed on clock
// time alone: a window that would cross midnight matches nothing on the
// other side of the boundary.
func (s *Scheduler) HasConflict(ctx context.Context, kind domain.AppointmentKind, instant time.Time) (bool, error) {
	if kind == domain.KindCancellation {
		return false, nil
	}
	date := instant.Format("2006-01-02")
	start := instant.Add(-conflictPadding).Format("15:04")
	end := instant.Add(conflictPadding).Format("15:04")

	matches, err := s.store.BookingsInWindow(ctx, date, start, end)
	if err != nil {
		return false, fmt.Errorf("usecase: conflict query: %w", err)
	}
	return len(matches) > 0, nil
}

// ProcessIntent runs the full appointment flow for one validated intent:
// parse the instant, branch on kind, persist, mirror, and send the outcome
// message. Errors abort only this sub-flow; the chat reply for the turn has
// already been sent.
func (s *Scheduler) ProcessIntent(ctx context.Context, sender string, intent domain.AppointmentIntent) error {
	instant, err := time.Parse(apptTimeLayout, intent.Date+" "+intent.Time)
	if err != nil {
		return newError(ErrorInvalidInput, "malformed_appointment_data", err)
	}

	if intent.Kind == domain.KindCancellation {
		if err := s.persist(ctx, sender, intent); err != nil {
			return err
		}
		s.log.Info("cancellation saved", "sender", sender, "date", intent.Date, "time", intent.Time)
		msg := fmt.Sprintf("✓ Cancellation noted. %s's appointment on %s at %s has been cancelled.",
			intent.Name, intent.Date, intent.Time)
		return s.send(ctx, sender, msg)
	}

	conflict, err := s.HasConflict(ctx, intent.Kind, instant)
	if err != nil {
		return newError(ErrorInternal, "conflict_query_error", err)
	}
	if conflict {
		s.log.Warn("appointment conflict detected", "date", intent.Date, "time", intent.Time)
		return s.send(ctx, sender, fmt.Sprintf("Sorry, %s already has an appointment at that time. Could you choose another time?", s.agentName))
	}

	if err := s.persist(ctx, sender, intent); err != nil {
		return err
	}
	s.log.Info("appointment saved", "sender", sender, "kind", intent.Kind, "date", intent.Date, "time", intent.Time)

	if err := s.mirror.Sync(ctx); err != nil {
		s.log.Error("sheet mirror sync failed", "err", err)
	}

	msg := fmt.Sprintf("✓ Confirmed! %s's %s on %s at %s.", intent.Name, intent.Kind, intent.Date, intent.Time)
	return s.send(ctx, sender, msg)
}

func (s *Scheduler) persist(ctx context.Context, sender string, intent domain.AppointmentIntent) error {
	appt := domain.Appointment{
		Phone: sender,
		Name:  intent.Name,
		Kind:  intent.Kind,
		Date:  intent.Date,
		Time:  intent.Time,
	}
	if err := s.store.PutAppointment(ctx, appt); err != nil {
		return newError(ErrorInternal, "appointment_write_error", err)
	}
	return nil
}

func (s *Scheduler) send(ctx context.Context, to, body string) error {
	if err := s.sender.Send(ctx, to, body); err != nil {
		return newError(ErrorUpstream, "confirmation_send_error", err)
	}
	return nil
}
