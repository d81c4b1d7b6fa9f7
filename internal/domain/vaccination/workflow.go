package vaccination

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcare/mcare/internal/domain/visit"
	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/platform/telemetry"
	"github.com/mcare/mcare/internal/validation"
)

// Record stores a vaccination and, when a next due date is given, schedules
// the follow-up postnatal visit for the child's mother. Both rows, the link
// between them and the outbox events commit together or not at all.
func (s *Service) Record(ctx context.Context, caller auth.Principal, p validation.Payload) (*RecordResult, error) {
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only(createFields)
	if err := s.engine.Check(validation.KindVaccination, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	var v Vaccination
	if err := validation.Decode(p, &v); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}

	res := &RecordResult{Vaccination: &v}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.children.GetByID(ctx, v.ChildID)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("child")
		}
		if err != nil {
			return fmt.Errorf("get child: %w", err)
		}
		if err := auth.Require(caller, auth.CapVaccinationsWrite, auth.Owner(c.OwnerUserID)); err != nil {
			return err
		}
		if err := s.checkMother(ctx, c.MotherID); err != nil {
			return err
		}
		if err := s.checkHealthWorker(ctx, v.HealthWorkerID); err != nil {
			return err
		}

		if err := s.vaccinations.Create(ctx, &v); err != nil {
			return mapWriteError(err, "create vaccination")
		}
		res.VaccinationID = v.ID

		if v.NextDueDate != nil {
			notes := visit.FollowUpNotes(c.FullName(), v.VaccineName, v.Notes)
			fu := visit.NewFollowUp(c.MotherID, c.ID, *v.NextDueDate, notes)
			if err := s.visits.Create(ctx, fu); err != nil {
				return fmt.Errorf("schedule follow-up visit: %w", err)
			}
			if err := s.vaccinations.SetFollowUpVisit(ctx, v.ID, fu.ID); err != nil {
				return fmt.Errorf("link follow-up visit: %w", err)
			}
			v.FollowUpVisitID = &fu.ID
			res.VisitID = &fu.ID
			res.FollowUpVisit = fu
		}

		if err := s.record(ctx, outbox.VaccinationRecorded, recordedEvent(&v, c.MotherID)); err != nil {
			return err
		}
		if res.FollowUpVisit != nil {
			return s.record(ctx, outbox.VisitScheduled, visit.ScheduledEvent(res.FollowUpVisit))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.VaccinationsRecorded.Inc()
	if res.VisitID != nil {
		telemetry.FollowUpVisitsScheduled.Inc()
		s.logger.Debug().
			Int64("vaccination_id", v.ID).
			Int64("visit_id", *res.VisitID).
			Str("visit_date", v.NextDueDate.String()).
			Msg("follow-up visit scheduled")
	}
	return res, nil
}

func recordedEvent(v *Vaccination, motherID int64) map[string]any {
	evt := map[string]any{
		"vaccination_id":     v.ID,
		"child_id":           v.ChildID,
		"mother_id":          motherID,
		"vaccine_name":       v.VaccineName,
		"date_given":         v.DateGiven.String(),
		"follow_up_visit_id": v.FollowUpVisitID,
	}
	if v.NextDueDate != nil {
		evt["next_due_date"] = v.NextDueDate.String()
	}
	return evt
}
