package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyflow-app/planner-api/internal/dto"
	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
)

type preferenceRepository interface {
	GetByUser(ctx context.Context, userID string) (*models.StudyPreference, error)
	Upsert(ctx context.Context, pref *models.StudyPreference) error
}

// PreferenceService stores per-user scheduling defaults.
type PreferenceService struct {
	prefs     preferenceRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPreferenceService constructs the service.
func NewPreferenceService(prefs preferenceRepository, validate *validator.Validate, logger *zap.Logger) *PreferenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{prefs: prefs, validator: validate, logger: logger}
}

// Get returns the caller's stored preferences.
func (s *PreferenceService) Get(ctx context.Context, userID string) (*dto.PreferenceResponse, error) {
	pref, err := s.prefs.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no preferences stored yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study preferences")
	}
	return &dto.PreferenceResponse{
		StudyDays:     splitDays(pref.StudyDays),
		StudyHours:    dto.StudyWindow{Start: pref.StartHour, End: pref.EndHour},
		SessionLength: pref.SessionLengthMinutes,
		Breaks:        pref.BreakMinutes,
	}, nil
}

// Upsert stores the caller's preferences, replacing any previous values.
func (s *PreferenceService) Upsert(ctx context.Context, userID string, req dto.UpsertPreferenceRequest) (*dto.PreferenceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}
	if req.StudyHours.Start >= req.StudyHours.End {
		return nil, appErrors.ErrInvalidWindow
	}

	days := dedupeDays(req.StudyDays)
	pref := &models.StudyPreference{
		UserID:               userID,
		StudyDays:            strings.Join(days, ","),
		StartHour:            req.StudyHours.Start,
		EndHour:              req.StudyHours.End,
		SessionLengthMinutes: req.SessionLength,
		BreakMinutes:         req.Breaks,
	}
	if err := s.prefs.Upsert(ctx, pref); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store study preferences")
	}

	return &dto.PreferenceResponse{
		StudyDays:     days,
		StudyHours:    req.StudyHours,
		SessionLength: req.SessionLength,
		Breaks:        req.Breaks,
	}, nil
}

func dedupeDays(days []string) []string {
	seen := make(map[string]bool, len(days))
	out := make([]string, 0, len(days))
	for _, day := range days {
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, day)
	}
	return out
}
