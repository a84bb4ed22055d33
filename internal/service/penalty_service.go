package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"penalty-service/internal/domain/penalty"
	"penalty-service/internal/email"
	"penalty-service/internal/metrics"
	"penalty-service/internal/repository"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyRegistered    = errors.New("vehicle already registered")
	ErrUnregisteredVehicle  = errors.New("vehicle is not registered")
	ErrUnknownViolationCode = errors.New("unknown violation code")
)

// Store is the persistence contract consumed by the service. Each call is
// independent; the service does not span transactions across them.
type Store interface {
	FindDriver(ctx context.Context, plateNo string) (*penalty.Driver, error)
	InsertDriver(ctx context.Context, driver *penalty.Driver) error
	CountEvents(ctx context.Context, plateNo, code string) (int64, error)
	InsertEvent(ctx context.Context, event *penalty.ViolationEvent) error
	FindEventsByPlate(ctx context.Context, plateNo string) ([]penalty.ViolationEvent, error)
	FindEventByReference(ctx context.Context, reference string) (*penalty.ViolationEvent, error)
	FindRewardsByPlate(ctx context.Context, plateNo string) ([]penalty.RewardSubmission, error)
}

// Mailer produces the notice text for a new violation. It must always return
// text, substituting a template when the live generator is unavailable.
type Mailer interface {
	Compose(ctx context.Context, n email.Notice) (text string, fallback bool)
}

type Option func(*PenaltyService)

// WithClock overrides the time source used for event creation and profile
// classification.
func WithClock(now func() time.Time) Option {
	return func(s *PenaltyService) {
		if now != nil {
			s.now = now
		}
	}
}

type PenaltyService struct {
	store        Store
	rules        *penalty.Registry
	mailer       Mailer
	metrics      *metrics.Metrics
	ratePerPoint float64
	now          func() time.Time
	log          zerolog.Logger
}

func NewPenaltyService(
	store Store,
	rules *penalty.Registry,
	mailer Mailer,
	m *metrics.Metrics,
	ratePerPoint float64,
	log zerolog.Logger,
	opts ...Option,
) *PenaltyService {
	s := &PenaltyService{
		store:        store,
		rules:        rules,
		mailer:       mailer,
		metrics:      m,
		ratePerPoint: ratePerPoint,
		now:          time.Now,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PenaltyService) Rules() []penalty.Rule {
	return s.rules.All()
}

func (s *PenaltyService) RegisterVehicle(ctx context.Context, reg penalty.Registration) (*penalty.Driver, error) {
	plateNo := strings.TrimSpace(reg.PlateNo)
	if plateNo == "" {
		return nil, fmt.Errorf("%w: plate_no is required", ErrInvalidInput)
	}
	ownerName := strings.TrimSpace(reg.OwnerName)
	if ownerName == "" {
		return nil, fmt.Errorf("%w: owner_name is required", ErrInvalidInput)
	}
	vehicleType := strings.TrimSpace(reg.VehicleType)
	if vehicleType == "" {
		return nil, fmt.Errorf("%w: vehicle_type is required", ErrInvalidInput)
	}

	_, err := s.store.FindDriver(ctx, plateNo)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, plateNo)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.Error().Err(err).Str("plate", plateNo).Msg("failed to look up driver")
		return nil, fmt.Errorf("failed to look up driver: %w", err)
	}

	driver := &penalty.Driver{
		PlateNo:          plateNo,
		OwnerName:        ownerName,
		VehicleType:      vehicleType,
		RegisteredAt:     s.now(),
		ContributorLevel: penalty.DefaultContributorLevel,
	}
	if reg.Email != nil {
		if e := strings.TrimSpace(*reg.Email); e != "" {
			driver.Email = &e
		}
	}

	if err := s.store.InsertDriver(ctx, driver); err != nil {
		// Lost a race with a concurrent registration of the same plate.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, plateNo)
		}
		s.log.Error().Err(err).Str("plate", plateNo).Msg("failed to insert driver")
		return nil, fmt.Errorf("failed to insert driver: %w", err)
	}

	s.metrics.DriverRegistered()
	s.log.Info().
		Str("plate", plateNo).
		Str("vehicle_type", vehicleType).
		Msg("registered vehicle")

	return driver, nil
}

func (s *PenaltyService) AddViolation(ctx context.Context, plateNo, code string) (*penalty.ViolationEvent, error) {
	plateNo = strings.TrimSpace(plateNo)
	if plateNo == "" {
		return nil, fmt.Errorf("%w: plate_no is required", ErrInvalidInput)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: violation_code is required", ErrInvalidInput)
	}

	driver, err := s.store.FindDriver(ctx, plateNo)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredVehicle, plateNo)
	}
	if err != nil {
		s.log.Error().Err(err).Str("plate", plateNo).Msg("failed to look up driver")
		return nil, fmt.Errorf("failed to look up driver: %w", err)
	}

	rule, ok := s.rules.Lookup(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownViolationCode, code)
	}

	prior, err := s.store.CountEvents(ctx, plateNo, code)
	if err != nil {
		s.log.Error().Err(err).Str("plate", plateNo).Str("code", code).Msg("failed to count prior events")
		return nil, fmt.Errorf("failed to count prior events: %w", err)
	}

	now := s.now()
	multiplier, points, expiry := penalty.Score(rule, int(prior), now)
	split := penalty.SplitPenalty(points, s.ratePerPoint)

	event := &penalty.ViolationEvent{
		Reference:    uuid.NewString(),
		PlateNo:      plateNo,
		Type:         rule.Code,
		Label:        rule.Label,
		Weight:       rule.Weight,
		Multiplier:   multiplier,
		Points:       points,
		Timestamp:    now,
		ExpiryDate:   expiry,
		DriverEmail:  driver.ContactEmail(),
		PenaltySplit: &split,
	}

	text, fallback := s.mailer.Compose(ctx, email.Notice{
		DriverName:     driver.OwnerName,
		DriverEmail:    event.DriverEmail,
		PlateNo:        plateNo,
		ViolationLabel: rule.Label,
		Points:         points,
		Timestamp:      now,
		ExpiryDate:     expiry,
		PenaltyAmount:  split.Total,
	})
	event.GeneratedEmail = text
	if fallback {
		s.metrics.EmailFallback()
	}

	if err := s.store.InsertEvent(ctx, event); err != nil {
		s.log.Error().
			Err(err).
			Str("plate", plateNo).
			Str("code", code).
			Msg("failed to insert violation event")
		return nil, fmt.Errorf("failed to insert violation event: %w", err)
	}

	s.metrics.ViolationRecorded(code)
	s.log.Info().
		Str("reference", event.Reference).
		Str("plate", plateNo).
		Str("code", code).
		Int64("occurrence", prior+1).
		Float64("multiplier", multiplier).
		Float64("points", points).
		Time("expiry_date", expiry).
		Bool("email_fallback", fallback).
		Msg("recorded violation")

	return event, nil
}

func (s *PenaltyService) GetViolation(ctx context.Context, reference string) (*penalty.ViolationEvent, error) {
	reference = strings.TrimSpace(reference)
	if _, err := uuid.Parse(reference); err != nil {
		return nil, fmt.Errorf("%w: malformed violation reference", ErrInvalidInput)
	}

	event, err := s.store.FindEventByReference(ctx, reference)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: violation %s", ErrNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find violation: %w", err)
	}
	return event, nil
}

func (s *PenaltyService) GetFullProfile(ctx context.Context, plateNo string) (*penalty.ProfileView, error) {
	plateNo = strings.TrimSpace(plateNo)
	if plateNo == "" {
		return nil, fmt.Errorf("%w: plate_no is required", ErrInvalidInput)
	}

	driver, err := s.store.FindDriver(ctx, plateNo)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: vehicle %s", ErrNotFound, plateNo)
	}
	if err != nil {
		s.log.Error().Err(err).Str("plate", plateNo).Msg("failed to look up driver")
		return nil, fmt.Errorf("failed to look up driver: %w", err)
	}

	var (
		events  []penalty.ViolationEvent
		rewards []penalty.RewardSubmission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.store.FindEventsByPlate(gctx, plateNo)
		if err != nil {
			return fmt.Errorf("failed to find violations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rewards, err = s.store.FindRewardsByPlate(gctx, plateNo)
		if err != nil {
			return fmt.Errorf("failed to find rewards: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Str("plate", plateNo).Msg("failed to load history")
		return nil, err
	}

	view := penalty.BuildProfile(*driver, events, rewards, s.now())
	s.metrics.ProfileServed()

	s.log.Debug().
		Str("plate", plateNo).
		Int("violations", len(events)).
		Int("rewards", len(rewards)).
		Float64("active_points", view.Stats.ActivePoints).
		Str("risk_level", view.Stats.RiskLevel).
		Msg("built profile")

	return &view, nil
}
