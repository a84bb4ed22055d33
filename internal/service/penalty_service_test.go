package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"penalty-service/internal/domain/penalty"
	"penalty-service/internal/email"
	"penalty-service/internal/metrics"
	"penalty-service/internal/repository"
	"penalty-service/internal/service"
)

type brokenGenerator struct{}

func (brokenGenerator) Generate(context.Context, email.Notice) (string, error) {
	return "", errors.New("upstream unavailable")
}

type recordingGenerator struct {
	mu      sync.Mutex
	notices []email.Notice
}

func (g *recordingGenerator) Generate(_ context.Context, n email.Notice) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, n)
	return "live notice for " + n.PlateNo, nil
}

// failingStore wraps a MemoryStore and fails the selected operation.
type failingStore struct {
	*repository.MemoryStore
	failInsertEvent bool
	failRewards     bool
}

func (f *failingStore) InsertEvent(ctx context.Context, e *penalty.ViolationEvent) error {
	if f.failInsertEvent {
		return errors.New("disk full")
	}
	return f.MemoryStore.InsertEvent(ctx, e)
}

func (f *failingStore) FindRewardsByPlate(ctx context.Context, plateNo string) ([]penalty.RewardSubmission, error) {
	if f.failRewards {
		return nil, errors.New("connection reset")
	}
	return f.MemoryStore.FindRewardsByPlate(ctx, plateNo)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func strPtr(s string) *string { return &s }

func newService(store service.Store, gen email.Generator, clk *clock) *service.PenaltyService {
	log := zerolog.Nop()
	mailer := email.NewComposer(gen, email.TemplateGenerator{Currency: "LKR"}, time.Second, log)
	return service.NewPenaltyService(
		store,
		penalty.NewRegistry(),
		mailer,
		metrics.New(prometheus.NewRegistry()),
		500,
		log,
		service.WithClock(clk.now),
	)
}

func register(ctx context.Context, svc *service.PenaltyService, plate string) {
	_, err := svc.RegisterVehicle(ctx, penalty.Registration{
		PlateNo:     plate,
		OwnerName:   "Nimal Perera",
		Email:       strPtr("nimal@example.com"),
		VehicleType: "Car",
	})
	So(err, ShouldBeNil)
}

func TestRegisterVehicle(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
		store := repository.NewMemoryStore()
		svc := newService(store, nil, clk)

		Convey("Registering a plate creates a driver with default levels", func() {
			d, err := svc.RegisterVehicle(ctx, penalty.Registration{
				PlateNo:     " ABC-123 ",
				OwnerName:   "Nimal Perera",
				VehicleType: "Car",
			})
			So(err, ShouldBeNil)
			So(d.PlateNo, ShouldEqual, "ABC-123")
			So(d.ContributorLevel, ShouldEqual, "Silver")
			So(d.UploadCount, ShouldEqual, 0)
			So(d.RegisteredAt, ShouldEqual, clk.t)
			So(d.Email, ShouldBeNil)

			Convey("Registering it again fails and keeps the first record", func() {
				_, err := svc.RegisterVehicle(ctx, penalty.Registration{
					PlateNo:     "ABC-123",
					OwnerName:   "Someone Else",
					VehicleType: "Van",
				})
				So(errors.Is(err, service.ErrAlreadyRegistered), ShouldBeTrue)

				stored, err := store.FindDriver(ctx, "ABC-123")
				So(err, ShouldBeNil)
				So(stored.OwnerName, ShouldEqual, "Nimal Perera")
				So(stored.VehicleType, ShouldEqual, "Car")
			})
		})

		Convey("Missing fields are rejected as invalid input", func() {
			_, err := svc.RegisterVehicle(ctx, penalty.Registration{PlateNo: "  ", OwnerName: "x", VehicleType: "Car"})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			_, err = svc.RegisterVehicle(ctx, penalty.Registration{PlateNo: "P-1", VehicleType: "Car"})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			_, err = svc.RegisterVehicle(ctx, penalty.Registration{PlateNo: "P-1", OwnerName: "x"})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestAddViolation(t *testing.T) {
	Convey("Given a registered plate", t, func() {
		ctx := context.Background()
		clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
		store := repository.NewMemoryStore()
		gen := &recordingGenerator{}
		svc := newService(store, gen, clk)
		register(ctx, svc, "ABC-123")

		Convey("Three red lights escalate the multiplier", func() {
			var multipliers, points []float64
			for i := 0; i < 3; i++ {
				e, err := svc.AddViolation(ctx, "ABC-123", "RED_LIGHT")
				So(err, ShouldBeNil)
				multipliers = append(multipliers, e.Multiplier)
				points = append(points, e.Points)
				clk.advance(time.Hour)
			}
			So(multipliers, ShouldResemble, []float64{1.0, 1.25, 1.5})
			So(points, ShouldResemble, []float64{5, 6.25, 7.5})

			view, err := svc.GetFullProfile(ctx, "ABC-123")
			So(err, ShouldBeNil)
			So(view.Stats.ActivePoints, ShouldEqual, 18.75)
			So(view.Stats.RiskLevel, ShouldEqual, penalty.RiskModerate)
			So(view.Stats.TotalViolations, ShouldEqual, 3)
		})

		Convey("The fourth repeat falls back to the base multiplier and the fifth doubles", func() {
			var got []float64
			for i := 0; i < 6; i++ {
				e, err := svc.AddViolation(ctx, "ABC-123", "NO_SIGNAL")
				So(err, ShouldBeNil)
				got = append(got, e.Multiplier)
			}
			So(got, ShouldResemble, []float64{1.0, 1.25, 1.5, 1.0, 2.0, 2.0})
		})

		Convey("Repeats are counted per code", func() {
			_, err := svc.AddViolation(ctx, "ABC-123", "RED_LIGHT")
			So(err, ShouldBeNil)
			e, err := svc.AddViolation(ctx, "ABC-123", "NO_HELMET")
			So(err, ShouldBeNil)
			So(e.Multiplier, ShouldEqual, 1.0)
		})

		Convey("The event carries expiry, split and notice", func() {
			e, err := svc.AddViolation(ctx, "ABC-123", "WHITE_LINE")
			So(err, ShouldBeNil)
			So(e.Reference, ShouldNotBeBlank)
			So(e.Label, ShouldEqual, "Crossing White Line")
			So(e.Weight, ShouldEqual, 3.0)
			So(e.Timestamp, ShouldEqual, clk.t)
			So(e.ExpiryDate, ShouldEqual, clk.t.Add(90*24*time.Hour))
			So(e.DriverEmail, ShouldEqual, "nimal@example.com")
			So(e.GeneratedEmail, ShouldEqual, "live notice for ABC-123")
			So(*e.PenaltySplit, ShouldResemble, penalty.PenaltySplit{Government: 900, Reward: 375, System: 225, Total: 1500})

			So(gen.notices, ShouldHaveLength, 1)
			So(gen.notices[0].ViolationLabel, ShouldEqual, "Crossing White Line")
			So(gen.notices[0].Points, ShouldEqual, 3.0)

			Convey("And can be retrieved later with its notice", func() {
				stored, err := svc.GetViolation(ctx, e.Reference)
				So(err, ShouldBeNil)
				So(stored.GeneratedEmail, ShouldEqual, e.GeneratedEmail)
				So(stored.PenaltySplit, ShouldResemble, e.PenaltySplit)
			})
		})

		Convey("An unknown code is rejected and nothing is stored", func() {
			_, err := svc.AddViolation(ctx, "ABC-123", "RED_LIGHT")
			So(err, ShouldBeNil)

			_, err = svc.AddViolation(ctx, "ABC-123", "INVALID")
			So(errors.Is(err, service.ErrUnknownViolationCode), ShouldBeTrue)

			events, _ := store.FindEventsByPlate(ctx, "ABC-123")
			So(events, ShouldHaveLength, 1)

			e, err := svc.AddViolation(ctx, "ABC-123", "RED_LIGHT")
			So(err, ShouldBeNil)
			So(e.Multiplier, ShouldEqual, 1.25)
		})

		Convey("Codes are matched case-sensitively", func() {
			_, err := svc.AddViolation(ctx, "ABC-123", "red_light")
			So(errors.Is(err, service.ErrUnknownViolationCode), ShouldBeTrue)
		})

		Convey("A store failure on insert surfaces as an internal error", func() {
			broken := &failingStore{MemoryStore: store, failInsertEvent: true}
			svc := newService(broken, nil, clk)
			_, err := svc.AddViolation(ctx, "ABC-123", "RED_LIGHT")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeFalse)
		})
	})

	Convey("Given an unregistered plate", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := newService(store, nil, &clock{t: time.Now()})

		_, err := svc.AddViolation(ctx, "XYZ-999", "RED_LIGHT")

		So(errors.Is(err, service.ErrUnregisteredVehicle), ShouldBeTrue)
		events, _ := store.FindEventsByPlate(ctx, "XYZ-999")
		So(events, ShouldBeEmpty)
	})

	Convey("Given a failing email generator", t, func() {
		ctx := context.Background()
		clk := &clock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
		store := repository.NewMemoryStore()
		svc := newService(store, brokenGenerator{}, clk)
		_, err := svc.RegisterVehicle(ctx, penalty.Registration{PlateNo: "CAB-4455", OwnerName: "Kamal", VehicleType: "Bike"})
		So(err, ShouldBeNil)

		e, err := svc.AddViolation(ctx, "CAB-4455", "NO_HELMET")

		Convey("Ingestion still succeeds with the template notice", func() {
			So(err, ShouldBeNil)
			So(e.GeneratedEmail, ShouldContainSubstring, "Vehicle No: CAB-4455")
			So(e.GeneratedEmail, ShouldContainSubstring, "Violation Type: No Helmet")
			So(e.DriverEmail, ShouldEqual, penalty.UnknownEmail)

			events, _ := store.FindEventsByPlate(ctx, "CAB-4455")
			So(events, ShouldHaveLength, 1)
		})
	})
}

func TestGetFullProfile(t *testing.T) {
	Convey("Given a plate with aged history and rewards", t, func() {
		ctx := context.Background()
		clk := &clock{t: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
		store := repository.NewMemoryStore()
		svc := newService(store, nil, clk)
		register(ctx, svc, "ABC-123")

		_, err := svc.AddViolation(ctx, "ABC-123", "OBSTRUCTION")
		So(err, ShouldBeNil)
		clk.advance(100 * 24 * time.Hour)
		_, err = svc.AddViolation(ctx, "ABC-123", "RAILWAY")
		So(err, ShouldBeNil)
		So(store.InsertReward(ctx, &penalty.RewardSubmission{PlateNo: "ABC-123", Amount: 250, Timestamp: clk.t}), ShouldBeNil)

		view, err := svc.GetFullProfile(ctx, "ABC-123")

		Convey("Points are split by expiry at request time", func() {
			So(err, ShouldBeNil)
			So(view.Stats.ActivePoints, ShouldEqual, 5.0)
			So(view.Stats.ExpiredPoints, ShouldEqual, 2.0)
			So(view.Stats.RiskLevel, ShouldEqual, penalty.RiskLow)
			So(view.Charts.PenaltyTimeline, ShouldResemble, []penalty.MonthCount{
				{Month: "2025-01", Count: 1},
				{Month: "2025-04", Count: 1},
			})
		})

		Convey("Rewards feed the contribution stats", func() {
			So(view.Stats.TotalRewards, ShouldEqual, 250.0)
			So(view.Stats.TotalContributions, ShouldEqual, 1)
			So(view.Charts.RewardTypes, ShouldResemble, []penalty.TypeCount{{Type: "Other", Count: 1}})
		})

		Convey("The driver snapshot is included", func() {
			So(view.Profile.PlateNo, ShouldEqual, "ABC-123")
			So(view.Profile.OwnerName, ShouldEqual, "Nimal Perera")
		})
	})

	Convey("Given an unknown plate", t, func() {
		svc := newService(repository.NewMemoryStore(), nil, &clock{t: time.Now()})
		_, err := svc.GetFullProfile(context.Background(), "NOPE-1")
		So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
	})

	Convey("Given a store that cannot load rewards", t, func() {
		ctx := context.Background()
		clk := &clock{t: time.Now()}
		store := &failingStore{MemoryStore: repository.NewMemoryStore(), failRewards: true}
		svc := newService(store, nil, clk)
		register(ctx, svc, "ABC-123")

		_, err := svc.GetFullProfile(ctx, "ABC-123")
		So(err, ShouldNotBeNil)
		So(errors.Is(err, service.ErrNotFound), ShouldBeFalse)
	})
}

func TestGetViolation(t *testing.T) {
	Convey("Given an empty store", t, func() {
		svc := newService(repository.NewMemoryStore(), nil, &clock{t: time.Now()})

		Convey("A malformed reference is invalid input", func() {
			_, err := svc.GetViolation(context.Background(), "not-a-uuid")
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("An unknown reference is not found", func() {
			_, err := svc.GetViolation(context.Background(), "7f1c2a3e-9d1b-4c1e-8a3f-2b6d5e4c3a21")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})
	})
}
