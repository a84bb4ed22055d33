package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"penalty-service/internal/domain/penalty"
)

const (
	driversCollection    = "drivers"
	violationsCollection = "violations"
	rewardsCollection    = "rewards"
)

type MongoStore struct {
	drivers    *mongo.Collection
	violations *mongo.Collection
	rewards    *mongo.Collection
}

// NewMongoStore binds the three collections and makes sure their indexes
// exist. The unique plate index backs the one-driver-per-plate rule.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		drivers:    db.Collection(driversCollection),
		violations: db.Collection(violationsCollection),
		rewards:    db.Collection(rewardsCollection),
	}

	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.drivers, mongo.IndexModel{
			Keys:    bson.D{{Key: "plate_no", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.violations, mongo.IndexModel{
			Keys: bson.D{{Key: "plate_no", Value: 1}, {Key: "type", Value: 1}},
		}},
		// Violations written before references existed have no such field.
		{s.violations, mongo.IndexModel{
			Keys: bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"reference": bson.M{"$exists": true}}),
		}},
		{s.rewards, mongo.IndexModel{
			Keys: bson.D{{Key: "plate_no", Value: 1}},
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return nil, fmt.Errorf("create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return s, nil
}

type driverDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	PlateNo          string             `bson:"plate_no"`
	Name             string             `bson:"name"`
	Email            *string            `bson:"email,omitempty"`
	VehicleType      string             `bson:"vehicle_type"`
	RegisteredAt     time.Time          `bson:"registered_at"`
	ContributorLevel string             `bson:"contributor_level"`
	UploadCount      int                `bson:"upload_count"`
}

type violationDoc struct {
	ID             primitive.ObjectID    `bson:"_id,omitempty"`
	Reference      string                `bson:"reference"`
	PlateNo        string                `bson:"plate_no"`
	Type           string                `bson:"type"`
	Label          string                `bson:"label"`
	Weight         float64               `bson:"weight"`
	Multiplier     float64               `bson:"multiplier"`
	Points         float64               `bson:"points"`
	Timestamp      time.Time             `bson:"timestamp"`
	ExpiryDate     time.Time             `bson:"expiry_date"`
	GeneratedEmail string                `bson:"generated_email,omitempty"`
	DriverEmail    string                `bson:"driver_email,omitempty"`
	PenaltySplit   *penalty.PenaltySplit `bson:"penalty_split,omitempty"`
}

type rewardDoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	PlateNo           string             `bson:"plate_no"`
	Amount            float64            `bson:"amount"`
	Timestamp         time.Time          `bson:"timestamp"`
	ViolationReported string             `bson:"violation_reported,omitempty"`
}

var insertionOrder = options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

func (s *MongoStore) FindDriver(ctx context.Context, plateNo string) (*penalty.Driver, error) {
	var doc driverDoc
	err := s.drivers.FindOne(ctx, bson.M{"plate_no": plateNo}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &penalty.Driver{
		PlateNo:          doc.PlateNo,
		OwnerName:        doc.Name,
		Email:            doc.Email,
		VehicleType:      doc.VehicleType,
		RegisteredAt:     doc.RegisteredAt,
		ContributorLevel: doc.ContributorLevel,
		UploadCount:      doc.UploadCount,
	}, nil
}

func (s *MongoStore) InsertDriver(ctx context.Context, driver *penalty.Driver) error {
	_, err := s.drivers.InsertOne(ctx, driverDoc{
		PlateNo:          driver.PlateNo,
		Name:             driver.OwnerName,
		Email:            driver.Email,
		VehicleType:      driver.VehicleType,
		RegisteredAt:     driver.RegisteredAt,
		ContributorLevel: driver.ContributorLevel,
		UploadCount:      driver.UploadCount,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (s *MongoStore) CountEvents(ctx context.Context, plateNo, code string) (int64, error) {
	return s.violations.CountDocuments(ctx, bson.M{"plate_no": plateNo, "type": code})
}

func (s *MongoStore) InsertEvent(ctx context.Context, event *penalty.ViolationEvent) error {
	_, err := s.violations.InsertOne(ctx, violationDoc{
		Reference:      event.Reference,
		PlateNo:        event.PlateNo,
		Type:           event.Type,
		Label:          event.Label,
		Weight:         event.Weight,
		Multiplier:     event.Multiplier,
		Points:         event.Points,
		Timestamp:      event.Timestamp,
		ExpiryDate:     event.ExpiryDate,
		GeneratedEmail: event.GeneratedEmail,
		DriverEmail:    event.DriverEmail,
		PenaltySplit:   event.PenaltySplit,
	})
	return err
}

func (s *MongoStore) FindEventsByPlate(ctx context.Context, plateNo string) ([]penalty.ViolationEvent, error) {
	cur, err := s.violations.Find(ctx, bson.M{"plate_no": plateNo}, insertionOrder)
	if err != nil {
		return nil, err
	}
	var docs []violationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	events := make([]penalty.ViolationEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, doc.toDomain())
	}
	return events, nil
}

func (s *MongoStore) FindEventByReference(ctx context.Context, reference string) (*penalty.ViolationEvent, error) {
	var doc violationDoc
	err := s.violations.FindOne(ctx, bson.M{"reference": reference}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	event := doc.toDomain()
	return &event, nil
}

func (s *MongoStore) FindRewardsByPlate(ctx context.Context, plateNo string) ([]penalty.RewardSubmission, error) {
	cur, err := s.rewards.Find(ctx, bson.M{"plate_no": plateNo}, insertionOrder)
	if err != nil {
		return nil, err
	}
	var docs []rewardDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	rewards := make([]penalty.RewardSubmission, 0, len(docs))
	for _, doc := range docs {
		rewards = append(rewards, penalty.RewardSubmission{
			PlateNo:           doc.PlateNo,
			Amount:            doc.Amount,
			Timestamp:         doc.Timestamp,
			ViolationReported: doc.ViolationReported,
		})
	}
	return rewards, nil
}

func (s *MongoStore) InsertReward(ctx context.Context, reward *penalty.RewardSubmission) error {
	_, err := s.rewards.InsertOne(ctx, rewardDoc{
		PlateNo:           reward.PlateNo,
		Amount:            reward.Amount,
		Timestamp:         reward.Timestamp,
		ViolationReported: reward.ViolationReported,
	})
	return err
}

func (d violationDoc) toDomain() penalty.ViolationEvent {
	return penalty.ViolationEvent{
		Reference:      d.Reference,
		PlateNo:        d.PlateNo,
		Type:           d.Type,
		Label:          d.Label,
		Weight:         d.Weight,
		Multiplier:     d.Multiplier,
		Points:         d.Points,
		Timestamp:      d.Timestamp,
		ExpiryDate:     d.ExpiryDate,
		GeneratedEmail: d.GeneratedEmail,
		DriverEmail:    d.DriverEmail,
		PenaltySplit:   d.PenaltySplit,
	}
}
