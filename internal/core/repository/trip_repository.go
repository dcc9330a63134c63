package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleettrack/internal/core/model"
)

type TripRepository interface {
	Create(ctx context.Context, trip *model.Trip) error
	Update(ctx context.Context, trip *model.Trip) error
	// FindOpen returns the vehicle's trip without an end time, or nil.
	FindOpen(ctx context.Context, vehicleID string) (*model.Trip, error)
	FindByVehicle(ctx context.Context, vehicleID string) ([]*model.Trip, error)
}

type MongoTripRepository struct {
	collection *mongo.Collection
}

var _ TripRepository = (*MongoTripRepository)(nil)

func NewMongoTripRepository(db *mongo.Database) *MongoTripRepository {
	return &MongoTripRepository{
		collection: db.Collection("trips"),
	}
}

func (r *MongoTripRepository) Create(ctx context.Context, trip *model.Trip) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, trip)
	return err
}

func (r *MongoTripRepository) Update(ctx context.Context, trip *model.Trip) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"id": trip.ID}, trip)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("trip %s: %w", trip.ID, ErrNotFound)
	}
	return nil
}

func (r *MongoTripRepository) FindOpen(ctx context.Context, vehicleID string) (*model.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var trip model.Trip
	err := r.collection.FindOne(ctx, bson.M{"vehicleid": vehicleID, "endtime": nil}).Decode(&trip)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *MongoTripRepository) FindByVehicle(ctx context.Context, vehicleID string) ([]*model.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "starttime", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"vehicleid": vehicleID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var trips []*model.Trip
	if err = cursor.All(ctx, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}
