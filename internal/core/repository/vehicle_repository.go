package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"fleettrack/internal/core/model"
)

type VehicleRepository interface {
	Create(ctx context.Context, vehicle *model.Vehicle) error
	Update(ctx context.Context, vehicle *model.Vehicle) error
	FindByID(ctx context.Context, id string) (*model.Vehicle, error)
	FindAll(ctx context.Context) ([]*model.Vehicle, error)
	// TouchConnection records the last time the vehicle's device was heard from.
	TouchConnection(ctx context.Context, id string, at time.Time) error
}

type MongoVehicleRepository struct {
	collection *mongo.Collection
}

var _ VehicleRepository = (*MongoVehicleRepository)(nil)

func NewMongoVehicleRepository(db *mongo.Database) *MongoVehicleRepository {
	return &MongoVehicleRepository{
		collection: db.Collection("vehicles"),
	}
}

func (r *MongoVehicleRepository) Create(ctx context.Context, vehicle *model.Vehicle) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, vehicle)
	return err
}

func (r *MongoVehicleRepository) Update(ctx context.Context, vehicle *model.Vehicle) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"id": vehicle.ID}, vehicle)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("vehicle %s: %w", vehicle.ID, ErrNotFound)
	}
	return nil
}

func (r *MongoVehicleRepository) FindByID(ctx context.Context, id string) (*model.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var vehicle model.Vehicle
	err := r.collection.FindOne(ctx, bson.M{"id": id}).Decode(&vehicle)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (r *MongoVehicleRepository) FindAll(ctx context.Context) ([]*model.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var vehicles []*model.Vehicle
	if err = cursor.All(ctx, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (r *MongoVehicleRepository) TouchConnection(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// $max keeps the column monotonic when touches race.
	res, err := r.collection.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$max": bson.M{"lastconnection": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	return nil
}
