package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleettrack/internal/core/model"
)

// PositionRepository stores the append-only fix history of each vehicle.
type PositionRepository interface {
	Insert(ctx context.Context, position *model.Position) error
	// QueryRange returns the vehicle's fixes with from <= timestamp <= to,
	// oldest first.
	QueryRange(ctx context.Context, vehicleID string, from, to time.Time) ([]*model.Position, error)
	FindLatest(ctx context.Context, vehicleID string) (*model.Position, error)
}

type MongoPositionRepository struct {
	collection *mongo.Collection
}

var _ PositionRepository = (*MongoPositionRepository)(nil)

func NewMongoPositionRepository(db *mongo.Database) *MongoPositionRepository {
	return &MongoPositionRepository{
		collection: db.Collection("positions"),
	}
}

func (r *MongoPositionRepository) Insert(ctx context.Context, position *model.Position) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, position)
	return err
}

func (r *MongoPositionRepository) QueryRange(ctx context.Context, vehicleID string, from, to time.Time) ([]*model.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"vehicleid": vehicleID,
		"timestamp": bson.M{"$gte": from, "$lte": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var positions []*model.Position
	if err = cursor.All(ctx, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *MongoPositionRepository) FindLatest(ctx context.Context, vehicleID string) (*model.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.M{"timestamp": -1})
	var position model.Position
	err := r.collection.FindOne(ctx, bson.M{"vehicleid": vehicleID}, opts).Decode(&position)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}
