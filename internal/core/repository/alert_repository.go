package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleettrack/internal/core/model"
)

type AlertRepository interface {
	Insert(ctx context.Context, alert *model.Alert) error
	FindByID(ctx context.Context, id string) (*model.Alert, error)
	FindByVehicle(ctx context.Context, vehicleID string) ([]*model.Alert, error)
	MarkRead(ctx context.Context, id string) error
}

type MongoAlertRepository struct {
	collection *mongo.Collection
}

var _ AlertRepository = (*MongoAlertRepository)(nil)

func NewMongoAlertRepository(db *mongo.Database) *MongoAlertRepository {
	return &MongoAlertRepository{
		collection: db.Collection("alerts"),
	}
}

func (r *MongoAlertRepository) Insert(ctx context.Context, alert *model.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, alert)
	return err
}

func (r *MongoAlertRepository) FindByID(ctx context.Context, id string) (*model.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var alert model.Alert
	err := r.collection.FindOne(ctx, bson.M{"id": id}).Decode(&alert)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *MongoAlertRepository) FindByVehicle(ctx context.Context, vehicleID string) ([]*model.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"vehicleid": vehicleID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alerts []*model.Alert
	if err = cursor.All(ctx, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *MongoAlertRepository) MarkRead(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"isread": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}
