package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleettrack/internal/core/model"
)

type CommandRepository interface {
	Create(ctx context.Context, command *model.Command) error
	Update(ctx context.Context, command *model.Command) error
	FindByID(ctx context.Context, id string) (*model.Command, error)
	// FindByServerFlag finds the command a device reply refers to.
	FindByServerFlag(ctx context.Context, deviceID string, flag uint32) (*model.Command, error)
	// FindOldestSent returns the earliest sent, unanswered command of a device.
	FindOldestSent(ctx context.Context, deviceID string) (*model.Command, error)
}

type MongoCommandRepository struct {
	collection *mongo.Collection
}

var _ CommandRepository = (*MongoCommandRepository)(nil)

func NewMongoCommandRepository(db *mongo.Database) *MongoCommandRepository {
	return &MongoCommandRepository{
		collection: db.Collection("commands"),
	}
}

func (r *MongoCommandRepository) Create(ctx context.Context, command *model.Command) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, command)
	return err
}

func (r *MongoCommandRepository) Update(ctx context.Context, command *model.Command) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"id": command.ID}, command)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("command %s: %w", command.ID, ErrNotFound)
	}
	return nil
}

func (r *MongoCommandRepository) FindByID(ctx context.Context, id string) (*model.Command, error) {
	return r.findOne(ctx, bson.M{"id": id}, nil)
}

func (r *MongoCommandRepository) FindByServerFlag(ctx context.Context, deviceID string, flag uint32) (*model.Command, error) {
	return r.findOne(ctx, bson.M{"deviceid": deviceID, "serverflag": flag}, nil)
}

func (r *MongoCommandRepository) FindOldestSent(ctx context.Context, deviceID string) (*model.Command, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "sentat", Value: 1}})
	return r.findOne(ctx, bson.M{"deviceid": deviceID, "status": model.CommandSent}, opts)
}

func (r *MongoCommandRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*model.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var command model.Command
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&command)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&command)
	}
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &command, nil
}
