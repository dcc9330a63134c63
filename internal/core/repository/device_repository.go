package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"fleettrack/internal/core/model"
)

type DeviceRepository interface {
	Create(ctx context.Context, device *model.Device) error
	Update(ctx context.Context, device *model.Device) error
	FindByID(ctx context.Context, id string) (*model.Device, error)
	FindByUniqueID(ctx context.Context, uniqueID string) (*model.Device, error)
	FindAll(ctx context.Context) ([]*model.Device, error)
}

type MongoDeviceRepository struct {
	collection *mongo.Collection
}

var _ DeviceRepository = (*MongoDeviceRepository)(nil)

func NewMongoDeviceRepository(db *mongo.Database) *MongoDeviceRepository {
	return &MongoDeviceRepository{
		collection: db.Collection("devices"),
	}
}

func (r *MongoDeviceRepository) Create(ctx context.Context, device *model.Device) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, device)
	return err
}

func (r *MongoDeviceRepository) Update(ctx context.Context, device *model.Device) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"id": device.ID}, device)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("device %s: %w", device.ID, ErrNotFound)
	}
	return nil
}

func (r *MongoDeviceRepository) FindByID(ctx context.Context, id string) (*model.Device, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

func (r *MongoDeviceRepository) FindByUniqueID(ctx context.Context, uniqueID string) (*model.Device, error) {
	return r.findOne(ctx, bson.M{"uniqueid": uniqueID})
}

func (r *MongoDeviceRepository) findOne(ctx context.Context, filter bson.M) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var device model.Device
	err := r.collection.FindOne(ctx, filter).Decode(&device)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *MongoDeviceRepository) FindAll(ctx context.Context) ([]*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var devices []*model.Device
	if err = cursor.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}
