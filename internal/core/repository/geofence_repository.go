package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"fleettrack/internal/core/model"
)

type GeofenceRepository interface {
	Create(ctx context.Context, geofence *model.Geofence) error
	FindByID(ctx context.Context, id string) (*model.Geofence, error)
	FindByOrganization(ctx context.Context, organizationID string) ([]*model.Geofence, error)
}

type MongoGeofenceRepository struct {
	collection *mongo.Collection
}

var _ GeofenceRepository = (*MongoGeofenceRepository)(nil)

func NewMongoGeofenceRepository(db *mongo.Database) *MongoGeofenceRepository {
	return &MongoGeofenceRepository{
		collection: db.Collection("geofences"),
	}
}

func (r *MongoGeofenceRepository) Create(ctx context.Context, geofence *model.Geofence) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, geofence)
	return err
}

func (r *MongoGeofenceRepository) FindByID(ctx context.Context, id string) (*model.Geofence, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var geofence model.Geofence
	err := r.collection.FindOne(ctx, bson.M{"id": id}).Decode(&geofence)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &geofence, nil
}

func (r *MongoGeofenceRepository) FindByOrganization(ctx context.Context, organizationID string) ([]*model.Geofence, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"organizationid": organizationID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var geofences []*model.Geofence
	if err = cursor.All(ctx, &geofences); err != nil {
		return nil, err
	}
	return geofences, nil
}
