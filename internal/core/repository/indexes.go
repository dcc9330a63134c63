package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the ingestion queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	byCollection := map[string][]mongo.IndexModel{
		"devices": {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "uniqueid", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"vehicles": {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"positions": {
			{Keys: bson.D{{Key: "vehicleid", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		"trips": {
			{Keys: bson.D{{Key: "vehicleid", Value: 1}, {Key: "endtime", Value: 1}}},
		},
		"geofences": {
			{Keys: bson.D{{Key: "organizationid", Value: 1}}},
		},
		"alerts": {
			{Keys: bson.D{{Key: "vehicleid", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		"commands": {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "deviceid", Value: 1}, {Key: "serverflag", Value: 1}}},
		},
	}
	for name, models := range byCollection {
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		_, err := db.Collection(name).Indexes().CreateMany(ctx, models)
		cancel()
		if err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
