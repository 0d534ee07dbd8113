package databases

// go generate: mockery --name RideDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecodrive/ecodrive-api/models"
)

const rideCollection = "rides"

// RideDatabase contains the methods to use with the ride database
type RideDatabase interface {
	FindOne(context.Context, interface{}, ...*options.FindOneOptions) (*models.Ride, error)
	Find(context.Context, interface{}, ...*options.FindOptions) ([]models.Ride, error)
	InsertOne(context.Context, interface{}, ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(context.Context, interface{}, interface{}, ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(context.Context, interface{}, ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(context.Context, interface{}, ...*options.CountOptions) (int64, error)
}

type rideDatabase struct {
	db DatabaseHelper
}

// NewRideDatabase initializes a new instance of ride database with the provided db connection
func NewRideDatabase(db DatabaseHelper) RideDatabase {
	return &rideDatabase{
		db: db,
	}
}

func (r *rideDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Ride, error) {
	ride := &models.Ride{}
	err := r.db.Collection(rideCollection).FindOne(ctx, filter, opts...).Decode(ride)
	if err != nil {
		return nil, err
	}
	return ride, nil
}

func (r *rideDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Ride, error) {
	var rides []models.Ride
	cur := r.db.Collection(rideCollection).Find(ctx, filter, opts...)
	err := cur.Decode(&rides)
	if err != nil {
		return nil, err
	}
	return rides, nil
}

func (r *rideDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res := r.db.Collection(rideCollection).InsertOne(ctx, document, opts...)
	return res, nil
}

func (r *rideDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return r.db.Collection(rideCollection).UpdateOne(ctx, filter, update, opts...)
}

func (r *rideDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return r.db.Collection(rideCollection).DeleteOne(ctx, filter, opts...)
}

func (r *rideDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return r.db.Collection(rideCollection).CountDocuments(ctx, filter, opts...)
}
