package databases

// go generate: mockery --name ReviewDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecodrive/ecodrive-api/models"
)

const reviewCollection = "reviews"

// ReviewDatabase contains the methods to use with the review database
type ReviewDatabase interface {
	FindOne(context.Context, interface{}, ...*options.FindOneOptions) (*models.Review, error)
	Find(context.Context, interface{}, ...*options.FindOptions) ([]models.Review, error)
	FindByReviewedUser(context.Context, interface{}, int, int) ([]models.Review, error)
	InsertOne(context.Context, interface{}, ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(context.Context, interface{}, interface{}, ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(context.Context, interface{}, ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(context.Context, interface{}, ...*options.CountOptions) (int64, error)
}

type reviewDatabase struct {
	db DatabaseHelper
}

// NewReviewDatabase initializes a new instance of review database with the provided db connection
func NewReviewDatabase(db DatabaseHelper) ReviewDatabase {
	return &reviewDatabase{
		db: db,
	}
}

func (rv *reviewDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Review, error) {
	review := &models.Review{}
	err := rv.db.Collection(reviewCollection).FindOne(ctx, filter, opts...).Decode(review)
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (rv *reviewDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Review, error) {
	var reviews []models.Review
	cur := rv.db.Collection(reviewCollection).Find(ctx, filter, opts...)
	err := cur.Decode(&reviews)
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

// FindByReviewedUser returns a page of reviews addressed to a user, newest first
func (rv *reviewDatabase) FindByReviewedUser(ctx context.Context, userID interface{}, limit, page int) ([]models.Review, error) {
	opts := newMongoPaginate(limit, page).getPaginatedOpts()
	opts.SetSort(bson.M{"createdAt": -1})
	return rv.Find(ctx, bson.M{"reviewedUser": userID}, opts)
}

func (rv *reviewDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res := rv.db.Collection(reviewCollection).InsertOne(ctx, document, opts...)
	return res, nil
}

func (rv *reviewDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return rv.db.Collection(reviewCollection).UpdateOne(ctx, filter, update, opts...)
}

func (rv *reviewDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return rv.db.Collection(reviewCollection).DeleteOne(ctx, filter, opts...)
}

func (rv *reviewDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return rv.db.Collection(reviewCollection).CountDocuments(ctx, filter, opts...)
}
