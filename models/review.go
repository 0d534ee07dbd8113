package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review types, named for who wrote the review
const (
	ReviewTypeDriver    = "driver"
	ReviewTypePassenger = "passenger"
)

// EditWindow is how long after creation a review stays editable
const EditWindow = 48 * time.Hour

// MaxCommentLength bounds the review comment
const MaxCommentLength = 500

// Review holds the structure for the review collection in mongo
type Review struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Ride         primitive.ObjectID `json:"ride" bson:"ride"`
	Reviewer     primitive.ObjectID `json:"reviewer" bson:"reviewer"`
	ReviewedUser primitive.ObjectID `json:"reviewedUser" bson:"reviewedUser"`
	Rating       int                `json:"rating" bson:"rating"`
	Comment      string             `json:"comment,omitempty" bson:"comment,omitempty"`
	Type         string             `json:"type" bson:"type"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ReviewWithReviewer is a review with the reviewer's public summary attached
type ReviewWithReviewer struct {
	Review
	ReviewerSummary *UserSummary `json:"reviewerSummary,omitempty" bson:"reviewerSummary,omitempty"`
}

// EditableAt reports whether the review may still be edited at the given
// time. The window is inclusive: a review created exactly EditWindow ago is
// still editable.
func (rv Review) EditableAt(now time.Time) bool {
	return !now.After(rv.CreatedAt.Add(EditWindow))
}

// ValidRating reports whether the rating is within the 1-5 scale
func ValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}

// AggregateRating returns the mean of the given ratings rounded to one
// decimal, and the count. An empty set yields 0.
func AggregateRating(ratings []int) (float64, int) {
	if len(ratings) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	mean := float64(sum) / float64(len(ratings))
	return math.Round(mean*10) / 10, len(ratings)
}
