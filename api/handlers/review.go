package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/config"
	"github.com/ecodrive/ecodrive-api/databases"
	"github.com/ecodrive/ecodrive-api/models"
)

// Review exported for testing purposes
type Review struct {
	DB  databases.ReviewDatabase
	RDB databases.RideDatabase
	UDB databases.UserDatabase
}

type createReviewRequest struct {
	RideID  string `json:"rideId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

// CreateReviewHandler creates a review for a completed ride and recomputes
// the reviewed user's rating aggregate
func (rv Review) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	if !models.ValidRating(req.Rating) {
		config.ErrorStatus("rating must be between 1 and 5", http.StatusBadRequest, w, fmt.Errorf("got %d", req.Rating))
		return
	}
	if len(req.Comment) > models.MaxCommentLength {
		config.ErrorStatus("comment exceeds 500 characters", http.StatusBadRequest, w, fmt.Errorf("got %d characters", len(req.Comment)))
		return
	}

	rID, err := primitive.ObjectIDFromHex(req.RideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	reviewerID, err := primitive.ObjectIDFromHex(api.RequestUserID(r))
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ride, err := rv.RDB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	if !ride.Departed(time.Now()) {
		config.ErrorStatus("cannot review a ride before its departure", http.StatusBadRequest, w, fmt.Errorf("departure is at %v", ride.DepartureTime))
		return
	}
	if !ride.IsParticipant(reviewerID) {
		config.ErrorStatus("only ride participants can leave reviews", http.StatusForbidden, w, fmt.Errorf("user %s was not on this ride", reviewerID.Hex()))
		return
	}

	count, err := rv.DB.CountDocuments(context.TODO(), bson.M{"ride": rID, "reviewer": reviewerID})
	if err != nil {
		config.ErrorStatus("failed to check existing review", http.StatusInternalServerError, w, err)
		return
	}
	if count > 0 {
		config.ErrorStatus("ride already reviewed", http.StatusConflict, w, fmt.Errorf("existing review for this ride and reviewer"))
		return
	}

	// A passenger reviews the driver. The driver's review goes to the first
	// passenger entry whatever its status; a multi-passenger ride only ever
	// lets the driver review that first entry. Known product limitation.
	var reviewedUser primitive.ObjectID
	var reviewType string
	if ride.Driver == reviewerID {
		if len(ride.Passengers) == 0 {
			config.ErrorStatus("ride has no passengers to review", http.StatusBadRequest, w, fmt.Errorf("empty passenger list"))
			return
		}
		reviewedUser = ride.Passengers[0].User
		reviewType = models.ReviewTypePassenger
	} else {
		reviewedUser = ride.Driver
		reviewType = models.ReviewTypeDriver
	}

	now := time.Now()
	review := models.Review{
		ID:           primitive.NewObjectID(),
		Ride:         rID,
		Reviewer:     reviewerID,
		ReviewedUser: reviewedUser,
		Rating:       req.Rating,
		Comment:      req.Comment,
		Type:         reviewType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = rv.DB.InsertOne(context.Background(), review)
	if err != nil {
		config.ErrorStatus("failed to create review", http.StatusInternalServerError, w, err)
		return
	}

	rv.respondWithRecompute(w, http.StatusCreated, review, reviewedUser)
}

// UpdateReviewHandler edits a review within its 48h edit window and
// recomputes the reviewed user's aggregate rating
func (rv Review) UpdateReviewHandler(w http.ResponseWriter, r *http.Request) {
	reviewID := mux.Vars(r)["review_id"]

	rvID, err := primitive.ObjectIDFromHex(reviewID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	review, err := rv.DB.FindOne(context.Background(), bson.M{"_id": rvID})
	if err != nil {
		config.ErrorStatus("failed to get review by ID", http.StatusNotFound, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	if review.Reviewer.Hex() != requesterID && api.RequestUserRole(r) != models.RoleAdmin {
		config.ErrorStatus("only the review's author can edit it", http.StatusForbidden, w, fmt.Errorf("requester %s is not the author", requesterID))
		return
	}
	if !review.EditableAt(time.Now()) {
		config.ErrorStatus("review can no longer be edited", http.StatusBadRequest, w, fmt.Errorf("edit window closes 48h after creation"))
		return
	}

	var req updateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if req.Rating != nil {
		if !models.ValidRating(*req.Rating) {
			config.ErrorStatus("rating must be between 1 and 5", http.StatusBadRequest, w, fmt.Errorf("got %d", *req.Rating))
			return
		}
		set["rating"] = *req.Rating
		review.Rating = *req.Rating
	}
	if req.Comment != nil {
		if len(*req.Comment) > models.MaxCommentLength {
			config.ErrorStatus("comment exceeds 500 characters", http.StatusBadRequest, w, fmt.Errorf("got %d characters", len(*req.Comment)))
			return
		}
		set["comment"] = *req.Comment
		review.Comment = *req.Comment
	}

	_, err = rv.DB.UpdateOne(context.Background(), bson.M{"_id": rvID}, bson.M{"$set": set})
	if err != nil {
		config.ErrorStatus("failed to update review", http.StatusInternalServerError, w, err)
		return
	}

	rv.respondWithRecompute(w, http.StatusOK, *review, review.ReviewedUser)
}

// DeleteReviewHandler deletes a review and recomputes the reviewed user's
// aggregate from the remaining reviews
func (rv Review) DeleteReviewHandler(w http.ResponseWriter, r *http.Request) {
	reviewID := mux.Vars(r)["review_id"]

	rvID, err := primitive.ObjectIDFromHex(reviewID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	review, err := rv.DB.FindOne(context.Background(), bson.M{"_id": rvID})
	if err != nil {
		config.ErrorStatus("failed to get review by ID", http.StatusNotFound, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	if review.Reviewer.Hex() != requesterID && api.RequestUserRole(r) != models.RoleAdmin {
		config.ErrorStatus("only the review's author can delete it", http.StatusForbidden, w, fmt.Errorf("requester %s is not the author", requesterID))
		return
	}

	_, err = rv.DB.DeleteOne(context.Background(), bson.M{"_id": rvID})
	if err != nil {
		config.ErrorStatus("failed to delete review", http.StatusInternalServerError, w, err)
		return
	}

	resp := map[string]interface{}{
		"message": "Review deleted successfully",
	}
	if err := rv.RecomputeUserRating(context.Background(), review.ReviewedUser); err != nil {
		zap.S().Errorw("review deleted but rating recompute failed",
			"reviewedUser", review.ReviewedUser.Hex(),
			"error", err)
		resp["warning"] = "rating aggregate update is pending"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// ReviewsByUserHandler returns a page of reviews addressed to a user with
// the reviewers' public summaries attached
func (rv Review) ReviewsByUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || Limit <= 0 {
		Limit = 10
	}
	page := getPage(r)

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reviews, err := rv.DB.FindByReviewedUser(ctx, uID, Limit, page+1)
	if err != nil {
		config.ErrorStatus("failed to get reviews by user", http.StatusNotFound, w, err)
		return
	}

	data := make([]models.ReviewWithReviewer, 0, len(reviews))
	ids := make([]primitive.ObjectID, 0, len(reviews))
	seen := map[primitive.ObjectID]bool{}
	for _, review := range reviews {
		if !seen[review.Reviewer] {
			seen[review.Reviewer] = true
			ids = append(ids, review.Reviewer)
		}
	}
	summaries := map[primitive.ObjectID]models.UserSummary{}
	if len(ids) > 0 {
		reviewers, err := rv.UDB.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			zap.S().Warnw("failed to attach reviewer summaries", "error", err)
		}
		for _, u := range reviewers {
			summaries[u.ID] = u.Summary()
		}
	}
	for _, review := range reviews {
		item := models.ReviewWithReviewer{Review: review}
		if s, ok := summaries[review.Reviewer]; ok {
			summary := s
			item.ReviewerSummary = &summary
		}
		data = append(data, item)
	}

	b, err := json.Marshal(data)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// RecomputeUserRating re-derives a user's rating aggregate from every review
// currently addressed to them. The full re-scan is O(n) per write but always
// correct, and re-running it is safe. Runs under the user's lock so two
// concurrent review writes cannot interleave their stats updates.
func (rv Review) RecomputeUserRating(ctx context.Context, userID primitive.ObjectID) error {
	key := userID.Hex()
	userLocks.Lock(key)
	defer userLocks.Unlock(key)

	reviews, err := rv.DB.Find(ctx, bson.M{"reviewedUser": userID})
	if err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}

	ratings := make([]int, 0, len(reviews))
	for _, review := range reviews {
		ratings = append(ratings, review.Rating)
	}
	rating, count := models.AggregateRating(ratings)

	_, err = rv.UDB.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"stats.rating": rating, "stats.numberOfRatings": count}})
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	return nil
}

// respondWithRecompute writes the review response, downgrading to a warning
// when the post-write recompute fails. The committed review is never rolled
// back for a failed aggregate update.
func (rv Review) respondWithRecompute(w http.ResponseWriter, status int, review models.Review, reviewedUser primitive.ObjectID) {
	resp := map[string]interface{}{
		"review": review,
	}
	if err := rv.RecomputeUserRating(context.Background(), reviewedUser); err != nil {
		zap.S().Errorw("review committed but rating recompute failed",
			"review", review.ID.Hex(),
			"reviewedUser", reviewedUser.Hex(),
			"error", err)
		resp["warning"] = "rating aggregate update is pending"
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
