package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/ecodrive/ecodrive-api/databases"
	"github.com/ecodrive/ecodrive-api/models"
)

// Scheduler handles periodic background jobs
type Scheduler struct {
	cron *cron.Cron
	UDB  databases.UserDatabase
	RDB  databases.ReviewDatabase
}

// NewScheduler creates a new scheduler instance
func NewScheduler(uDB databases.UserDatabase, rDB databases.ReviewDatabase) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		UDB:  uDB,
		RDB:  rDB,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Reconcile rating aggregates daily at 3 AM UTC. Recomputes after a
	// review write can fail without failing the request, so stored
	// aggregates may drift until this job catches them up.
	_, err := s.cron.AddFunc("0 3 * * *", s.ReconcileRatings)
	if err != nil {
		zap.S().Errorw("failed to register rating reconciliation job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Rating scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Rating scheduler stopped")
}

// ReconcileRatings recomputes every user's rating aggregate from the reviews
// collection and rewrites any stored aggregate that has drifted
func (s *Scheduler) ReconcileRatings() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	zap.S().Info("Running rating reconciliation job")

	users, err := s.UDB.Find(ctx, bson.M{})
	if err != nil {
		zap.S().Errorw("failed to find users", "error", err)
		return
	}

	reconciled := 0
	for _, user := range users {
		reviews, err := s.RDB.Find(ctx, bson.M{"reviewedUser": user.ID})
		if err != nil {
			zap.S().Errorw("failed to find reviews", "error", err, "userId", user.ID.Hex())
			continue
		}

		ratings := make([]int, 0, len(reviews))
		for _, review := range reviews {
			ratings = append(ratings, review.Rating)
		}
		rating, count := models.AggregateRating(ratings)

		if user.Stats.Rating == rating && user.Stats.NumberOfRatings == count {
			continue
		}

		_, err = s.UDB.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{
			"$set": bson.M{
				"stats.rating":          rating,
				"stats.numberOfRatings": count,
				"updatedAt":             time.Now(),
			},
		})
		if err != nil {
			zap.S().Errorw("failed to update rating aggregate", "error", err, "userId", user.ID.Hex())
			continue
		}
		reconciled++
		zap.S().Infow("Reconciled rating aggregate",
			"userId", user.ID.Hex(),
			"rating", rating,
			"numberOfRatings", count,
		)
	}

	zap.S().Infow("Rating reconciliation complete",
		"usersChecked", len(users),
		"reconciled", reconciled,
	)
}
