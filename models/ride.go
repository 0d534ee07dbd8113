package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ride lifecycle statuses
const (
	RideStatusScheduled  = "scheduled"
	RideStatusInProgress = "in-progress"
	RideStatusCompleted  = "completed"
	RideStatusCancelled  = "cancelled"
)

// Passenger entry statuses
const (
	BookingStatusPending   = "pending"
	BookingStatusAccepted  = "accepted"
	BookingStatusRejected  = "rejected"
	BookingStatusCancelled = "cancelled"
)

// Seat capacity bounds for a ride
const (
	MinSeats = 1
	MaxSeats = 8
)

// CancellationWindow is how long before departure a passenger can still
// cancel their booking
const CancellationWindow = 24 * time.Hour

// GeoPoint is a GeoJSON point
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

// Endpoint is one end of a ride's route
type Endpoint struct {
	City     string    `json:"city" bson:"city"`
	Address  string    `json:"address,omitempty" bson:"address,omitempty"`
	Location *GeoPoint `json:"location,omitempty" bson:"location,omitempty"`
}

// Preferences holds the boolean ride preference flags
type Preferences struct {
	Smoking        bool `json:"smoking" bson:"smoking"`
	Music          bool `json:"music" bson:"music"`
	Pets           bool `json:"pets" bson:"pets"`
	AirConditioned bool `json:"airConditioned" bson:"airConditioned"`
}

// Passenger is one user's seat request against a ride, carrying its own status
type Passenger struct {
	User        primitive.ObjectID `json:"user" bson:"user"`
	Status      string             `json:"status" bson:"status"`
	BookedSeats int                `json:"bookedSeats" bson:"bookedSeats"`
	BookingTime time.Time          `json:"bookingTime" bson:"bookingTime"`
}

// Ride holds the structure for the ride collection in mongo
type Ride struct {
	ID                   primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Driver               primitive.ObjectID `json:"driver" bson:"driver"`
	Departure            Endpoint           `json:"departure" bson:"departure"`
	Destination          Endpoint           `json:"destination" bson:"destination"`
	Route                string             `json:"route,omitempty" bson:"route,omitempty"`
	Distance             float64            `json:"distance" bson:"distance"`
	Duration             float64            `json:"duration" bson:"duration"`
	DepartureTime        time.Time          `json:"departureTime" bson:"departureTime"`
	EstimatedArrivalTime time.Time          `json:"estimatedArrivalTime" bson:"estimatedArrivalTime"`
	Price                float64            `json:"price" bson:"price"`
	AvailableSeats       int                `json:"availableSeats" bson:"availableSeats"`
	Preferences          Preferences        `json:"preferences" bson:"preferences"`
	Description          string             `json:"description,omitempty" bson:"description,omitempty"`
	Status               string             `json:"status" bson:"status"`
	Passengers           []Passenger        `json:"passengers" bson:"passengers"`
	CreatedAt            time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// RideWithDriver is a ride with the driver's public summary attached
type RideWithDriver struct {
	Ride
	DriverSummary *UserSummary `json:"driverSummary,omitempty" bson:"driverSummary,omitempty"`
}

// BookedSeats returns the number of seats held by accepted bookings
func (r Ride) BookedSeats() int {
	seats := 0
	for _, p := range r.Passengers {
		if p.Status == BookingStatusAccepted {
			seats += p.BookedSeats
		}
	}
	return seats
}

// RemainingSeats returns availableSeats minus seats held by accepted bookings
func (r Ride) RemainingSeats() int {
	return r.AvailableSeats - r.BookedSeats()
}

// Passenger returns the passenger entry for the given user, regardless of
// the entry's status, or nil if the user never booked this ride
func (r Ride) Passenger(userID primitive.ObjectID) *Passenger {
	for i := range r.Passengers {
		if r.Passengers[i].User == userID {
			return &r.Passengers[i]
		}
	}
	return nil
}

// IsParticipant reports whether the user is the driver or holds a passenger
// entry on the ride
func (r Ride) IsParticipant(userID primitive.ObjectID) bool {
	return r.Driver == userID || r.Passenger(userID) != nil
}

// CanCancelAt reports whether a passenger may still cancel at the given
// time. Cancelling exactly at departureTime minus the window is allowed,
// one second later is not.
func (r Ride) CanCancelAt(now time.Time) bool {
	deadline := r.DepartureTime.Add(-CancellationWindow)
	return !now.After(deadline)
}

// Departed reports whether the ride's departure time has passed
func (r Ride) Departed(now time.Time) bool {
	return now.After(r.DepartureTime)
}

// ValidStatusTransition reports whether a ride may move from one lifecycle
// status to another. Cancellation is allowed from any non-terminal status.
func ValidStatusTransition(from, to string) bool {
	switch from {
	case RideStatusScheduled:
		return to == RideStatusInProgress || to == RideStatusCancelled
	case RideStatusInProgress:
		return to == RideStatusCompleted || to == RideStatusCancelled
	}
	return false
}

// ValidSeatCount reports whether the seat capacity is within bounds
func ValidSeatCount(seats int) bool {
	return seats >= MinSeats && seats <= MaxSeats
}
