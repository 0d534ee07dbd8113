package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRideBookedSeatsCountsAcceptedOnly(t *testing.T) {
	ride := Ride{
		AvailableSeats: 4,
		Passengers: []Passenger{
			{User: primitive.NewObjectID(), Status: BookingStatusAccepted, BookedSeats: 2},
			{User: primitive.NewObjectID(), Status: BookingStatusPending, BookedSeats: 1},
			{User: primitive.NewObjectID(), Status: BookingStatusRejected, BookedSeats: 3},
			{User: primitive.NewObjectID(), Status: BookingStatusCancelled, BookedSeats: 1},
		},
	}

	assert.Equal(t, 2, ride.BookedSeats())
	assert.Equal(t, 2, ride.RemainingSeats())
}

func TestRidePassengerLookupIgnoresStatus(t *testing.T) {
	rejected := primitive.NewObjectID()
	ride := Ride{
		Passengers: []Passenger{
			{User: rejected, Status: BookingStatusRejected, BookedSeats: 1},
		},
	}

	entry := ride.Passenger(rejected)
	assert.NotNil(t, entry)
	assert.Equal(t, BookingStatusRejected, entry.Status)

	assert.Nil(t, ride.Passenger(primitive.NewObjectID()))
}

func TestRideIsParticipant(t *testing.T) {
	driver := primitive.NewObjectID()
	passenger := primitive.NewObjectID()
	ride := Ride{
		Driver: driver,
		Passengers: []Passenger{
			{User: passenger, Status: BookingStatusAccepted, BookedSeats: 1},
		},
	}

	assert.True(t, ride.IsParticipant(driver))
	assert.True(t, ride.IsParticipant(passenger))
	assert.False(t, ride.IsParticipant(primitive.NewObjectID()))
}

func TestRideCanCancelAtDeadlineBoundary(t *testing.T) {
	departure := time.Date(2026, 9, 15, 8, 0, 0, 0, time.UTC)
	ride := Ride{DepartureTime: departure}

	deadline := departure.Add(-24 * time.Hour)

	assert.True(t, ride.CanCancelAt(deadline.Add(-time.Hour)))
	assert.True(t, ride.CanCancelAt(deadline), "cancelling exactly at the deadline is allowed")
	assert.False(t, ride.CanCancelAt(deadline.Add(time.Second)), "one second past the deadline is not")
}

func TestRideDeparted(t *testing.T) {
	departure := time.Date(2026, 9, 15, 8, 0, 0, 0, time.UTC)
	ride := Ride{DepartureTime: departure}

	assert.False(t, ride.Departed(departure.Add(-time.Minute)))
	assert.False(t, ride.Departed(departure))
	assert.True(t, ride.Departed(departure.Add(time.Second)))
}

func TestValidStatusTransition(t *testing.T) {
	assert.True(t, ValidStatusTransition(RideStatusScheduled, RideStatusInProgress))
	assert.True(t, ValidStatusTransition(RideStatusScheduled, RideStatusCancelled))
	assert.True(t, ValidStatusTransition(RideStatusInProgress, RideStatusCompleted))
	assert.True(t, ValidStatusTransition(RideStatusInProgress, RideStatusCancelled))

	assert.False(t, ValidStatusTransition(RideStatusScheduled, RideStatusCompleted))
	assert.False(t, ValidStatusTransition(RideStatusCompleted, RideStatusInProgress))
	assert.False(t, ValidStatusTransition(RideStatusCancelled, RideStatusScheduled))
	assert.False(t, ValidStatusTransition(RideStatusCompleted, RideStatusCancelled))
}

func TestValidSeatCount(t *testing.T) {
	assert.False(t, ValidSeatCount(0))
	assert.True(t, ValidSeatCount(1))
	assert.True(t, ValidSeatCount(8))
	assert.False(t, ValidSeatCount(9))
}
