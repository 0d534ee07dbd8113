package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/config"
	"github.com/ecodrive/ecodrive-api/models"
)

type bookingRequest struct {
	Seats int `json:"seats"`
}

// CreateBookingHandler adds a pending passenger entry to a ride. The whole
// read-check-write runs under the ride's lock so two concurrent bookings
// cannot both pass the capacity check against a stale read.
func (rh Ride) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]

	rID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	uID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	req := bookingRequest{Seats: 1}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
			return
		}
	}
	if req.Seats < 1 {
		config.ErrorStatus("seats must be at least 1", http.StatusBadRequest, w, fmt.Errorf("got %d", req.Seats))
		return
	}

	rideLocks.Lock(rideID)
	defer rideLocks.Unlock(rideID)

	ride, err := rh.DB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	if ride.Driver == uID {
		config.ErrorStatus("drivers cannot book their own ride", http.StatusForbidden, w, fmt.Errorf("requester is the driver"))
		return
	}
	// Any prior entry blocks a new booking, whatever its status. A user
	// whose booking was rejected or cancelled cannot re-book this ride.
	if ride.Passenger(uID) != nil {
		config.ErrorStatus("already booked on this ride", http.StatusConflict, w, fmt.Errorf("existing passenger entry for user %s", requesterID))
		return
	}
	if ride.RemainingSeats() < req.Seats {
		config.ErrorStatus("not enough seats available", http.StatusConflict, w, fmt.Errorf("requested %d, remaining %d", req.Seats, ride.RemainingSeats()))
		return
	}

	entry := models.Passenger{
		User:        uID,
		Status:      models.BookingStatusPending,
		BookedSeats: req.Seats,
		BookingTime: time.Now(),
	}
	_, err = rh.DB.UpdateOne(context.Background(), bson.M{"_id": rID},
		bson.M{"$push": bson.M{"passengers": entry}, "$set": bson.M{"updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to create booking", http.StatusInternalServerError, w, err)
		return
	}

	ride.Passengers = append(ride.Passengers, entry)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ride)
}

// ConfirmBookingHandler accepts a pending booking, re-validating the seat
// capacity before committing
func (rh Ride) ConfirmBookingHandler(w http.ResponseWriter, r *http.Request) {
	rh.resolveBooking(w, r, models.BookingStatusAccepted)
}

// RejectBookingHandler rejects a pending booking
func (rh Ride) RejectBookingHandler(w http.ResponseWriter, r *http.Request) {
	rh.resolveBooking(w, r, models.BookingStatusRejected)
}

func (rh Ride) resolveBooking(w http.ResponseWriter, r *http.Request, status string) {
	rideID := mux.Vars(r)["ride_id"]
	passengerID := mux.Vars(r)["user_id"]

	rID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	pID, err := primitive.ObjectIDFromHex(passengerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	rideLocks.Lock(rideID)
	defer rideLocks.Unlock(rideID)

	ride, err := rh.DB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	if ride.Driver.Hex() != api.RequestUserID(r) {
		config.ErrorStatus("only the ride's driver can resolve bookings", http.StatusForbidden, w, fmt.Errorf("requester is not the driver"))
		return
	}

	entry := ride.Passenger(pID)
	if entry == nil {
		config.ErrorStatus("no booking found for user", http.StatusNotFound, w, fmt.Errorf("no passenger entry for user %s", passengerID))
		return
	}
	if entry.Status != models.BookingStatusPending {
		config.ErrorStatus("booking is not pending", http.StatusBadRequest, w, fmt.Errorf("booking status is %s", entry.Status))
		return
	}
	// Accepting consumes seats, so the capacity invariant is re-checked at
	// the commit point
	if status == models.BookingStatusAccepted && ride.BookedSeats()+entry.BookedSeats > ride.AvailableSeats {
		config.ErrorStatus("not enough seats available", http.StatusConflict, w, fmt.Errorf("accepting %d seats exceeds capacity %d", entry.BookedSeats, ride.AvailableSeats))
		return
	}

	_, err = rh.DB.UpdateOne(context.Background(),
		bson.M{"_id": rID, "passengers.user": pID},
		bson.M{"$set": bson.M{"passengers.$.status": status, "updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to update booking", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Debugf("booking for user %s on ride %s resolved to %s", passengerID, rideID, status)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Booking " + status,
		"status":  status,
	})
}

// CancelBookingHandler removes the requester's passenger entry from a ride.
// Cancelling exactly at the 24h deadline is allowed, one second later is not.
func (rh Ride) CancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]

	rID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	uID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	rideLocks.Lock(rideID)
	defer rideLocks.Unlock(rideID)

	ride, err := rh.DB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	if ride.Passenger(uID) == nil {
		config.ErrorStatus("no booking found for user", http.StatusNotFound, w, fmt.Errorf("no passenger entry for user %s", requesterID))
		return
	}
	if !ride.CanCancelAt(time.Now()) {
		config.ErrorStatus("too late to cancel", http.StatusBadRequest, w, fmt.Errorf("cancellation closes 24h before departure"))
		return
	}

	_, err = rh.DB.UpdateOne(context.Background(), bson.M{"_id": rID},
		bson.M{"$pull": bson.M{"passengers": bson.M{"user": uID}}, "$set": bson.M{"updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to cancel booking", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Booking cancelled",
	})
}
