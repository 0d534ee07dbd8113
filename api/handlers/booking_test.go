package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/api/handlers"
	"github.com/ecodrive/ecodrive-api/databases/mocks"
	"github.com/ecodrive/ecodrive-api/models"
)

func bookingRequestFor(t *testing.T, rideID primitive.ObjectID, userID primitive.ObjectID, role, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("POST", "/api/v1/ride/"+rideID.Hex()+"/book", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex()})
	return api.SetRequestIdentity(req, userID.Hex(), role)
}

func TestBooking_DriverCannotBookOwnRide(t *testing.T) {
	driver := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         driver,
		AvailableSeats: 3,
		DepartureTime:  time.Now().Add(72 * time.Hour),
		Status:         models.RideStatusScheduled,
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CreateBookingHandler).ServeHTTP(rr, bookingRequestFor(t, rideID, driver, models.RoleDriver, `{"seats": 1}`))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "drivers cannot book their own ride")
}

func TestBooking_RejectedEntryStillBlocksRebooking(t *testing.T) {
	passenger := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         primitive.NewObjectID(),
		AvailableSeats: 3,
		DepartureTime:  time.Now().Add(72 * time.Hour),
		Status:         models.RideStatusScheduled,
		Passengers: []models.Passenger{
			{User: passenger, Status: models.BookingStatusRejected, BookedSeats: 1},
		},
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CreateBookingHandler).ServeHTTP(rr, bookingRequestFor(t, rideID, passenger, models.RolePassenger, `{"seats": 1}`))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "already booked on this ride")
	rideDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestBooking_NotEnoughSeats(t *testing.T) {
	passenger := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         primitive.NewObjectID(),
		AvailableSeats: 3,
		DepartureTime:  time.Now().Add(72 * time.Hour),
		Status:         models.RideStatusScheduled,
		Passengers: []models.Passenger{
			{User: primitive.NewObjectID(), Status: models.BookingStatusAccepted, BookedSeats: 2},
		},
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CreateBookingHandler).ServeHTTP(rr, bookingRequestFor(t, rideID, passenger, models.RolePassenger, `{"seats": 2}`))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "not enough seats available")
	rideDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestBooking_PendingSeatsDoNotConsumeCapacity(t *testing.T) {
	passenger := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	// two pending entries already hold 3 seats nominally, but only accepted
	// entries consume capacity, so a 2-seat booking still fits
	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         primitive.NewObjectID(),
		AvailableSeats: 2,
		DepartureTime:  time.Now().Add(72 * time.Hour),
		Status:         models.RideStatusScheduled,
		Passengers: []models.Passenger{
			{User: primitive.NewObjectID(), Status: models.BookingStatusPending, BookedSeats: 2},
			{User: primitive.NewObjectID(), Status: models.BookingStatusPending, BookedSeats: 1},
		},
	}, nil)
	rideDB.On("UpdateOne", mock.Anything, mock.Anything, mock.MatchedBy(func(update interface{}) bool {
		m, ok := update.(bson.M)
		if !ok {
			return false
		}
		push, ok := m["$push"].(bson.M)
		if !ok {
			return false
		}
		entry, ok := push["passengers"].(models.Passenger)
		return ok && entry.User == passenger && entry.Status == models.BookingStatusPending && entry.BookedSeats == 2
	})).Return(&mongo.UpdateResult{MatchedCount: 1}, nil)

	rh := handlers.Ride{DB: rideDB}
	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CreateBookingHandler).ServeHTTP(rr, bookingRequestFor(t, rideID, passenger, models.RolePassenger, `{"seats": 2}`))

	assert.Equal(t, http.StatusCreated, rr.Code)
	rideDB.AssertExpectations(t)
}

func TestBooking_DefaultsToOneSeat(t *testing.T) {
	passenger := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         primitive.NewObjectID(),
		AvailableSeats: 1,
		DepartureTime:  time.Now().Add(72 * time.Hour),
		Status:         models.RideStatusScheduled,
	}, nil)
	rideDB.On("UpdateOne", mock.Anything, mock.Anything, mock.MatchedBy(func(update interface{}) bool {
		m, ok := update.(bson.M)
		if !ok {
			return false
		}
		push, ok := m["$push"].(bson.M)
		if !ok {
			return false
		}
		entry, ok := push["passengers"].(models.Passenger)
		return ok && entry.BookedSeats == 1
	})).Return(&mongo.UpdateResult{MatchedCount: 1}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("POST", "/api/v1/ride/"+rideID.Hex()+"/book", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex()})
	req = api.SetRequestIdentity(req, passenger.Hex(), models.RolePassenger)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CreateBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	rideDB.AssertExpectations(t)
}

func TestBooking_ConfirmRequiresDriver(t *testing.T) {
	driver := primitive.NewObjectID()
	passenger := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         driver,
		AvailableSeats: 3,
		Passengers: []models.Passenger{
			{User: passenger, Status: models.BookingStatusPending, BookedSeats: 1},
		},
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("PUT", "/api/v1/ride/"+rideID.Hex()+"/passengers/"+passenger.Hex()+"/confirm", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex(), "user_id": passenger.Hex()})
	req = api.SetRequestIdentity(req, passenger.Hex(), models.RolePassenger)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.ConfirmBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "only the ride's driver can resolve bookings")
}

func TestBooking_ConfirmReChecksCapacity(t *testing.T) {
	driver := primitive.NewObjectID()
	pending := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	// 2 of 3 seats already accepted, the pending 2-seat entry no longer fits
	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         driver,
		AvailableSeats: 3,
		Passengers: []models.Passenger{
			{User: primitive.NewObjectID(), Status: models.BookingStatusAccepted, BookedSeats: 2},
			{User: pending, Status: models.BookingStatusPending, BookedSeats: 2},
		},
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("PUT", "/api/v1/ride/"+rideID.Hex()+"/passengers/"+pending.Hex()+"/confirm", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex(), "user_id": pending.Hex()})
	req = api.SetRequestIdentity(req, driver.Hex(), models.RoleDriver)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.ConfirmBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "not enough seats available")
	rideDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestBooking_RejectPendingBooking(t *testing.T) {
	driver := primitive.NewObjectID()
	pending := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         driver,
		AvailableSeats: 3,
		Passengers: []models.Passenger{
			{User: pending, Status: models.BookingStatusPending, BookedSeats: 1},
		},
	}, nil)
	rideDB.On("UpdateOne", mock.Anything, mock.MatchedBy(func(filter interface{}) bool {
		m, ok := filter.(bson.M)
		return ok && m["passengers.user"] == pending
	}), mock.MatchedBy(func(update interface{}) bool {
		m, ok := update.(bson.M)
		if !ok {
			return false
		}
		set, ok := m["$set"].(bson.M)
		return ok && set["passengers.$.status"] == models.BookingStatusRejected
	})).Return(&mongo.UpdateResult{MatchedCount: 1}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("PUT", "/api/v1/ride/"+rideID.Hex()+"/passengers/"+pending.Hex()+"/reject", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex(), "user_id": pending.Hex()})
	req = api.SetRequestIdentity(req, driver.Hex(), models.RoleDriver)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.RejectBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	rideDB.AssertExpectations(t)
}

func TestBooking_ResolveNonPendingBooking(t *testing.T) {
	driver := primitive.NewObjectID()
	accepted := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         driver,
		AvailableSeats: 3,
		Passengers: []models.Passenger{
			{User: accepted, Status: models.BookingStatusAccepted, BookedSeats: 1},
		},
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("PUT", "/api/v1/ride/"+rideID.Hex()+"/passengers/"+accepted.Hex()+"/confirm", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex(), "user_id": accepted.Hex()})
	req = api.SetRequestIdentity(req, driver.Hex(), models.RoleDriver)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.ConfirmBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "booking is not pending")
}

func TestBooking_CancelTooCloseToDeparture(t *testing.T) {
	passenger := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         primitive.NewObjectID(),
		AvailableSeats: 3,
		DepartureTime:  time.Now().Add(23 * time.Hour),
		Passengers: []models.Passenger{
			{User: passenger, Status: models.BookingStatusAccepted, BookedSeats: 1},
		},
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("DELETE", "/api/v1/ride/"+rideID.Hex()+"/book", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex()})
	req = api.SetRequestIdentity(req, passenger.Hex(), models.RolePassenger)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CancelBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "too late to cancel")
	rideDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestBooking_CancelRemovesEntry(t *testing.T) {
	passenger := primitive.NewObjectID()
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         primitive.NewObjectID(),
		AvailableSeats: 3,
		DepartureTime:  time.Now().Add(72 * time.Hour),
		Passengers: []models.Passenger{
			{User: passenger, Status: models.BookingStatusAccepted, BookedSeats: 1},
		},
	}, nil)
	rideDB.On("UpdateOne", mock.Anything, mock.Anything, mock.MatchedBy(func(update interface{}) bool {
		m, ok := update.(bson.M)
		if !ok {
			return false
		}
		pull, ok := m["$pull"].(bson.M)
		if !ok {
			return false
		}
		target, ok := pull["passengers"].(bson.M)
		return ok && target["user"] == passenger
	})).Return(&mongo.UpdateResult{MatchedCount: 1}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("DELETE", "/api/v1/ride/"+rideID.Hex()+"/book", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex()})
	req = api.SetRequestIdentity(req, passenger.Hex(), models.RolePassenger)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CancelBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Booking cancelled")
	rideDB.AssertExpectations(t)
}

func TestBooking_CancelWithoutEntry(t *testing.T) {
	rideID := primitive.NewObjectID()

	rideDB := &mocks.RideDatabase{}
	rideDB.On("FindOne", mock.Anything, mock.Anything).Return(&models.Ride{
		ID:             rideID,
		Driver:         primitive.NewObjectID(),
		AvailableSeats: 3,
		DepartureTime:  time.Now().Add(72 * time.Hour),
	}, nil)

	rh := handlers.Ride{DB: rideDB}
	req, _ := http.NewRequest("DELETE", "/api/v1/ride/"+rideID.Hex()+"/book", nil)
	req = mux.SetURLVars(req, map[string]string{"ride_id": rideID.Hex()})
	req = api.SetRequestIdentity(req, primitive.NewObjectID().Hex(), models.RolePassenger)

	rr := httptest.NewRecorder()
	http.HandlerFunc(rh.CancelBookingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no booking found for user")
}
