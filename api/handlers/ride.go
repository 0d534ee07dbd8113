package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/config"
	"github.com/ecodrive/ecodrive-api/databases"
	"github.com/ecodrive/ecodrive-api/models"
)

// Ride exported for testing purposes
type Ride struct {
	DB  databases.RideDatabase
	UDB databases.UserDatabase
}

type createRideRequest struct {
	Departure            models.Endpoint    `json:"departure"`
	Destination          models.Endpoint    `json:"destination"`
	DepartureTime        time.Time          `json:"departureTime"`
	EstimatedArrivalTime time.Time          `json:"estimatedArrivalTime"`
	Price                float64            `json:"price"`
	AvailableSeats       int                `json:"availableSeats"`
	Preferences          models.Preferences `json:"preferences"`
	Route                string             `json:"route"`
	Distance             float64            `json:"distance"`
	Duration             float64            `json:"duration"`
	Description          string             `json:"description"`
}

type updateRideRequest struct {
	DepartureTime        *time.Time          `json:"departureTime"`
	EstimatedArrivalTime *time.Time          `json:"estimatedArrivalTime"`
	Price                *float64            `json:"price"`
	AvailableSeats       *int                `json:"availableSeats"`
	Preferences          *models.Preferences `json:"preferences"`
	Description          *string             `json:"description"`
}

// CreateRideHandler creates a ride posted by the authenticated driver
func (rh Ride) CreateRideHandler(w http.ResponseWriter, r *http.Request) {
	requesterID := api.RequestUserID(r)
	if api.RequestUserRole(r) != models.RoleDriver {
		config.ErrorStatus("only drivers can create rides", http.StatusForbidden, w, fmt.Errorf("requester role is %s", api.RequestUserRole(r)))
		return
	}

	driverID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	if req.Departure.City == "" || req.Destination.City == "" {
		config.ErrorStatus("departure and destination cities are required", http.StatusBadRequest, w, fmt.Errorf("missing required field"))
		return
	}
	if req.DepartureTime.IsZero() || req.EstimatedArrivalTime.IsZero() {
		config.ErrorStatus("departureTime and estimatedArrivalTime are required", http.StatusBadRequest, w, fmt.Errorf("missing required field"))
		return
	}
	if !req.EstimatedArrivalTime.After(req.DepartureTime) {
		config.ErrorStatus("estimatedArrivalTime must be after departureTime", http.StatusBadRequest, w, fmt.Errorf("invalid schedule"))
		return
	}
	if !models.ValidSeatCount(req.AvailableSeats) {
		config.ErrorStatus("availableSeats must be between 1 and 8", http.StatusBadRequest, w, fmt.Errorf("got %d", req.AvailableSeats))
		return
	}
	if req.Price < 0 {
		config.ErrorStatus("price cannot be negative", http.StatusBadRequest, w, fmt.Errorf("got %v", req.Price))
		return
	}

	now := time.Now()
	ride := models.Ride{
		ID:                   primitive.NewObjectID(),
		Driver:               driverID,
		Departure:            req.Departure,
		Destination:          req.Destination,
		Route:                req.Route,
		Distance:             req.Distance,
		Duration:             req.Duration,
		DepartureTime:        req.DepartureTime,
		EstimatedArrivalTime: req.EstimatedArrivalTime,
		Price:                req.Price,
		AvailableSeats:       req.AvailableSeats,
		Preferences:          req.Preferences,
		Description:          req.Description,
		Status:               models.RideStatusScheduled,
		Passengers:           []models.Passenger{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	_, err = rh.DB.InsertOne(context.Background(), ride)
	if err != nil {
		config.ErrorStatus("failed to create ride", http.StatusInternalServerError, w, err)
		return
	}

	// Trip count bumps at ride creation, not completion. Known product quirk
	// carried over; the reconciliation job does not touch trip counts.
	_, err = rh.UDB.UpdateOne(context.Background(), bson.M{"_id": driverID},
		bson.M{"$inc": bson.M{"stats.totalTrips": 1, "stats.totalDistance": req.Distance}})
	if err != nil {
		zap.S().Errorw("ride created but driver stats update failed",
			"ride", ride.ID.Hex(),
			"driver", driverID.Hex(),
			"error", err)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ride)
}

// RideByIDHandler returns a ride by ID with the driver's public summary attached
func (rh Ride) RideByIDHandler(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]

	zap.S().Debugf("ride_id: %v", rideID)

	rID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ride, err := rh.DB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	resp := models.RideWithDriver{Ride: *ride}
	if driver, err := rh.UDB.FindOne(context.Background(), bson.M{"_id": ride.Driver}); err == nil {
		summary := driver.Summary()
		resp.DriverSummary = &summary
	}

	b, err := json.Marshal(resp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// RidesSearchHandler returns a page of rides matching the given filters,
// sorted ascending by departure time
func (rh Ride) RidesSearchHandler(w http.ResponseWriter, r *http.Request) {
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || Limit <= 0 {
		Limit = 10
	}
	page := getPage(r)

	filter := bson.M{}
	if from := r.URL.Query().Get("from"); from != "" {
		filter["departure.city"] = primitive.Regex{Pattern: regexp.QuoteMeta(from), Options: "i"}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		filter["destination.city"] = primitive.Regex{Pattern: regexp.QuoteMeta(to), Options: "i"}
	}
	if date := r.URL.Query().Get("date"); date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			config.ErrorStatus("invalid date filter, expected YYYY-MM-DD", http.StatusBadRequest, w, err)
			return
		}
		filter["departureTime"] = bson.M{"$gte": day, "$lt": day.AddDate(0, 0, 1)}
	}
	if maxPrice := r.URL.Query().Get("maxPrice"); maxPrice != "" {
		p, err := strconv.ParseFloat(maxPrice, 64)
		if err != nil {
			config.ErrorStatus("invalid maxPrice filter", http.StatusBadRequest, w, err)
			return
		}
		filter["price"] = bson.M{"$lte": p}
	}
	if seats := r.URL.Query().Get("seats"); seats != "" {
		s, err := strconv.Atoi(seats)
		if err != nil {
			config.ErrorStatus("invalid seats filter", http.StatusBadRequest, w, err)
			return
		}
		filter["availableSeats"] = bson.M{"$gte": s}
	}
	if prefs := r.URL.Query().Get("preferences"); prefs != "" {
		for _, flag := range strings.Split(prefs, ",") {
			flag = strings.TrimSpace(flag)
			if flag != "" {
				filter["preferences."+flag] = true
			}
		}
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	count, err := rh.DB.CountDocuments(ctx, filter)
	if err != nil {
		config.ErrorStatus("failed to count rides", http.StatusInternalServerError, w, err)
		return
	}

	limit64 := int64(Limit)
	skip64 := int64(page * Limit)
	sort := bson.M{"departureTime": 1}
	rides, err := rh.DB.Find(ctx, filter, &options.FindOptions{Limit: &limit64, Skip: &skip64, Sort: sort})
	if err != nil {
		config.ErrorStatus("failed to search rides", http.StatusNotFound, w, err)
		return
	}

	data, err := rh.attachDriverSummaries(rides)
	if err != nil {
		zap.S().Warnw("failed to attach driver summaries", "error", err)
	}

	totalPages := count / limit64
	if count%limit64 != 0 {
		totalPages++
	}
	resp := models.PagedRidesResponse{
		Count:       count,
		TotalPages:  totalPages,
		CurrentPage: int64(page),
		Data:        data,
	}

	b, err := json.Marshal(resp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// RidesByDriverHandler returns all rides posted by the given driver
func (rh Ride) RidesByDriverHandler(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || Limit <= 0 {
		Limit = 10
	}
	page := getPage(r)

	dID, err := primitive.ObjectIDFromHex(driverID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	limit64 := int64(Limit)
	skip64 := int64(page * Limit)
	sort := bson.M{"departureTime": -1}
	rides, err := rh.DB.Find(context.TODO(), bson.M{"driver": dID}, &options.FindOptions{Limit: &limit64, Skip: &skip64, Sort: sort})
	if err != nil {
		config.ErrorStatus("failed to get rides by driver", http.StatusNotFound, w, err)
		return
	}

	if len(rides) == 0 {
		rides = []models.Ride{}
	}
	b, err := json.Marshal(rides)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateRideHandler updates a ride's fields. Once the ride has any passenger
// entry the seat capacity and departure time are frozen.
func (rh Ride) UpdateRideHandler(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]

	rID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ride, err := rh.DB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	if ride.Driver.Hex() != requesterID && api.RequestUserRole(r) != models.RoleAdmin {
		config.ErrorStatus("only the ride's driver can update it", http.StatusForbidden, w, fmt.Errorf("requester %s is not the driver", requesterID))
		return
	}

	var patch updateRideRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	if len(ride.Passengers) > 0 && (patch.AvailableSeats != nil || patch.DepartureTime != nil) {
		config.ErrorStatus("cannot change seats or departure time with existing bookings", http.StatusBadRequest, w, fmt.Errorf("ride has %d passenger entries", len(ride.Passengers)))
		return
	}
	if patch.AvailableSeats != nil && !models.ValidSeatCount(*patch.AvailableSeats) {
		config.ErrorStatus("availableSeats must be between 1 and 8", http.StatusBadRequest, w, fmt.Errorf("got %d", *patch.AvailableSeats))
		return
	}
	if patch.Price != nil && *patch.Price < 0 {
		config.ErrorStatus("price cannot be negative", http.StatusBadRequest, w, fmt.Errorf("got %v", *patch.Price))
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if patch.DepartureTime != nil {
		set["departureTime"] = *patch.DepartureTime
	}
	if patch.EstimatedArrivalTime != nil {
		set["estimatedArrivalTime"] = *patch.EstimatedArrivalTime
	}
	if patch.Price != nil {
		set["price"] = *patch.Price
	}
	if patch.AvailableSeats != nil {
		set["availableSeats"] = *patch.AvailableSeats
	}
	if patch.Preferences != nil {
		set["preferences"] = *patch.Preferences
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}

	_, err = rh.DB.UpdateOne(context.Background(), bson.M{"_id": rID}, bson.M{"$set": set})
	if err != nil {
		config.ErrorStatus("failed to update ride", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Ride updated successfully",
	})
}

// UpdateRideStatusHandler moves a ride through its lifecycle
func (rh Ride) UpdateRideStatusHandler(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]

	rID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ride, err := rh.DB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	if ride.Driver.Hex() != requesterID && api.RequestUserRole(r) != models.RoleAdmin {
		config.ErrorStatus("only the ride's driver can update its status", http.StatusForbidden, w, fmt.Errorf("requester %s is not the driver", requesterID))
		return
	}

	if !models.ValidStatusTransition(ride.Status, req.Status) {
		config.ErrorStatus("invalid status transition", http.StatusBadRequest, w, fmt.Errorf("cannot move from %s to %s", ride.Status, req.Status))
		return
	}

	_, err = rh.DB.UpdateOne(context.Background(), bson.M{"_id": rID},
		bson.M{"$set": bson.M{"status": req.Status, "updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to update ride", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Ride status updated",
		"status":  req.Status,
	})
}

// DeleteRideHandler deletes a ride that has no bookings
func (rh Ride) DeleteRideHandler(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]

	rID, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ride, err := rh.DB.FindOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to get ride by ID", http.StatusNotFound, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	if ride.Driver.Hex() != requesterID && api.RequestUserRole(r) != models.RoleAdmin {
		config.ErrorStatus("only the ride's driver can delete it", http.StatusForbidden, w, fmt.Errorf("requester %s is not the driver", requesterID))
		return
	}
	if len(ride.Passengers) > 0 {
		config.ErrorStatus("cannot delete a ride with existing bookings", http.StatusBadRequest, w, fmt.Errorf("ride has %d passenger entries", len(ride.Passengers)))
		return
	}

	_, err = rh.DB.DeleteOne(context.Background(), bson.M{"_id": rID})
	if err != nil {
		config.ErrorStatus("failed to delete ride", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Ride deleted successfully",
	})
}

func (rh Ride) attachDriverSummaries(rides []models.Ride) ([]models.RideWithDriver, error) {
	data := make([]models.RideWithDriver, 0, len(rides))
	if len(rides) == 0 {
		return data, nil
	}

	ids := make([]primitive.ObjectID, 0, len(rides))
	seen := map[primitive.ObjectID]bool{}
	for _, ride := range rides {
		if !seen[ride.Driver] {
			seen[ride.Driver] = true
			ids = append(ids, ride.Driver)
		}
	}

	drivers, err := rh.UDB.Find(context.TODO(), bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		for _, ride := range rides {
			data = append(data, models.RideWithDriver{Ride: ride})
		}
		return data, err
	}

	summaries := map[primitive.ObjectID]models.UserSummary{}
	for _, d := range drivers {
		summaries[d.ID] = d.Summary()
	}
	for _, ride := range rides {
		item := models.RideWithDriver{Ride: ride}
		if s, ok := summaries[ride.Driver]; ok {
			summary := s
			item.DriverSummary = &summary
		}
		data = append(data, item)
	}
	return data, nil
}

func getPage(r *http.Request) int {
	page := 0
	if r.URL.Query().Get("page") == "" {
		zap.S().Warnf("page not set, using default of %v", page)
		return page
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		zap.S().Errorf(fmt.Sprintf("error parsing page number: %v", err))
		return 0
	}
	if page < 0 {
		zap.S().Warnf(fmt.Sprintf("cannot process page number less than 1. Got: %v", page))
		return 0
	}
	return page
}
