package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/config"
	"github.com/ecodrive/ecodrive-api/databases"
	"github.com/ecodrive/ecodrive-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router   *mux.Router
	Config   config.Config
	dbHelper databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()
	r.Use(api.TimeoutMiddleware(30 * time.Second))

	u := User{DB: databases.NewUserDatabase(a.dbHelper)}
	ride := Ride{DB: databases.NewRideDatabase(a.dbHelper), UDB: databases.NewUserDatabase(a.dbHelper)}
	review := Review{DB: databases.NewReviewDatabase(a.dbHelper), RDB: databases.NewRideDatabase(a.dbHelper), UDB: databases.NewUserDatabase(a.dbHelper)}
	cloudinaryHandler := CloudinaryHandler{UDB: databases.NewUserDatabase(a.dbHelper)}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/user/register", http.HandlerFunc(u.UserCreateHandler)).Methods("POST")
	apiCreate.Handle("/user/verify-email", http.HandlerFunc(u.VerifyEmailHandler)).Methods("GET")
	apiCreate.Handle("/user/{user_id}/verify-license", api.Middleware(http.HandlerFunc(u.VerifyLicenseHandler))).Methods("PUT")
	apiCreate.Handle("/user/{user_id}/avatar", api.Middleware(http.HandlerFunc(cloudinaryHandler.UploadAvatarHandler))).Methods("POST")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UserHandler))).Methods("GET")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UpdateUserByIDHandler))).Methods("PUT")

	apiCreate.Handle("/ride", api.Middleware(http.HandlerFunc(ride.CreateRideHandler))).Methods("POST")
	apiCreate.Handle("/rides/search", http.HandlerFunc(ride.RidesSearchHandler)).Methods("GET")
	apiCreate.Handle("/rides/driver/{driver_id}", api.Middleware(http.HandlerFunc(ride.RidesByDriverHandler))).Methods("GET")
	apiCreate.Handle("/ride/{ride_id}", api.Middleware(http.HandlerFunc(ride.RideByIDHandler))).Methods("GET")
	apiCreate.Handle("/ride/{ride_id}", api.Middleware(http.HandlerFunc(ride.UpdateRideHandler))).Methods("PUT")
	apiCreate.Handle("/ride/{ride_id}", api.Middleware(http.HandlerFunc(ride.DeleteRideHandler))).Methods("DELETE")
	apiCreate.Handle("/ride/{ride_id}/status", api.Middleware(http.HandlerFunc(ride.UpdateRideStatusHandler))).Methods("PUT")

	apiCreate.Handle("/ride/{ride_id}/book", api.Middleware(http.HandlerFunc(ride.CreateBookingHandler))).Methods("POST")
	apiCreate.Handle("/ride/{ride_id}/book", api.Middleware(http.HandlerFunc(ride.CancelBookingHandler))).Methods("DELETE")
	apiCreate.Handle("/ride/{ride_id}/passengers/{user_id}/confirm", api.Middleware(http.HandlerFunc(ride.ConfirmBookingHandler))).Methods("PUT")
	apiCreate.Handle("/ride/{ride_id}/passengers/{user_id}/reject", api.Middleware(http.HandlerFunc(ride.RejectBookingHandler))).Methods("PUT")

	apiCreate.Handle("/review", api.Middleware(http.HandlerFunc(review.CreateReviewHandler))).Methods("POST")
	apiCreate.Handle("/review/{review_id}", api.Middleware(http.HandlerFunc(review.UpdateReviewHandler))).Methods("PUT")
	apiCreate.Handle("/review/{review_id}", api.Middleware(http.HandlerFunc(review.DeleteReviewHandler))).Methods("DELETE")
	apiCreate.Handle("/reviews/user/{user_id}", api.Middleware(http.HandlerFunc(review.ReviewsByUserHandler))).Methods("GET")

	apiCreate.Handle("/generate-signature", api.Middleware(http.HandlerFunc(cloudinaryHandler.GenerateSignature))).Methods("POST")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("ecodrive-api has connected to the database")

	// initialize api router
	a.initializeRoutes()
	return nil

}

// DatabaseHelper exposes the db connection for wiring the scheduler in main
func (a *App) DatabaseHelper() databases.DatabaseHelper {
	return a.dbHelper
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
