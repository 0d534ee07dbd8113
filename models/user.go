package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles a user account can carry
const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
	RoleAdmin     = "admin"
)

// User holds the structure for the user collection in mongo
type User struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Email          string             `json:"email" bson:"email"`
	PasswordHash   string             `json:"-" bson:"passwordHash"`
	Name           string             `json:"name" bson:"name"`
	Role           string             `json:"role" bson:"role"`
	Phone          string             `json:"phone" bson:"phone"`
	ProfilePicture string             `json:"profilePicture" bson:"profilePicture"`
	EmailVerified  bool               `json:"emailVerified" bson:"emailVerified"`
	DriverInfo     *DriverInfo        `json:"driverInfo,omitempty" bson:"driverInfo,omitempty"`
	Stats          UserStats          `json:"stats" bson:"stats"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// DriverInfo holds the driver-only fields on a user account
type DriverInfo struct {
	VehicleModel    string `json:"vehicleModel" bson:"vehicleModel"`
	VehicleYear     int    `json:"vehicleYear" bson:"vehicleYear"`
	VehiclePlate    string `json:"vehiclePlate" bson:"vehiclePlate"`
	LicenseVerified bool   `json:"licenseVerified" bson:"licenseVerified"`
}

// UserStats holds the derived aggregates on a user account. These fields are
// only ever written by the booking and rating workflows, never by the user.
type UserStats struct {
	TotalTrips      int     `json:"totalTrips" bson:"totalTrips"`
	TotalDistance   float64 `json:"totalDistance" bson:"totalDistance"`
	Rating          float64 `json:"rating" bson:"rating"`
	NumberOfRatings int     `json:"numberOfRatings" bson:"numberOfRatings"`
}

// UserSummary is the public projection of a user attached to rides and reviews
type UserSummary struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id"`
	Name           string             `json:"name" bson:"name"`
	ProfilePicture string             `json:"profilePicture" bson:"profilePicture"`
	Rating         float64            `json:"rating" bson:"rating"`
}

// Summary returns the public projection of a user
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
		Rating:         u.Stats.Rating,
	}
}

// IsDriver reports whether the account can post rides
func (u User) IsDriver() bool {
	return u.Role == RoleDriver
}

// IsAdmin reports whether the account carries the admin role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ValidRole reports whether the given role is one of the known roles
func ValidRole(role string) bool {
	switch role {
	case RolePassenger, RoleDriver, RoleAdmin:
		return true
	}
	return false
}
