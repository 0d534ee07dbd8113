package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/config"
	"github.com/ecodrive/ecodrive-api/databases"
	"github.com/ecodrive/ecodrive-api/models"
	templates "github.com/ecodrive/ecodrive-api/templates/html"
)

// User exported for testing purposes
type User struct {
	DB databases.UserDatabase
}

type registerRequest struct {
	Email      string             `json:"email"`
	Password   string             `json:"password"`
	Name       string             `json:"name"`
	Role       string             `json:"role"`
	Phone      string             `json:"phone"`
	DriverInfo *models.DriverInfo `json:"driverInfo"`
}

type profilePatch struct {
	Name           *string `json:"name"`
	Phone          *string `json:"phone"`
	ProfilePicture *string `json:"profilePicture"`
	VehicleModel   *string `json:"vehicleModel"`
	VehicleYear    *int    `json:"vehicleYear"`
	VehiclePlate   *string `json:"vehiclePlate"`
}

// UserCreateHandler registers a new account
func (u User) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Role == "" {
		req.Role = models.RolePassenger
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		config.ErrorStatus("email, password and name are required", http.StatusBadRequest, w, fmt.Errorf("missing required field"))
		return
	}
	if !models.ValidRole(req.Role) {
		config.ErrorStatus("invalid role", http.StatusBadRequest, w, fmt.Errorf("role must be passenger, driver or admin"))
		return
	}
	if req.Role == models.RoleDriver && req.DriverInfo == nil {
		config.ErrorStatus("driver accounts require vehicle details", http.StatusBadRequest, w, fmt.Errorf("missing driverInfo"))
		return
	}

	count, err := u.DB.CountDocuments(context.TODO(), bson.M{"email": req.Email})
	if err != nil {
		config.ErrorStatus("failed to check existing email", http.StatusInternalServerError, w, err)
		return
	}
	if count > 0 {
		config.ErrorStatus("email already registered", http.StatusConflict, w, fmt.Errorf("duplicate email"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	now := time.Now()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         req.Role,
		Phone:        req.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Role == models.RoleDriver {
		user.DriverInfo = &models.DriverInfo{
			VehicleModel: req.DriverInfo.VehicleModel,
			VehicleYear:  req.DriverInfo.VehicleYear,
			VehiclePlate: req.DriverInfo.VehiclePlate,
		}
	}

	_, err = u.DB.InsertOne(context.Background(), user)
	if err != nil {
		config.ErrorStatus("failed to create user", http.StatusInternalServerError, w, err)
		return
	}

	// Verification mail failures must never fail the registration write
	if err := sendVerificationEmail(user); err != nil {
		zap.S().Errorw("failed to send verification email",
			"email", user.Email,
			"error", err)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "User created successfully",
		"id":      user.ID.Hex(),
	})
}

// UserHandler returns a user given a userID
func (u User) UserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	zap.S().Debugf("user_id: %v", userID)

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := u.DB.FindOne(context.Background(), bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateUserByIDHandler updates a user's own profile fields. Stats, role and
// license verification are workflow-owned and cannot be written here.
func (u User) UpdateUserByIDHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	requesterRole := api.RequestUserRole(r)
	if requesterID != userID && requesterRole != models.RoleAdmin {
		config.ErrorStatus("cannot update another user's profile", http.StatusForbidden, w, fmt.Errorf("requester %s is not user %s", requesterID, userID))
		return
	}

	var patch profilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	set := bson.M{"updatedAt": time.Now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Phone != nil {
		set["phone"] = *patch.Phone
	}
	if patch.ProfilePicture != nil {
		set["profilePicture"] = *patch.ProfilePicture
	}
	if patch.VehicleModel != nil {
		set["driverInfo.vehicleModel"] = *patch.VehicleModel
	}
	if patch.VehicleYear != nil {
		set["driverInfo.vehicleYear"] = *patch.VehicleYear
	}
	if patch.VehiclePlate != nil {
		set["driverInfo.vehiclePlate"] = *patch.VehiclePlate
	}

	_, err = u.DB.UpdateOne(context.Background(), bson.M{"_id": uID}, bson.M{"$set": set})
	if err != nil {
		config.ErrorStatus("failed to update user", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "User updated successfully",
	})
}

// VerifyLicenseHandler lets an admin mark a driver's license as verified
func (u User) VerifyLicenseHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	if api.RequestUserRole(r) != models.RoleAdmin {
		config.ErrorStatus("only admins can verify licenses", http.StatusForbidden, w, fmt.Errorf("requester is not an admin"))
		return
	}

	user, err := u.DB.FindOne(context.Background(), bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}
	if !user.IsDriver() {
		config.ErrorStatus("user is not a driver", http.StatusBadRequest, w, fmt.Errorf("role is %s", user.Role))
		return
	}

	_, err = u.DB.UpdateOne(context.Background(), bson.M{"_id": uID},
		bson.M{"$set": bson.M{"driverInfo.licenseVerified": true, "updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to update user", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "License verified",
	})
}

// VerifyEmailHandler validates the signed token from the verification mail
// and marks the account's email as verified
func (u User) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		config.ErrorStatus("missing verification token", http.StatusBadRequest, w, fmt.Errorf("token query parameter required"))
		return
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		config.ErrorStatus("invalid verification token", http.StatusBadRequest, w, fmt.Errorf("failed to parse token, %v", err))
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["typ"] != "email-verify" {
		config.ErrorStatus("invalid verification token", http.StatusBadRequest, w, fmt.Errorf("unexpected claims"))
		return
	}

	sub, _ := claims["sub"].(string)
	uID, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	_, err = u.DB.UpdateOne(context.Background(), bson.M{"_id": uID},
		bson.M{"$set": bson.M{"emailVerified": true, "updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to update user", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Email verified",
	})
}

func signEmailToken(userID string) (string, error) {
	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		return "", fmt.Errorf("JWT_SECRET is not set")
	}
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": "email-verify",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(48 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func sendVerificationEmail(user models.User) error {
	sendgridAPIKey := os.Getenv("SENDGRID_API_KEY")
	if sendgridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY not set")
	}

	token, err := signEmailToken(user.ID.Hex())
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/api/v1/user/verify-email?token=%s", os.Getenv("BASE_URL"), token)

	from := mail.NewEmail("EcoDrive", os.Getenv("SENDGRID_FROM_EMAIL"))
	to := mail.NewEmail(user.Name, user.Email)
	subject := "Verify your EcoDrive email"
	plain := fmt.Sprintf("Hi %s, confirm your email address by opening %s", user.Name, link)
	htmlContent := templates.RenderGenericEmail(subject,
		fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening the link below.\n\n%s", user.Name, link))
	message := mail.NewSingleEmail(from, subject, to, plain, htmlContent)

	client := sendgrid.NewSendClient(sendgridAPIKey)
	response, err := client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}
	return nil
}
