package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/config"
	"github.com/ecodrive/ecodrive-api/databases"
	"github.com/ecodrive/ecodrive-api/models"
)

// CloudinaryHandler handles Cloudinary related requests
type CloudinaryHandler struct {
	UDB databases.UserDatabase
}

// GenerateSignature generates a signature for Cloudinary uploads
func (c CloudinaryHandler) GenerateSignature(w http.ResponseWriter, r *http.Request) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	uploadPreset := os.Getenv("CLOUDINARY_UPLOAD_PRESET")
	apiSecret := os.Getenv("CLOUDINARY_API_SECRET")

	// Create the signature
	h := hmac.New(sha1.New, []byte(apiSecret))
	h.Write([]byte("timestamp=" + timestamp + "&upload_preset=" + uploadPreset))
	signature := hex.EncodeToString(h.Sum(nil))

	// Respond with the timestamp and signature
	response := map[string]string{
		"timestamp": timestamp,
		"signature": signature,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// UploadAvatarHandler uploads a profile picture to Cloudinary and stores the
// resulting URL on the user
func (c CloudinaryHandler) UploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	requesterID := api.RequestUserID(r)
	if requesterID != userID && api.RequestUserRole(r) != models.RoleAdmin {
		config.ErrorStatus("cannot update another user's avatar", http.StatusForbidden, w, fmt.Errorf("requester %s is not user %s", requesterID, userID))
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
		return
	}
	file, _, err := r.FormFile("avatar")
	if err != nil {
		config.ErrorStatus("avatar file is required", http.StatusBadRequest, w, err)
		return
	}
	defer file.Close()

	cld, err := cloudinary.NewFromURL(os.Getenv("CLOUDINARY_URL"))
	if err != nil {
		config.ErrorStatus("failed to initialize cloudinary", http.StatusInternalServerError, w, err)
		return
	}

	resp, err := cld.Upload.Upload(r.Context(), file, uploader.UploadParams{
		Folder:   "avatars",
		PublicID: userID,
	})
	if err != nil {
		config.ErrorStatus("failed to upload avatar", http.StatusInternalServerError, w, err)
		return
	}

	_, err = c.UDB.UpdateOne(context.Background(), bson.M{"_id": uID},
		bson.M{"$set": bson.M{"profilePicture": resp.SecureURL, "updatedAt": time.Now()}})
	if err != nil {
		config.ErrorStatus("failed to update user", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":        "Avatar updated",
		"profilePicture": resp.SecureURL,
	})
}
