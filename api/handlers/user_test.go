package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ecodrive/ecodrive-api/api"
	"github.com/ecodrive/ecodrive-api/api/handlers"
	"github.com/ecodrive/ecodrive-api/databases"
	"github.com/ecodrive/ecodrive-api/databases/mocks"
	"github.com/ecodrive/ecodrive-api/models"
)

type MockDatabaseHelper struct {
	mock.Mock
}

// Client provides a mock function.
func (_m *MockDatabaseHelper) Client() databases.ClientHelper {
	ret := _m.Called()

	var r0 databases.ClientHelper
	if rf, ok := ret.Get(0).(func() databases.ClientHelper); ok {
		r0 = rf()
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(databases.ClientHelper)
		}
	}

	return r0
}

// Collection provides a mock function.
func (_m *MockDatabaseHelper) Collection(name string) databases.CollectionHelper {
	ret := _m.Called(name)

	var r0 databases.CollectionHelper
	if rf, ok := ret.Get(0).(func(string) databases.CollectionHelper); ok {
		r0 = rf(name)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(databases.CollectionHelper)
		}
	}

	return r0
}

func TestUser_UserHandlerInvalidID(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/v1/user/asdf", nil)
	if err != nil {
		t.Fatal(err)
	}

	req = mux.SetURLVars(req, map[string]string{"user_id": "asdf"})
	req.Header.Set("Authorization", "Bearer abc123")

	var db databases.DatabaseHelper
	var conn databases.CollectionHelper
	var singleResultHelper databases.SingleResultHelper

	db = &MockDatabaseHelper{} // can be used as db = &mocks.DatabaseHelper{}
	conn = &mocks.CollectionHelper{}
	singleResultHelper = &mocks.SingleResultHelper{}

	singleResultHelper.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(errors.New("mocked-error"))
	conn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	db.(*MockDatabaseHelper).On("Collection", "users").Return(conn)

	userDatabase := databases.NewUserDatabase(db)
	u := handlers.User{
		DB: userDatabase,
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.UserHandler)

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusBadRequest)
	}

	expected := models.ErrorMessageResponse{Response: models.MessageError{Message: "failed to get objectID from Hex", Error: "the provided hex string is not a valid ObjectID"}}
	b, _ := json.Marshal(expected)
	if rr.Body.String() != string(b) {
		t.Errorf("handler returned unexpected body: \ngot: %v \nwant: %v", rr.Body.String(), expected)
	}
}

func TestUser_UserHandlerNotFound(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/v1/user/5fc51f58c72ff10004dca382", nil)
	if err != nil {
		t.Fatal(err)
	}

	req = mux.SetURLVars(req, map[string]string{"user_id": "5fc51f58c72ff10004dca382"})
	req.Header.Set("Authorization", "Bearer abc123")

	var db databases.DatabaseHelper
	var conn databases.CollectionHelper
	var singleResultHelper databases.SingleResultHelper

	db = &MockDatabaseHelper{}
	conn = &mocks.CollectionHelper{}
	singleResultHelper = &mocks.SingleResultHelper{}

	singleResultHelper.(*mocks.SingleResultHelper).On("Decode", mock.Anything).Return(errors.New("mongo: no documents in result"))
	conn.(*mocks.CollectionHelper).On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	db.(*MockDatabaseHelper).On("Collection", "users").Return(conn)

	userDatabase := databases.NewUserDatabase(db)
	u := handlers.User{
		DB: userDatabase,
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(u.UserHandler)

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusNotFound {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusNotFound)
	}

	expected := models.ErrorMessageResponse{Response: models.MessageError{Message: "failed to get user by ID", Error: "mongo: no documents in result"}}
	b, _ := json.Marshal(expected)
	if rr.Body.String() != string(b) {
		t.Errorf("handler returned unexpected body: \ngot: %v \nwant: %v", rr.Body.String(), expected)
	}
}

func TestUser_UserCreateHandlerMissingFields(t *testing.T) {
	body := strings.NewReader(`{"email": "jane@example.com"}`)
	req, err := http.NewRequest("POST", "/api/v1/user/register", body)
	if err != nil {
		t.Fatal(err)
	}

	u := handlers.User{DB: &mocks.UserDatabase{}}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.UserCreateHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "email, password and name are required")
}

func TestUser_UserCreateHandlerDriverRequiresVehicle(t *testing.T) {
	body := strings.NewReader(`{"email": "jane@example.com", "password": "hunter22", "name": "Jane", "role": "driver"}`)
	req, err := http.NewRequest("POST", "/api/v1/user/register", body)
	if err != nil {
		t.Fatal(err)
	}

	u := handlers.User{DB: &mocks.UserDatabase{}}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.UserCreateHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "driver accounts require vehicle details")
}

func TestUser_UserCreateHandlerDuplicateEmail(t *testing.T) {
	body := strings.NewReader(`{"email": "Jane@Example.com", "password": "hunter22", "name": "Jane"}`)
	req, err := http.NewRequest("POST", "/api/v1/user/register", body)
	if err != nil {
		t.Fatal(err)
	}

	userDB := &mocks.UserDatabase{}
	// the duplicate check runs on the lowercased email
	userDB.On("CountDocuments", mock.Anything, mock.MatchedBy(func(filter interface{}) bool {
		m, ok := filter.(bson.M)
		return ok && m["email"] == "jane@example.com"
	})).Return(int64(1), nil)

	u := handlers.User{DB: userDB}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.UserCreateHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "email already registered")
}

func TestUser_UpdateUserByIDHandlerForbidden(t *testing.T) {
	body := strings.NewReader(`{"name": "Janet"}`)
	req, err := http.NewRequest("PUT", "/api/v1/user/5fc51f58c72ff10004dca382", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"user_id": "5fc51f58c72ff10004dca382"})
	req = api.SetRequestIdentity(req, "5fc51f58c72ff10004dca999", models.RolePassenger)

	u := handlers.User{DB: &mocks.UserDatabase{}}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.UpdateUserByIDHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "cannot update another user's profile")
}

func TestUser_UpdateUserByIDHandler(t *testing.T) {
	body := strings.NewReader(`{"name": "Janet", "phone": "+33612345678"}`)
	req, err := http.NewRequest("PUT", "/api/v1/user/5fc51f58c72ff10004dca382", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"user_id": "5fc51f58c72ff10004dca382"})
	req = api.SetRequestIdentity(req, "5fc51f58c72ff10004dca382", models.RolePassenger)

	userDB := &mocks.UserDatabase{}
	userDB.On("UpdateOne", mock.Anything, mock.Anything, mock.MatchedBy(func(update interface{}) bool {
		m, ok := update.(bson.M)
		if !ok {
			return false
		}
		set, ok := m["$set"].(bson.M)
		return ok && set["name"] == "Janet" && set["phone"] == "+33612345678"
	})).Return(&mongo.UpdateResult{MatchedCount: 1}, nil)

	u := handlers.User{DB: userDB}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.UpdateUserByIDHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "User updated successfully")
	userDB.AssertExpectations(t)
}

func TestUser_VerifyLicenseHandlerRequiresAdmin(t *testing.T) {
	req, err := http.NewRequest("PUT", "/api/v1/user/5fc51f58c72ff10004dca382/verify-license", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"user_id": "5fc51f58c72ff10004dca382"})
	req = api.SetRequestIdentity(req, "5fc51f58c72ff10004dca382", models.RoleDriver)

	u := handlers.User{DB: &mocks.UserDatabase{}}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.VerifyLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "only admins can verify licenses")
}
