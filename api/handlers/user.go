package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/hubdeck/hubdeck-api/api"
	"github.com/hubdeck/hubdeck-api/config"
	"github.com/hubdeck/hubdeck-api/databases"
	"github.com/hubdeck/hubdeck-api/membership"
	"github.com/hubdeck/hubdeck-api/models"
)

// User struct mostly used for mocking tests
type User struct {
	DB databases.UserDatabase
}

// UserCreateHandler registers a new user account
func (u User) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	var requestBody struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	email := membership.NormalizeEmail(requestBody.Email)
	if email == "" || requestBody.Password == "" {
		config.ErrorStatus("email and password are required", http.StatusBadRequest, w, errors.New("missing required fields"))
		return
	}

	if _, err := u.DB.FindOne(ctx, bson.M{"user.email": email}); err == nil {
		config.ErrorStatus("an account already exists for this email", http.StatusConflict, w, errors.New("duplicate email"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(requestBody.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	newUser := models.User{
		ID: uuid.New().String(),
		Details: models.UserDetails{
			Email:      email,
			Name:       requestBody.Name,
			Password:   string(hashed),
			Teams:      []models.UserTeamRef{},
			Workspaces: []models.UserWorkspaceRef{},
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}

	if _, err := u.DB.InsertOne(ctx, newUser); err != nil {
		config.ErrorStatus("failed to insert user", http.StatusInternalServerError, w, err)
		return
	}

	newUser.Details.Password = ""
	b, err := json.Marshal(newUser)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// UserCheckEmailHandler reports whether an account exists for the email
func (u User) UserCheckEmailHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	var requestBody struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	exists := true
	_, err := u.DB.FindOne(ctx, bson.M{"user.email": membership.NormalizeEmail(requestBody.Email)})
	if err != nil {
		if err != mongo.ErrNoDocuments {
			config.ErrorStatus("failed to check email", http.StatusInternalServerError, w, err)
			return
		}
		exists = false
	}

	b, _ := json.Marshal(map[string]bool{"exists": exists})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UserHandler returns a user given a userID
func (u User) UserHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	userID := mux.Vars(r)["user_id"]
	user, err := u.DB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}

	user.Details.Password = ""
	b, err := json.Marshal(user)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UserTeamsHandler returns the team refs mirrored on the user document
func (u User) UserTeamsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	userID := mux.Vars(r)["user_id"]
	user, err := u.DB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}

	b, err := json.Marshal(user.Details.Teams)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
