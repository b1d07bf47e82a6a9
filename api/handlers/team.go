package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/hubdeck/hubdeck-api/api"
	"github.com/hubdeck/hubdeck-api/config"
	"github.com/hubdeck/hubdeck-api/databases"
	"github.com/hubdeck/hubdeck-api/membership"
	"github.com/hubdeck/hubdeck-api/models"
)

// Team struct mostly used for mocking tests
type Team struct {
	Engine *membership.Engine
	Repo   membership.Repository
	DB     databases.TeamDatabase
}

// statusForError maps engine error kinds onto http status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, membership.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, membership.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, membership.ErrNotFound), errors.Is(err, membership.ErrExpired):
		return http.StatusNotFound
	case errors.Is(err, membership.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CreateTeamHandler creates a new team with the creator as sole owner
func (t Team) CreateTeamHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	var requestBody struct {
		Name    string `json:"name"`
		OwnerID string `json:"ownerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if requestBody.Name == "" || requestBody.OwnerID == "" {
		config.ErrorStatus("name and ownerId are required", http.StatusBadRequest, w, errors.New("missing required fields"))
		return
	}

	owner, err := t.Repo.GetUser(ctx, requestBody.OwnerID)
	if err != nil {
		config.ErrorStatus("failed to get owner by ID", statusForError(err), w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	newTeam := models.Team{
		ID: primitive.NewObjectID(),
		Details: models.TeamDetails{
			Name:    requestBody.Name,
			OwnerID: owner.ID,
			Admins:  []string{},
			Users: []models.TeamMember{
				{
					ID:    owner.ID,
					Email: membership.NormalizeEmail(owner.Details.Email),
					Name:  owner.Details.Name,
					Role:  models.RoleOwner,
				},
			},
			Invites:    []models.Invite{},
			Workspaces: []models.WorkspaceRef{},
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}

	if _, err := t.DB.InsertOne(ctx, newTeam); err != nil {
		config.ErrorStatus("failed to insert team", http.StatusInternalServerError, w, err)
		return
	}

	teams := append(owner.Details.Teams, models.UserTeamRef{
		ID:   newTeam.ID.Hex(),
		Name: newTeam.Details.Name,
		Role: models.RoleOwner,
	})
	if err := t.Repo.UpdateUserFields(ctx, owner.ID, bson.M{"teams": teams}); err != nil {
		zap.S().Errorw("failed to mirror new team onto owner", "teamId", newTeam.ID.Hex(), "userId", owner.ID, "error", err)
	}

	b, err := json.Marshal(newTeam)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// TeamHandler returns a team given a teamID
func (t Team) TeamHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	team, err := t.Repo.GetTeam(ctx, teamID)
	if err != nil {
		config.ErrorStatus("failed to get team by ID", statusForError(err), w, err)
		return
	}

	b, err := json.Marshal(team)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// TeamMembersHandler returns the member list of a team
func (t Team) TeamMembersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	team, err := t.Repo.GetTeam(ctx, teamID)
	if err != nil {
		config.ErrorStatus("failed to get team by ID", statusForError(err), w, err)
		return
	}

	b, err := json.Marshal(team.Details.Users)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateTeamDetailsHandler renames the team and syncs the change to members
func (t Team) UpdateTeamDetailsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	var requestBody struct {
		Name          string `json:"name"`
		CurrentUserID string `json:"currentUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	err := t.Engine.UpdateTeamDetails(ctx, teamID, requestBody.Name, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to update team details", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "team updated")
}

// AddMemberHandler adds an existing user directly to the team
func (t Team) AddMemberHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	var requestBody struct {
		UserID        string                `json:"userId"`
		Role          models.Role           `json:"role"`
		Workspaces    []models.WorkspaceRef `json:"workspaces"`
		CurrentUserID string                `json:"currentUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if requestBody.Role == "" {
		requestBody.Role = models.RoleMember
	}

	target, err := t.Repo.GetUser(ctx, requestBody.UserID)
	if err != nil {
		config.ErrorStatus("failed to get user by ID", statusForError(err), w, err)
		return
	}

	err = t.Engine.AddUser(ctx, teamID, target, requestBody.Role, requestBody.Workspaces, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to add member", statusForError(err), w, err)
		return
	}
	NotifyUser(requestBody.UserID, "added_to_team", map[string]string{"teamId": teamID})
	writeStatusOK(w, "member added")
}

// RemoveMemberHandler removes a member from the team
func (t Team) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	vars := mux.Vars(r)
	actor := r.URL.Query().Get("currentUserId")

	err := t.Engine.RemoveUser(ctx, vars["team_id"], vars["user_id"], actor)
	if err != nil {
		config.ErrorStatus("failed to remove member", statusForError(err), w, err)
		return
	}
	NotifyUser(vars["user_id"], "removed_from_team", map[string]string{"teamId": vars["team_id"]})
	writeStatusOK(w, "member removed")
}

// AddAdminHandler promotes an existing member to admin
func (t Team) AddAdminHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	var requestBody struct {
		UserID        string `json:"userId"`
		CurrentUserID string `json:"currentUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	err := t.Engine.AddAdmin(ctx, teamID, requestBody.UserID, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to add admin", statusForError(err), w, err)
		return
	}
	NotifyUser(requestBody.UserID, "promoted_to_admin", map[string]string{"teamId": teamID})
	writeStatusOK(w, "admin added")
}

// DemoteAdminHandler sets an admin back to member
func (t Team) DemoteAdminHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	vars := mux.Vars(r)
	actor := r.URL.Query().Get("currentUserId")

	err := t.Engine.DemoteAdmin(ctx, vars["team_id"], vars["user_id"], actor)
	if err != nil {
		config.ErrorStatus("failed to demote admin", statusForError(err), w, err)
		return
	}
	NotifyUser(vars["user_id"], "demoted_to_member", map[string]string{"teamId": vars["team_id"]})
	writeStatusOK(w, "admin demoted")
}

// TransferOwnershipHandler transfers team ownership to an existing admin
func (t Team) TransferOwnershipHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	var requestBody struct {
		NewOwnerID    string `json:"newOwnerId"`
		CurrentUserID string `json:"currentUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	err := t.Engine.ChangeOwner(ctx, teamID, requestBody.NewOwnerID, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to transfer ownership", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "ownership transferred")
}

// LeaveTeamHandler removes the acting user from the team
func (t Team) LeaveTeamHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	var requestBody struct {
		CurrentUserID string `json:"currentUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	err := t.Engine.LeaveTeam(ctx, teamID, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to leave team", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "left team")
}

func writeStatusOK(w http.ResponseWriter, message string) {
	b, _ := json.Marshal(map[string]string{"status": message})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
