package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hubdeck/hubdeck-api/api"
	"github.com/hubdeck/hubdeck-api/config"
	"github.com/hubdeck/hubdeck-api/membership"
	"github.com/hubdeck/hubdeck-api/models"
)

// Invite struct mostly used for mocking tests
type Invite struct {
	Manager *membership.InviteManager
}

// CreateInviteHandler creates a pending invitation and emails the invitee
func (i Invite) CreateInviteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	var requestBody struct {
		Email         string                `json:"email"`
		Name          string                `json:"name"`
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

	invite, err := i.Manager.CreateInvite(ctx, teamID, requestBody.Email, requestBody.Name, requestBody.Role, requestBody.Workspaces, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to create invite", statusForError(err), w, err)
		return
	}

	b, err := json.Marshal(invite)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// AcceptInviteHandler joins the acting user to the team through their pending
// invite (in-app accept)
func (i Invite) AcceptInviteHandler(w http.ResponseWriter, r *http.Request) {
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

	err := i.Manager.AcceptInvite(ctx, teamID, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to accept invite", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "invite accepted")
}

// DeclineInviteHandler removes the pending invite addressed to the acting user
func (i Invite) DeclineInviteHandler(w http.ResponseWriter, r *http.Request) {
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

	err := i.Manager.DeclineInvite(ctx, teamID, requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to decline invite", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "invite declined")
}

// AcceptInviteLinkHandler accepts an invitation through the emailed link
func (i Invite) AcceptInviteLinkHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	token := r.URL.Query().Get("token")
	if token == "" {
		config.ErrorStatus("missing invite token", http.StatusBadRequest, w, errors.New("token query parameter is required"))
		return
	}

	err := i.Manager.AcceptInviteLink(ctx, token)
	if err != nil {
		config.ErrorStatus("failed to accept invite", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "invite accepted")
}

// ResendInviteLinkHandler reissues an invitation from an old emailed link
func (i Invite) ResendInviteLinkHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	token := r.URL.Query().Get("token")
	if token == "" {
		config.ErrorStatus("missing invite token", http.StatusBadRequest, w, errors.New("token query parameter is required"))
		return
	}

	err := i.Manager.ResendInviteLink(ctx, token)
	if err != nil {
		config.ErrorStatus("failed to resend invite", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "invite resent")
}

// ResendInviteHandler reissues a pending invitation with a fresh expiry
func (i Invite) ResendInviteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	vars := mux.Vars(r)
	var requestBody struct {
		CurrentUserID string `json:"currentUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	err := i.Manager.ResendInvite(ctx, vars["team_id"], vars["invite_id"], requestBody.CurrentUserID)
	if err != nil {
		config.ErrorStatus("failed to resend invite", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "invite resent")
}

// RevokeInviteHandler removes a pending invitation
func (i Invite) RevokeInviteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	vars := mux.Vars(r)
	actor := r.URL.Query().Get("currentUserId")

	err := i.Manager.RevokeInvite(ctx, vars["team_id"], vars["invite_id"], actor)
	if err != nil {
		config.ErrorStatus("failed to revoke invite", statusForError(err), w, err)
		return
	}
	writeStatusOK(w, "invite revoked")
}

// PendingInvitesHandler lists the open invitations addressed to an email
func (i Invite) PendingInvitesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	email := r.URL.Query().Get("email")
	if email == "" {
		config.ErrorStatus("missing email", http.StatusBadRequest, w, errors.New("email query parameter is required"))
		return
	}

	pending, err := i.Manager.ListPendingInvites(ctx, email)
	if err != nil {
		config.ErrorStatus("failed to list pending invites", statusForError(err), w, err)
		return
	}

	b, err := json.Marshal(pending)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
