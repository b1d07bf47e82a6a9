package models

// Topics emitted by the membership engine. A downstream consumer reconciles
// workspace-level role mirrors from these; delivery is fire-and-forget.
const (
	EventUserAddedToTeam     = "USER_ADDED_TO_TEAM"
	EventUserRemovedFromTeam = "USER_REMOVED_FROM_TEAM"
	EventTeamAdminAdded      = "TEAM_ADMIN_ADDED"
	EventTeamAdminDemoted    = "TEAM_ADMIN_DEMOTED"
	EventTeamDetailsUpdated  = "TEAM_DETAILS_UPDATED"
)

// TeamMembershipEvent is the payload for USER_ADDED_TO_TEAM and
// USER_REMOVED_FROM_TEAM
type TeamMembershipEvent struct {
	TeamWorkspaces []WorkspaceRef `json:"teamWorkspaces"`
	UserID         string         `json:"userId"`
	Role           Role           `json:"role"`
}

// TeamAdminEvent is the payload for TEAM_ADMIN_ADDED and TEAM_ADMIN_DEMOTED
type TeamAdminEvent struct {
	UserID         string         `json:"userId"`
	TeamWorkspaces []WorkspaceRef `json:"teamWorkspaces"`
}

// TeamDetailsEvent is the payload for TEAM_DETAILS_UPDATED
type TeamDetailsEvent struct {
	TeamID         string         `json:"teamId"`
	TeamName       string         `json:"teamName"`
	TeamWorkspaces []WorkspaceRef `json:"teamWorkspaces"`
}
