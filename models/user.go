package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// User holds the structure for the user collection in mongo
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in
// the user collection in mongo. Teams and Workspaces are denormalized mirrors
// of the team documents, maintained by the membership engine.
type UserDetails struct {
	Email      string             `json:"email" bson:"email"`
	Name       string             `json:"name" bson:"name"`
	Password   string             `json:"password" bson:"password"`
	Teams      []UserTeamRef      `json:"teams" bson:"teams"`
	Workspaces []UserWorkspaceRef `json:"workspaces" bson:"workspaces"`
	CreatedAt  primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt  primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// UserTeamRef mirrors one team membership on the user document
type UserTeamRef struct {
	ID          string `json:"id" bson:"id"`
	Name        string `json:"name" bson:"name"`
	Role        Role   `json:"role" bson:"role"`
	IsNewInvite bool   `json:"isNewInvite" bson:"isNewInvite"`
}

// UserWorkspaceRef mirrors one workspace grant on the user document
type UserWorkspaceRef struct {
	TeamID      string `json:"teamId" bson:"teamId"`
	WorkspaceID string `json:"workspaceId" bson:"workspaceId"`
	Name        string `json:"name" bson:"name"`
}

// TeamRef returns the mirror entry for the given team id, or nil
func (d *UserDetails) TeamRef(teamID string) *UserTeamRef {
	for i := range d.Teams {
		if d.Teams[i].ID == teamID {
			return &d.Teams[i]
		}
	}
	return nil
}

// HasWorkspace reports whether the user already holds the given workspace
func (d *UserDetails) HasWorkspace(teamID, workspaceID string) bool {
	for _, ws := range d.Workspaces {
		if ws.TeamID == teamID && ws.WorkspaceID == workspaceID {
			return true
		}
	}
	return false
}
