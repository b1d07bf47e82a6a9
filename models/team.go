package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the membership role a user holds within a team
type Role string

// Roles a team member can hold. A team has exactly one owner; admins are
// always also present in the members list.
const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Team holds the structure for the team collection in mongo
type Team struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details TeamDetails        `json:"team" bson:"team"`
	Version int32              `json:"__v" bson:"__v"`
}

// TeamDetails holds the structure for the inner team collection in mongo.
// The team document is the authority for roles; user documents only mirror it.
type TeamDetails struct {
	Name       string             `json:"name" bson:"name"`
	OwnerID    string             `json:"ownerID" bson:"ownerID"`
	Admins     []string           `json:"admins" bson:"admins"`
	Users      []TeamMember       `json:"users" bson:"users"`
	Invites    []Invite           `json:"invites" bson:"invites"`
	Workspaces []WorkspaceRef     `json:"workspaces" bson:"workspaces"`
	CreatedAt  primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt  primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// TeamMember is a single entry in the team's members array
type TeamMember struct {
	ID    string `json:"id" bson:"id"`
	Email string `json:"email" bson:"email"`
	Name  string `json:"name" bson:"name"`
	Role  Role   `json:"role" bson:"role"`
}

// WorkspaceRef identifies a workspace owned by a team
type WorkspaceRef struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

// Member returns the members entry for the given user id, or nil
func (d *TeamDetails) Member(userID string) *TeamMember {
	for i := range d.Users {
		if d.Users[i].ID == userID {
			return &d.Users[i]
		}
	}
	return nil
}

// IsAdmin reports whether the given user id is in the admins array
func (d *TeamDetails) IsAdmin(userID string) bool {
	for _, id := range d.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
