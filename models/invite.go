package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Invite represents a pending invitation embedded in the team document.
// Expired invites are not reaped eagerly; they are evaluated lazily when
// accessed and removed at that point.
type Invite struct {
	InviteID   string             `json:"inviteId" bson:"inviteId"`
	Email      string             `json:"email" bson:"email"`
	Name       string             `json:"name" bson:"name"`
	Role       Role               `json:"role" bson:"role"`
	Workspaces []WorkspaceRef     `json:"workspaces" bson:"workspaces"`
	CreatedAt  primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt  primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
	ExpiresAt  primitive.DateTime `json:"expiresAt" bson:"expiresAt"`
	CreatedBy  string             `json:"createdBy" bson:"createdBy"`
	UpdatedBy  string             `json:"updatedBy" bson:"updatedBy"`
	IsAccepted bool               `json:"isAccepted" bson:"isAccepted"`
}
