package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// PendingEmail is the secondary index from an email address (which may not
// belong to a registered user yet) to the teams holding a pending invite for
// it. Entries are not cleaned up when a team is deleted; stale team ids are
// tolerated by readers.
type PendingEmail struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Email   string             `json:"email" bson:"email" index:"unique"`
	TeamIDs []string           `json:"teamIds" bson:"teamIds"`
}
