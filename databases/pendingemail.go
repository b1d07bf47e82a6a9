package databases

// go generate: mockery --name PendingEmailDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hubdeck/hubdeck-api/models"
)

const pendingEmailCollectionName = "pendingEmails"

// PendingEmailDatabase contains the methods to use with the pending email
// index. The index maps an email address to the teams that hold a pending
// invite for it, so invites can be surfaced before the invitee has an account.
type PendingEmailDatabase interface {
	FindOne(ctx context.Context, filter interface{}) (*models.PendingEmail, error)
	AddTeamID(ctx context.Context, email, teamID string) error
	RemoveTeamID(ctx context.Context, email, teamID string) error
	DeleteOne(ctx context.Context, filter interface{}) error
}

type pendingEmailDatabase struct {
	db DatabaseHelper
}

// NewPendingEmailDatabase initializes a new instance of the pending email database
func NewPendingEmailDatabase(db DatabaseHelper) PendingEmailDatabase {
	return &pendingEmailDatabase{
		db: db,
	}
}

func (p *pendingEmailDatabase) FindOne(ctx context.Context, filter interface{}) (*models.PendingEmail, error) {
	entry := &models.PendingEmail{}
	err := p.db.Collection(pendingEmailCollectionName).FindOne(ctx, filter).Decode(entry)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AddTeamID upserts the index entry for email and adds teamID as a set member,
// so repeated invites to the same email stay idempotent.
func (p *pendingEmailDatabase) AddTeamID(ctx context.Context, email, teamID string) error {
	filter := bson.M{"email": email}
	update := bson.M{"$addToSet": bson.M{"teamIds": teamID}}
	opts := options.Update().SetUpsert(true)
	_, err := p.db.Collection(pendingEmailCollectionName).UpdateOne(ctx, filter, update, opts)
	return err
}

// RemoveTeamID pulls teamID from the index entry for email. A missing entry is
// not an error; orphaned entries are tolerated.
func (p *pendingEmailDatabase) RemoveTeamID(ctx context.Context, email, teamID string) error {
	filter := bson.M{"email": email}
	update := bson.M{"$pull": bson.M{"teamIds": teamID}}
	_, err := p.db.Collection(pendingEmailCollectionName).UpdateOne(ctx, filter, update)
	if err == mongo.ErrNoDocuments {
		return nil
	}
	return err
}

func (p *pendingEmailDatabase) DeleteOne(ctx context.Context, filter interface{}) error {
	return p.db.Collection(pendingEmailCollectionName).DeleteOne(ctx, filter)
}
