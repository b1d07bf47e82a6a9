package membership

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hubdeck/hubdeck-api/databases"
	"github.com/hubdeck/hubdeck-api/models"
)

// Repository provides the single-document read/write primitives the engine is
// built on. There is no cross-document transaction and no optimistic
// concurrency token: multi-step flows re-read before writing and accept a
// lost-update race between two actors mutating the same team concurrently.
type Repository interface {
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateTeamFields / UpdateUserFields $set the given fields on the inner
	// team/user subdocument. Keys are field names relative to the
	// subdocument, e.g. "users" or "admins".
	UpdateTeamFields(ctx context.Context, teamID string, fields bson.M) error
	UpdateUserFields(ctx context.Context, userID string, fields bson.M) error

	// Pending email index (invite store) operations.
	PendingTeamIDs(ctx context.Context, email string) ([]string, error)
	AddPendingTeam(ctx context.Context, email, teamID string) error
	RemovePendingTeam(ctx context.Context, email, teamID string) error
}

type mongoRepository struct {
	teams   databases.TeamDatabase
	users   databases.UserDatabase
	pending databases.PendingEmailDatabase
}

// NewRepository returns a Repository backed by the mongo collection wrappers
func NewRepository(teams databases.TeamDatabase, users databases.UserDatabase, pending databases.PendingEmailDatabase) Repository {
	return &mongoRepository{teams: teams, users: users, pending: pending}
}

// NormalizeEmail lowercases and trims an email address. Invite uniqueness is
// case-insensitive, so every entry point normalizes before comparing.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (r *mongoRepository) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	tID, err := primitive.ObjectIDFromHex(teamID)
	if err != nil {
		return nil, ErrNotFound
	}
	team, err := r.teams.FindOne(ctx, bson.M{"_id": tID})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return team, nil
}

func (r *mongoRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := r.users.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *mongoRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := r.users.FindOne(ctx, bson.M{"user.email": NormalizeEmail(email)})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *mongoRepository) UpdateTeamFields(ctx context.Context, teamID string, fields bson.M) error {
	tID, err := primitive.ObjectIDFromHex(teamID)
	if err != nil {
		return ErrNotFound
	}
	set := bson.M{}
	for key, value := range fields {
		set["team."+key] = value
	}
	res, err := r.teams.UpdateOne(ctx, bson.M{"_id": tID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res != nil && res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) UpdateUserFields(ctx context.Context, userID string, fields bson.M) error {
	set := bson.M{}
	for key, value := range fields {
		set["user."+key] = value
	}
	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res != nil && res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) PendingTeamIDs(ctx context.Context, email string) ([]string, error) {
	entry, err := r.pending.FindOne(ctx, bson.M{"email": NormalizeEmail(email)})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return entry.TeamIDs, nil
}

func (r *mongoRepository) AddPendingTeam(ctx context.Context, email, teamID string) error {
	return r.pending.AddTeamID(ctx, NormalizeEmail(email), teamID)
}

func (r *mongoRepository) RemovePendingTeam(ctx context.Context, email, teamID string) error {
	return r.pending.RemoveTeamID(ctx, NormalizeEmail(email), teamID)
}
