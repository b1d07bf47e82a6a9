package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hubdeck/hubdeck-api/models"
)

// stateful team/user stores for reconciler tests
type fakeTeamStore struct {
	teams map[primitive.ObjectID]*models.Team
}

func (f *fakeTeamStore) FindOne(ctx context.Context, filter interface{}) (*models.Team, error) {
	id := filter.(bson.M)["_id"].(primitive.ObjectID)
	team, ok := f.teams[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return team, nil
}

func (f *fakeTeamStore) Find(ctx context.Context, filter interface{}) ([]models.Team, error) {
	teams := []models.Team{}
	for _, team := range f.teams {
		teams = append(teams, *team)
	}
	return teams, nil
}

func (f *fakeTeamStore) InsertOne(ctx context.Context, team models.Team) (interface{}, error) {
	f.teams[team.ID] = &team
	return team.ID, nil
}

func (f *fakeTeamStore) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*mongo.UpdateResult, error) {
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (f *fakeTeamStore) DeleteOne(ctx context.Context, filter interface{}) error {
	return nil
}

func (f *fakeTeamStore) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return int64(len(f.teams)), nil
}

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) FindOne(ctx context.Context, filter interface{}) (*models.User, error) {
	id := filter.(bson.M)["_id"].(string)
	user, ok := f.users[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return user, nil
}

func (f *fakeUserStore) Find(ctx context.Context, filter interface{}) ([]models.User, error) {
	users := []models.User{}
	for _, user := range f.users {
		users = append(users, *user)
	}
	return users, nil
}

func (f *fakeUserStore) InsertOne(ctx context.Context, user models.User) (interface{}, error) {
	f.users[user.ID] = &user
	return user.ID, nil
}

func (f *fakeUserStore) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*mongo.UpdateResult, error) {
	id := filter.(bson.M)["_id"].(string)
	user, ok := f.users[id]
	if !ok {
		return &mongo.UpdateResult{}, nil
	}
	set := update.(bson.M)["$set"].(bson.M)
	for key, value := range set {
		switch key {
		case "user.teams":
			user.Details.Teams = value.([]models.UserTeamRef)
		case "user.workspaces":
			user.Details.Workspaces = value.([]models.UserWorkspaceRef)
		}
	}
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (f *fakeUserStore) UpdateMany(ctx context.Context, filter interface{}, update interface{}) (*mongo.UpdateResult, error) {
	return &mongo.UpdateResult{}, nil
}

func (f *fakeUserStore) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return int64(len(f.users)), nil
}

func TestReconciler_AddsMissingMirrorEntry(t *testing.T) {
	oid := primitive.NewObjectID()
	teamID := oid.Hex()

	teams := &fakeTeamStore{teams: map[primitive.ObjectID]*models.Team{
		oid: {
			ID: oid,
			Details: models.TeamDetails{
				Name:    "Acme",
				OwnerID: "owner-1",
				Users: []models.TeamMember{
					{ID: "owner-1", Email: "owner@acme.io", Role: models.RoleOwner},
					{ID: "member-1", Email: "member@acme.io", Role: models.RoleMember},
				},
			},
		},
	}}
	users := &fakeUserStore{users: map[string]*models.User{
		"owner-1": {
			ID: "owner-1",
			Details: models.UserDetails{
				Email: "owner@acme.io",
				Teams: []models.UserTeamRef{{ID: teamID, Name: "Acme", Role: models.RoleOwner}},
			},
		},
		// mirror write was lost; user has no ref to the team
		"member-1": {
			ID:      "member-1",
			Details: models.UserDetails{Email: "member@acme.io", Teams: []models.UserTeamRef{}},
		},
	}}

	repaired, err := NewReconciler(teams, users).Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, repaired)

	ref := users.users["member-1"].Details.TeamRef(teamID)
	if assert.NotNil(t, ref) {
		assert.Equal(t, models.RoleMember, ref.Role)
		assert.Equal(t, "Acme", ref.Name)
	}
}

func TestReconciler_FixesWrongRoleAndName(t *testing.T) {
	oid := primitive.NewObjectID()
	teamID := oid.Hex()

	teams := &fakeTeamStore{teams: map[primitive.ObjectID]*models.Team{
		oid: {
			ID: oid,
			Details: models.TeamDetails{
				Name:    "Acme Corp",
				OwnerID: "owner-1",
				Admins:  []string{"admin-1"},
				Users: []models.TeamMember{
					{ID: "owner-1", Role: models.RoleOwner},
					{ID: "admin-1", Role: models.RoleAdmin},
				},
			},
		},
	}}
	users := &fakeUserStore{users: map[string]*models.User{
		"owner-1": {
			ID: "owner-1",
			Details: models.UserDetails{
				Teams: []models.UserTeamRef{{ID: teamID, Name: "Acme Corp", Role: models.RoleOwner}},
			},
		},
		// stale mirror: old team name and pre-promotion role
		"admin-1": {
			ID: "admin-1",
			Details: models.UserDetails{
				Teams: []models.UserTeamRef{{ID: teamID, Name: "Acme", Role: models.RoleMember}},
			},
		},
	}}

	repaired, err := NewReconciler(teams, users).Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, repaired)

	ref := users.users["admin-1"].Details.TeamRef(teamID)
	if assert.NotNil(t, ref) {
		assert.Equal(t, models.RoleAdmin, ref.Role)
		assert.Equal(t, "Acme Corp", ref.Name)
	}
}

func TestReconciler_DropsStaleRefs(t *testing.T) {
	oid := primitive.NewObjectID()
	teamID := oid.Hex()
	goneID := primitive.NewObjectID().Hex()

	teams := &fakeTeamStore{teams: map[primitive.ObjectID]*models.Team{
		oid: {
			ID: oid,
			Details: models.TeamDetails{
				Name:    "Acme",
				OwnerID: "owner-1",
				Users: []models.TeamMember{
					{ID: "owner-1", Role: models.RoleOwner},
				},
			},
		},
	}}
	users := &fakeUserStore{users: map[string]*models.User{
		"owner-1": {
			ID: "owner-1",
			Details: models.UserDetails{
				Teams: []models.UserTeamRef{
					{ID: teamID, Name: "Acme", Role: models.RoleOwner},
					// team was deleted but the mirror survived
					{ID: goneID, Name: "Globex", Role: models.RoleMember},
				},
				Workspaces: []models.UserWorkspaceRef{
					{TeamID: teamID, WorkspaceID: "ws-1"},
					{TeamID: goneID, WorkspaceID: "ws-9"},
				},
			},
		},
	}}

	repaired, err := NewReconciler(teams, users).Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, repaired)

	owner := users.users["owner-1"]
	assert.Nil(t, owner.Details.TeamRef(goneID))
	assert.NotNil(t, owner.Details.TeamRef(teamID))
	assert.True(t, owner.Details.HasWorkspace(teamID, "ws-1"))
	assert.False(t, owner.Details.HasWorkspace(goneID, "ws-9"))
}

func TestReconciler_ConsistentStateUntouched(t *testing.T) {
	oid := primitive.NewObjectID()
	teamID := oid.Hex()

	teams := &fakeTeamStore{teams: map[primitive.ObjectID]*models.Team{
		oid: {
			ID: oid,
			Details: models.TeamDetails{
				Name:    "Acme",
				OwnerID: "owner-1",
				Users: []models.TeamMember{
					{ID: "owner-1", Role: models.RoleOwner},
				},
			},
		},
	}}
	users := &fakeUserStore{users: map[string]*models.User{
		"owner-1": {
			ID: "owner-1",
			Details: models.UserDetails{
				Teams: []models.UserTeamRef{{ID: teamID, Name: "Acme", Role: models.RoleOwner}},
			},
		},
	}}

	repaired, err := NewReconciler(teams, users).Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, repaired)
}
