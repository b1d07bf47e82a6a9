package databases

// go generate: mockery --name TeamDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hubdeck/hubdeck-api/models"
)

const teamCollectionName = "teams"

// TeamDatabase contains the methods to use with the team database
type TeamDatabase interface {
	FindOne(ctx context.Context, filter interface{}) (*models.Team, error)
	Find(ctx context.Context, filter interface{}) ([]models.Team, error)
	InsertOne(ctx context.Context, team models.Team) (interface{}, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}) error
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
}

type teamDatabase struct {
	db DatabaseHelper
}

// NewTeamDatabase initializes a new instance of team database with the provided db connection
func NewTeamDatabase(db DatabaseHelper) TeamDatabase {
	return &teamDatabase{
		db: db,
	}
}

func (t *teamDatabase) FindOne(ctx context.Context, filter interface{}) (*models.Team, error) {
	team := &models.Team{}
	err := t.db.Collection(teamCollectionName).FindOne(ctx, filter).Decode(team)
	if err != nil {
		return nil, err
	}
	return team, nil
}

func (t *teamDatabase) Find(ctx context.Context, filter interface{}) ([]models.Team, error) {
	cursor, err := t.db.Collection(teamCollectionName).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var teams []models.Team
	if err := cursor.All(ctx, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

func (t *teamDatabase) InsertOne(ctx context.Context, team models.Team) (interface{}, error) {
	return t.db.Collection(teamCollectionName).InsertOne(ctx, team)
}

func (t *teamDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*mongo.UpdateResult, error) {
	return t.db.Collection(teamCollectionName).UpdateOne(ctx, filter, update)
}

func (t *teamDatabase) DeleteOne(ctx context.Context, filter interface{}) error {
	return t.db.Collection(teamCollectionName).DeleteOne(ctx, filter)
}

func (t *teamDatabase) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return t.db.Collection(teamCollectionName).CountDocuments(ctx, filter)
}
