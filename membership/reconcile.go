package membership

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/hubdeck/hubdeck-api/databases"
	"github.com/hubdeck/hubdeck-api/models"
)

// Reconciler repairs drift between the team documents (authority) and the
// user-side mirrors. Drift accumulates when an operation fails between its
// team write and its mirror write. Two passes: teams drive missing or wrong
// mirror entries, then users drive removal of stale entries pointing at teams
// that no longer hold the membership.
type Reconciler struct {
	teams databases.TeamDatabase
	users databases.UserDatabase
}

// NewReconciler returns a reconciler over the team and user collections
func NewReconciler(teams databases.TeamDatabase, users databases.UserDatabase) *Reconciler {
	return &Reconciler{teams: teams, users: users}
}

// Run executes both passes and returns the number of user documents repaired
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	repaired, err := r.syncFromTeams(ctx)
	if err != nil {
		return repaired, err
	}
	stale, err := r.dropStaleRefs(ctx)
	repaired += stale
	if err != nil {
		return repaired, err
	}
	zap.S().Infow("mirror reconciliation complete", "repaired", repaired)
	return repaired, nil
}

// syncFromTeams walks every team and ensures each member's mirror carries the
// membership at the correct role and team name.
func (r *Reconciler) syncFromTeams(ctx context.Context) (int, error) {
	teams, err := r.teams.Find(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	repaired := 0
	for i := range teams {
		team := &teams[i]
		teamID := team.ID.Hex()
		for _, member := range team.Details.Users {
			user, err := r.users.FindOne(ctx, bson.M{"_id": member.ID})
			if err != nil {
				if err == mongo.ErrNoDocuments {
					zap.S().Warnw("team member has no user document", "teamId", teamID, "userId", member.ID)
					continue
				}
				return repaired, err
			}
			if r.repairMemberMirror(ctx, teamID, team.Details.Name, member, user) {
				repaired++
			}
		}
	}
	return repaired, nil
}

func (r *Reconciler) repairMemberMirror(ctx context.Context, teamID, teamName string, member models.TeamMember, user *models.User) bool {
	teamsRef := user.Details.Teams
	dirty := false
	found := false
	for i := range teamsRef {
		if teamsRef[i].ID != teamID {
			continue
		}
		found = true
		if teamsRef[i].Role != member.Role {
			teamsRef[i].Role = member.Role
			dirty = true
		}
		if teamsRef[i].Name != teamName {
			teamsRef[i].Name = teamName
			dirty = true
		}
	}
	if !found {
		teamsRef = append(teamsRef, models.UserTeamRef{
			ID:   teamID,
			Name: teamName,
			Role: member.Role,
		})
		dirty = true
	}
	if !dirty {
		return false
	}
	_, err := r.users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{"user.teams": teamsRef}})
	if err != nil {
		zap.S().Errorw("failed to repair member mirror", "teamId", teamID, "userId", user.ID, "error", err)
		return false
	}
	zap.S().Infow("repaired member mirror", "teamId", teamID, "userId", user.ID)
	return true
}

// dropStaleRefs walks every user and removes team and workspace refs whose
// team no longer exists or no longer lists the user as a member.
func (r *Reconciler) dropStaleRefs(ctx context.Context) (int, error) {
	users, err := r.users.Find(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	repaired := 0
	for i := range users {
		user := &users[i]
		staleTeams := map[string]bool{}
		for _, ref := range user.Details.Teams {
			if r.membershipHolds(ctx, ref.ID, user.ID) {
				continue
			}
			staleTeams[ref.ID] = true
		}
		if len(staleTeams) == 0 {
			continue
		}
		teamsRef := make([]models.UserTeamRef, 0, len(user.Details.Teams))
		for _, ref := range user.Details.Teams {
			if !staleTeams[ref.ID] {
				teamsRef = append(teamsRef, ref)
			}
		}
		wsRefs := make([]models.UserWorkspaceRef, 0, len(user.Details.Workspaces))
		for _, ws := range user.Details.Workspaces {
			if !staleTeams[ws.TeamID] {
				wsRefs = append(wsRefs, ws)
			}
		}
		_, err := r.users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
			"user.teams":      teamsRef,
			"user.workspaces": wsRefs,
		}})
		if err != nil {
			zap.S().Errorw("failed to drop stale refs", "userId", user.ID, "error", err)
			continue
		}
		zap.S().Infow("dropped stale team refs", "userId", user.ID, "count", len(staleTeams))
		repaired++
	}
	return repaired, nil
}

func (r *Reconciler) membershipHolds(ctx context.Context, teamID, userID string) bool {
	tID, err := primitive.ObjectIDFromHex(teamID)
	if err != nil {
		return false
	}
	team, err := r.teams.FindOne(ctx, bson.M{"_id": tID})
	if err != nil {
		return false
	}
	return team.Details.Member(userID) != nil
}
