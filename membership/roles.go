package membership

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/hubdeck/hubdeck-api/models"
)

// Engine orchestrates role transitions across the team document (the
// authority) and the user documents (read mirrors). Every operation takes an
// explicit actor id and evaluates privilege against the team document read at
// the start of the operation. Writes go team first, then mirror, then event,
// then email; a failure in a later step never rolls back an earlier one.
type Engine struct {
	repo     Repository
	events   Propagator
	notifier Notifier
}

// NewEngine wires the role transition engine
func NewEngine(repo Repository, events Propagator, notifier Notifier) *Engine {
	return &Engine{repo: repo, events: events, notifier: notifier}
}

// SeatUsage reports the current member and pending invite counts for a team,
// so plan guards can pre-check before CreateInvite/AddUser.
type SeatUsage struct {
	Members        int `json:"members"`
	PendingInvites int `json:"pendingInvites"`
}

// Repo exposes the repository for collaborators that share the engine's store
func (e *Engine) Repo() Repository {
	return e.repo
}

// SeatUsage returns the member/invite counts for the team
func (e *Engine) SeatUsage(ctx context.Context, teamID string) (*SeatUsage, error) {
	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return &SeatUsage{
		Members:        len(team.Details.Users),
		PendingInvites: len(team.Details.Invites),
	}, nil
}

// AddUser appends the target user to the team at the given role and mirrors
// the membership onto the user document. Admins implicitly receive every
// current team workspace; the workspaces parameter only applies to members.
// The actor must be owner/admin unless the target is joining through an
// accepted invite (actor == target).
func (e *Engine) AddUser(ctx context.Context, teamID string, target *models.User, role models.Role, workspaces []models.WorkspaceRef, actor string) error {
	if role == models.RoleOwner {
		return fmt.Errorf("%w: a team can only gain an owner through ownership transfer", ErrInvalid)
	}

	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if actor != target.ID {
		if err := requireOwnerOrAdmin(team, actor); err != nil {
			return err
		}
	}
	if team.Details.Member(target.ID) != nil {
		return fmt.Errorf("%w: user is already a member of this team", ErrConflict)
	}

	targetEmail := NormalizeEmail(target.Details.Email)
	granted := workspaces
	admins := team.Details.Admins
	if role == models.RoleAdmin {
		granted = team.Details.Workspaces
		admins = append(admins, target.ID)
	}
	users := append(team.Details.Users, models.TeamMember{
		ID:    target.ID,
		Email: targetEmail,
		Name:  target.Details.Name,
		Role:  role,
	})

	fields := bson.M{
		"users":     users,
		"admins":    admins,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	}
	// membership and a pending invite for the same email must never coexist;
	// a direct add supersedes any open invite
	droppedInvite := false
	invites := make([]models.Invite, 0, len(team.Details.Invites))
	for _, inv := range team.Details.Invites {
		if NormalizeEmail(inv.Email) == targetEmail {
			droppedInvite = true
			continue
		}
		invites = append(invites, inv)
	}
	if droppedInvite {
		fields["invites"] = invites
	}

	err = e.repo.UpdateTeamFields(ctx, teamID, fields)
	if err != nil {
		return err
	}
	if droppedInvite {
		if err := e.repo.RemovePendingTeam(ctx, targetEmail, teamID); err != nil {
			zap.S().Warnw("failed to drop pending entry", "teamId", teamID, "email", targetEmail, "error", err)
		}
	}

	teams := append(target.Details.Teams, models.UserTeamRef{
		ID:          teamID,
		Name:        team.Details.Name,
		Role:        role,
		IsNewInvite: true,
	})
	wsRefs := target.Details.Workspaces
	for _, ws := range granted {
		if !target.Details.HasWorkspace(teamID, ws.ID) {
			wsRefs = append(wsRefs, models.UserWorkspaceRef{
				TeamID:      teamID,
				WorkspaceID: ws.ID,
				Name:        ws.Name,
			})
		}
	}
	err = e.repo.UpdateUserFields(ctx, target.ID, bson.M{
		"teams":      teams,
		"workspaces": wsRefs,
	})
	if err != nil {
		return err
	}

	e.events.Emit(models.EventUserAddedToTeam, teamID, models.TeamMembershipEvent{
		TeamWorkspaces: granted,
		UserID:         target.ID,
		Role:           role,
	})
	return nil
}

// RemoveUser removes the target from the team and strips the mirror from the
// user document. The owner cannot be removed; the actor must be owner/admin.
// The team owner is notified.
func (e *Engine) RemoveUser(ctx context.Context, teamID, targetUserID, actor string) error {
	return e.removeMember(ctx, teamID, targetUserID, actor, TemplateMemberRemoved)
}

// LeaveTeam removes the actor from the team. The owner must transfer
// ownership before leaving.
func (e *Engine) LeaveTeam(ctx context.Context, teamID, actor string) error {
	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.Details.OwnerID == actor {
		return fmt.Errorf("%w: the owner must transfer ownership before leaving the team", ErrInvalid)
	}
	return e.removeMember(ctx, teamID, actor, actor, TemplateMemberLeft)
}

func (e *Engine) removeMember(ctx context.Context, teamID, targetUserID, actor string, template Template) error {
	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if targetUserID == team.Details.OwnerID {
		return fmt.Errorf("%w: the team owner cannot be removed", ErrInvalid)
	}
	if actor != targetUserID {
		if err := requireOwnerOrAdmin(team, actor); err != nil {
			return err
		}
	}
	member := team.Details.Member(targetUserID)
	if member == nil {
		return fmt.Errorf("%w: user is not a member of this team", ErrNotFound)
	}
	removedRole := member.Role
	removedName := member.Name

	users := make([]models.TeamMember, 0, len(team.Details.Users))
	for _, m := range team.Details.Users {
		if m.ID != targetUserID {
			users = append(users, m)
		}
	}
	admins := make([]string, 0, len(team.Details.Admins))
	for _, id := range team.Details.Admins {
		if id != targetUserID {
			admins = append(admins, id)
		}
	}

	err = e.repo.UpdateTeamFields(ctx, teamID, bson.M{
		"users":     users,
		"admins":    admins,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	})
	if err != nil {
		return err
	}

	target, err := e.repo.GetUser(ctx, targetUserID)
	if err != nil {
		// mirror missing; the reconciler owns cleanup of half-applied removals
		zap.S().Warnw("member removed but mirror not found", "teamId", teamID, "userId", targetUserID, "error", err)
	} else {
		teams := make([]models.UserTeamRef, 0, len(target.Details.Teams))
		for _, t := range target.Details.Teams {
			if t.ID != teamID {
				teams = append(teams, t)
			}
		}
		wsRefs := make([]models.UserWorkspaceRef, 0, len(target.Details.Workspaces))
		for _, ws := range target.Details.Workspaces {
			if ws.TeamID != teamID {
				wsRefs = append(wsRefs, ws)
			}
		}
		err = e.repo.UpdateUserFields(ctx, targetUserID, bson.M{
			"teams":      teams,
			"workspaces": wsRefs,
		})
		if err != nil {
			return err
		}
	}

	e.events.Emit(models.EventUserRemovedFromTeam, teamID, models.TeamMembershipEvent{
		TeamWorkspaces: team.Details.Workspaces,
		UserID:         targetUserID,
		Role:           removedRole,
	})

	if owner := team.Details.Member(team.Details.OwnerID); owner != nil {
		e.notifier.Send(template, owner.Email, map[string]interface{}{
			"teamName":   team.Details.Name,
			"memberName": removedName,
		})
	}
	return nil
}

// AddAdmin promotes an existing member to admin, grants every team workspace
// the member does not already hold, and mirrors the role change.
func (e *Engine) AddAdmin(ctx context.Context, teamID, targetUserID, actor string) error {
	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(team, actor); err != nil {
		return err
	}
	member := team.Details.Member(targetUserID)
	if member == nil {
		return fmt.Errorf("%w: user is not a member of this team", ErrInvalid)
	}
	if member.Role == models.RoleOwner {
		return fmt.Errorf("%w: the team owner already has admin privileges", ErrInvalid)
	}
	if member.Role == models.RoleAdmin {
		return fmt.Errorf("%w: user is already an admin", ErrInvalid)
	}

	users := team.Details.Users
	for i := range users {
		if users[i].ID == targetUserID {
			users[i].Role = models.RoleAdmin
		}
	}
	admins := append(team.Details.Admins, targetUserID)

	err = e.repo.UpdateTeamFields(ctx, teamID, bson.M{
		"users":     users,
		"admins":    admins,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	})
	if err != nil {
		return err
	}

	target, err := e.repo.GetUser(ctx, targetUserID)
	if err != nil {
		return err
	}
	teams := target.Details.Teams
	for i := range teams {
		if teams[i].ID == teamID {
			teams[i].Role = models.RoleAdmin
		}
	}
	wsRefs := target.Details.Workspaces
	for _, ws := range team.Details.Workspaces {
		if !target.Details.HasWorkspace(teamID, ws.ID) {
			wsRefs = append(wsRefs, models.UserWorkspaceRef{
				TeamID:      teamID,
				WorkspaceID: ws.ID,
				Name:        ws.Name,
			})
		}
	}
	err = e.repo.UpdateUserFields(ctx, targetUserID, bson.M{
		"teams":      teams,
		"workspaces": wsRefs,
	})
	if err != nil {
		return err
	}

	e.events.Emit(models.EventTeamAdminAdded, teamID, models.TeamAdminEvent{
		UserID:         targetUserID,
		TeamWorkspaces: team.Details.Workspaces,
	})
	e.notifier.Send(TemplateAdminPromoted, member.Email, map[string]interface{}{
		"teamName": team.Details.Name,
	})
	return nil
}

// DemoteAdmin sets an admin back to member in both mirrors. Workspace access
// granted on promotion is intentionally not revoked.
func (e *Engine) DemoteAdmin(ctx context.Context, teamID, targetUserID, actor string) error {
	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(team, actor); err != nil {
		return err
	}
	if targetUserID == team.Details.OwnerID {
		return fmt.Errorf("%w: the team owner cannot be demoted", ErrInvalid)
	}
	member := team.Details.Member(targetUserID)
	if member == nil {
		return fmt.Errorf("%w: user is not a member of this team", ErrInvalid)
	}
	if !team.Details.IsAdmin(targetUserID) {
		return fmt.Errorf("%w: user is not an admin", ErrInvalid)
	}

	users := team.Details.Users
	for i := range users {
		if users[i].ID == targetUserID {
			users[i].Role = models.RoleMember
		}
	}
	admins := make([]string, 0, len(team.Details.Admins))
	for _, id := range team.Details.Admins {
		if id != targetUserID {
			admins = append(admins, id)
		}
	}

	err = e.repo.UpdateTeamFields(ctx, teamID, bson.M{
		"users":     users,
		"admins":    admins,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	})
	if err != nil {
		return err
	}

	target, err := e.repo.GetUser(ctx, targetUserID)
	if err != nil {
		return err
	}
	teams := target.Details.Teams
	for i := range teams {
		if teams[i].ID == teamID {
			teams[i].Role = models.RoleMember
		}
	}
	err = e.repo.UpdateUserFields(ctx, targetUserID, bson.M{"teams": teams})
	if err != nil {
		return err
	}

	e.events.Emit(models.EventTeamAdminDemoted, teamID, models.TeamAdminEvent{
		UserID:         targetUserID,
		TeamWorkspaces: team.Details.Workspaces,
	})
	e.notifier.Send(TemplateAdminDemoted, member.Email, map[string]interface{}{
		"teamName": team.Details.Name,
	})
	return nil
}

// ChangeOwner transfers team ownership to an existing admin. The actor must
// be the current owner; the old owner becomes an admin.
func (e *Engine) ChangeOwner(ctx context.Context, teamID, newOwnerID, actor string) error {
	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if actor != team.Details.OwnerID {
		return fmt.Errorf("%w: only the team owner can transfer ownership", ErrForbidden)
	}
	if newOwnerID == actor {
		return fmt.Errorf("%w: new owner must be a different user", ErrInvalid)
	}
	if !team.Details.IsAdmin(newOwnerID) {
		return fmt.Errorf("%w: only existing admin can become owner", ErrInvalid)
	}
	newOwner := team.Details.Member(newOwnerID)
	if newOwner == nil {
		return fmt.Errorf("%w: user is not a member of this team", ErrInvalid)
	}
	oldOwner := team.Details.Member(actor)

	users := team.Details.Users
	for i := range users {
		switch users[i].ID {
		case actor:
			users[i].Role = models.RoleAdmin
		case newOwnerID:
			users[i].Role = models.RoleOwner
		}
	}
	admins := make([]string, 0, len(team.Details.Admins)+1)
	for _, id := range team.Details.Admins {
		if id != newOwnerID {
			admins = append(admins, id)
		}
	}
	admins = append(admins, actor)

	err = e.repo.UpdateTeamFields(ctx, teamID, bson.M{
		"ownerID":   newOwnerID,
		"users":     users,
		"admins":    admins,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	})
	if err != nil {
		return err
	}

	if err := e.mirrorRole(ctx, actor, teamID, models.RoleAdmin); err != nil {
		return err
	}
	if err := e.mirrorRole(ctx, newOwnerID, teamID, models.RoleOwner); err != nil {
		return err
	}

	e.events.Emit(models.EventTeamDetailsUpdated, teamID, models.TeamDetailsEvent{
		TeamID:         teamID,
		TeamName:       team.Details.Name,
		TeamWorkspaces: team.Details.Workspaces,
	})

	if oldOwner != nil {
		e.notifier.Send(TemplateOwnerChangedOld, oldOwner.Email, map[string]interface{}{
			"teamName":   team.Details.Name,
			"memberName": newOwner.Name,
		})
	}
	e.notifier.Send(TemplateOwnerChangedNew, newOwner.Email, map[string]interface{}{
		"teamName": team.Details.Name,
	})
	return nil
}

// UpdateTeamDetails renames the team, syncs the name into every member's
// mirror, and broadcasts the change.
func (e *Engine) UpdateTeamDetails(ctx context.Context, teamID, name, actor string) error {
	team, err := e.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(team, actor); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: team name must not be empty", ErrInvalid)
	}

	err = e.repo.UpdateTeamFields(ctx, teamID, bson.M{
		"name":      name,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	})
	if err != nil {
		return err
	}

	for _, m := range team.Details.Users {
		target, err := e.repo.GetUser(ctx, m.ID)
		if err != nil {
			zap.S().Warnw("team renamed but member mirror not found", "teamId", teamID, "userId", m.ID)
			continue
		}
		teams := target.Details.Teams
		for i := range teams {
			if teams[i].ID == teamID {
				teams[i].Name = name
			}
		}
		if err := e.repo.UpdateUserFields(ctx, m.ID, bson.M{"teams": teams}); err != nil {
			zap.S().Warnw("failed to sync team name to mirror", "teamId", teamID, "userId", m.ID, "error", err)
		}
	}

	e.events.Emit(models.EventTeamDetailsUpdated, teamID, models.TeamDetailsEvent{
		TeamID:         teamID,
		TeamName:       name,
		TeamWorkspaces: team.Details.Workspaces,
	})
	return nil
}

func (e *Engine) mirrorRole(ctx context.Context, userID, teamID string, role models.Role) error {
	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	teams := user.Details.Teams
	for i := range teams {
		if teams[i].ID == teamID {
			teams[i].Role = role
		}
	}
	return e.repo.UpdateUserFields(ctx, userID, bson.M{"teams": teams})
}

func requireOwnerOrAdmin(team *models.Team, actor string) error {
	if actor == team.Details.OwnerID || team.Details.IsAdmin(actor) {
		return nil
	}
	return fmt.Errorf("%w: actor must be the team owner or an admin", ErrForbidden)
}
