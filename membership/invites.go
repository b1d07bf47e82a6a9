package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/hubdeck/hubdeck-api/models"
)

// InviteTTL is the window in which an invitation can be accepted. Expiry is
// evaluated lazily at touch time; there is no background sweep of invites.
const InviteTTL = 7 * 24 * time.Hour

// InviteManager owns the invitation lifecycle: create, resend, revoke,
// accept, and the lazy expiry that happens whenever an expired invite is
// touched. Invites live embedded in the team document; a pendingEmails index
// maps invitee email to the teams holding an open invite for it.
type InviteManager struct {
	repo     Repository
	engine   *Engine
	notifier Notifier
	linker   LinkCodec
}

// NewInviteManager wires the invite lifecycle manager
func NewInviteManager(repo Repository, engine *Engine, notifier Notifier, linker LinkCodec) *InviteManager {
	return &InviteManager{repo: repo, engine: engine, notifier: notifier, linker: linker}
}

// PendingInvite is one entry of a user's cross-team pending invite list
type PendingInvite struct {
	TeamID   string        `json:"teamId"`
	TeamName string        `json:"teamName"`
	Invite   models.Invite `json:"invite"`
}

// IsExpired reports whether the invite is past its expiry instant
func IsExpired(invite *models.Invite) bool {
	return time.Now().After(invite.ExpiresAt.Time())
}

// CreateInvite adds a pending invitation to the team and emails the invitee.
// The actor must be owner/admin. Inviting an existing member or an email with
// an open invite is a conflict; an expired leftover invite for the same email
// is silently replaced.
func (m *InviteManager) CreateInvite(ctx context.Context, teamID, email, name string, role models.Role, workspaces []models.WorkspaceRef, actor string) (*models.Invite, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalid)
	}
	if role != models.RoleMember && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: invite role must be member or admin", ErrInvalid)
	}

	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(team, actor); err != nil {
		return nil, err
	}
	for _, member := range team.Details.Users {
		if NormalizeEmail(member.Email) == email {
			return nil, fmt.Errorf("%w: user is already a member of this team", ErrConflict)
		}
	}

	invites := make([]models.Invite, 0, len(team.Details.Invites)+1)
	for _, inv := range team.Details.Invites {
		if NormalizeEmail(inv.Email) == email {
			if !IsExpired(&inv) {
				return nil, fmt.Errorf("%w: an invitation for this email is already pending", ErrConflict)
			}
			// expired leftover, drop it and issue a fresh one
			continue
		}
		invites = append(invites, inv)
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	invite := models.Invite{
		InviteID:   uuid.New().String(),
		Email:      email,
		Name:       name,
		Role:       role,
		Workspaces: intersectWorkspaces(workspaces, team.Details.Workspaces),
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  primitive.NewDateTimeFromTime(time.Now().Add(InviteTTL)),
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	invites = append(invites, invite)

	err = m.repo.UpdateTeamFields(ctx, teamID, bson.M{"invites": invites, "updatedAt": now})
	if err != nil {
		return nil, err
	}
	if err := m.repo.AddPendingTeam(ctx, email, teamID); err != nil {
		zap.S().Errorw("failed to index pending invite", "teamId", teamID, "email", email, "error", err)
	}

	template := TemplateInviteUnregistered
	if _, err := m.repo.GetUserByEmail(ctx, email); err == nil {
		template = TemplateInviteRegistered
	}
	link, err := m.linker.AcceptURL(teamID, invite.InviteID, email)
	if err != nil {
		zap.S().Errorw("failed to build accept link", "teamId", teamID, "inviteId", invite.InviteID, "error", err)
	}
	m.notifier.Send(template, email, map[string]interface{}{
		"teamName":   team.Details.Name,
		"name":       name,
		"role":       string(role),
		"acceptLink": link,
	})
	return &invite, nil
}

// AcceptInviteLink resolves the token from an emailed accept link and joins
// the invitee to the team. The invitee must already hold an account under the
// invited email; if the codec bound an email into the token, it must match
// the stored invite.
func (m *InviteManager) AcceptInviteLink(ctx context.Context, token string) error {
	teamID, inviteID, boundEmail, err := m.linker.Parse(token)
	if err != nil {
		return err
	}
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	invite := findInvite(team, inviteID)
	if invite == nil {
		return fmt.Errorf("%w: invitation not found", ErrNotFound)
	}
	if boundEmail != "" && boundEmail != NormalizeEmail(invite.Email) {
		return fmt.Errorf("%w: invite token does not match the invitation", ErrInvalid)
	}
	user, err := m.repo.GetUserByEmail(ctx, invite.Email)
	if err != nil {
		return fmt.Errorf("%w: no account exists for the invited email", ErrNotFound)
	}
	return m.accept(ctx, team, invite, user)
}

// AcceptInvite joins the acting user to the team through the pending invite
// addressed to their email. This is the in-app accept path.
func (m *InviteManager) AcceptInvite(ctx context.Context, teamID, actorUserID string) error {
	user, err := m.repo.GetUser(ctx, actorUserID)
	if err != nil {
		return err
	}
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	invite := findInviteByEmail(team, user.Details.Email)
	if invite == nil {
		return fmt.Errorf("%w: no pending invitation for this user", ErrNotFound)
	}
	return m.accept(ctx, team, invite, user)
}

func (m *InviteManager) accept(ctx context.Context, team *models.Team, invite *models.Invite, user *models.User) error {
	teamID := team.ID.Hex()
	if IsExpired(invite) {
		return m.expire(ctx, team, invite)
	}
	if team.Details.Member(user.ID) != nil {
		// membership already holds; drop the redundant invite
		if err := m.removeInvite(ctx, team, invite.InviteID); err != nil {
			zap.S().Errorw("failed to drop redundant invite", "teamId", teamID, "inviteId", invite.InviteID, "error", err)
		}
		return fmt.Errorf("%w: user is already a member of this team", ErrConflict)
	}

	// workspaces deleted since the invite was issued are silently dropped
	granted := intersectWorkspaces(invite.Workspaces, team.Details.Workspaces)
	err := m.engine.AddUser(ctx, teamID, user, invite.Role, granted, user.ID)
	if err != nil {
		return err
	}
	return m.removeInvite(ctx, team, invite.InviteID)
}

// ResendInvite reissues a pending invitation with a fresh id and expiry and
// emails the invitee again. The actor must be owner/admin.
func (m *InviteManager) ResendInvite(ctx context.Context, teamID, inviteID, actor string) error {
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(team, actor); err != nil {
		return err
	}
	return m.reissue(ctx, team, inviteID, actor)
}

// ResendInviteLink is the self-service variant reached from an old emailed
// link. An expired invite is cleaned up and reported expired rather than
// reissued; only an admin can restart it via ResendInvite.
func (m *InviteManager) ResendInviteLink(ctx context.Context, token string) error {
	teamID, inviteID, boundEmail, err := m.linker.Parse(token)
	if err != nil {
		return err
	}
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	invite := findInvite(team, inviteID)
	if invite == nil {
		return fmt.Errorf("%w: invitation not found", ErrNotFound)
	}
	if boundEmail != "" && boundEmail != NormalizeEmail(invite.Email) {
		return fmt.Errorf("%w: invite token does not match the invitation", ErrInvalid)
	}
	if IsExpired(invite) {
		return m.expire(ctx, team, invite)
	}
	return m.reissue(ctx, team, inviteID, invite.Email)
}

func (m *InviteManager) reissue(ctx context.Context, team *models.Team, inviteID, actor string) error {
	teamID := team.ID.Hex()
	invite := findInvite(team, inviteID)
	if invite == nil {
		return fmt.Errorf("%w: invitation not found", ErrNotFound)
	}
	for _, member := range team.Details.Users {
		if NormalizeEmail(member.Email) == NormalizeEmail(invite.Email) {
			if err := m.removeInvite(ctx, team, inviteID); err != nil {
				zap.S().Errorw("failed to drop stale invite", "teamId", teamID, "inviteId", inviteID, "error", err)
			}
			return fmt.Errorf("%w: user is already a member of this team", ErrConflict)
		}
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	invites := team.Details.Invites
	var fresh *models.Invite
	for i := range invites {
		if invites[i].InviteID == inviteID {
			invites[i].InviteID = uuid.New().String()
			invites[i].ExpiresAt = primitive.NewDateTimeFromTime(time.Now().Add(InviteTTL))
			invites[i].UpdatedAt = now
			invites[i].UpdatedBy = actor
			fresh = &invites[i]
		}
	}
	err := m.repo.UpdateTeamFields(ctx, teamID, bson.M{"invites": invites, "updatedAt": now})
	if err != nil {
		return err
	}

	link, err := m.linker.AcceptURL(teamID, fresh.InviteID, fresh.Email)
	if err != nil {
		zap.S().Errorw("failed to build accept link", "teamId", teamID, "inviteId", fresh.InviteID, "error", err)
	}
	m.notifier.Send(TemplateInviteResend, fresh.Email, map[string]interface{}{
		"teamName":   team.Details.Name,
		"name":       fresh.Name,
		"role":       string(fresh.Role),
		"acceptLink": link,
	})
	return nil
}

// RevokeInvite removes a pending invitation. The actor must be owner/admin.
func (m *InviteManager) RevokeInvite(ctx context.Context, teamID, inviteID, actor string) error {
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(team, actor); err != nil {
		return err
	}
	if findInvite(team, inviteID) == nil {
		return fmt.Errorf("%w: invitation not found", ErrNotFound)
	}
	return m.removeInvite(ctx, team, inviteID)
}

// DeclineInvite removes the pending invitation addressed to the acting user's
// email. No privilege on the team is required.
func (m *InviteManager) DeclineInvite(ctx context.Context, teamID, actorUserID string) error {
	user, err := m.repo.GetUser(ctx, actorUserID)
	if err != nil {
		return err
	}
	team, err := m.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	invite := findInviteByEmail(team, user.Details.Email)
	if invite == nil {
		return fmt.Errorf("%w: no pending invitation for this user", ErrNotFound)
	}
	return m.removeInvite(ctx, team, invite.InviteID)
}

// ListPendingInvites returns the open invitations addressed to the email
// across all teams, resolved through the pendingEmails index. Expired invites
// encountered during the walk are cleaned up, notified once, and omitted.
func (m *InviteManager) ListPendingInvites(ctx context.Context, email string) ([]PendingInvite, error) {
	email = NormalizeEmail(email)
	teamIDs, err := m.repo.PendingTeamIDs(ctx, email)
	if err != nil {
		return nil, err
	}
	pending := []PendingInvite{}
	for _, teamID := range teamIDs {
		team, err := m.repo.GetTeam(ctx, teamID)
		if err != nil {
			// index entry pointing at a deleted team, drop it
			if rmErr := m.repo.RemovePendingTeam(ctx, email, teamID); rmErr != nil {
				zap.S().Warnw("failed to drop orphaned pending entry", "teamId", teamID, "email", email, "error", rmErr)
			}
			continue
		}
		invite := findInviteByEmail(team, email)
		if invite == nil {
			if rmErr := m.repo.RemovePendingTeam(ctx, email, teamID); rmErr != nil {
				zap.S().Warnw("failed to drop orphaned pending entry", "teamId", teamID, "email", email, "error", rmErr)
			}
			continue
		}
		if IsExpired(invite) {
			if expErr := m.expire(ctx, team, invite); expErr != nil && expErr != ErrExpired {
				zap.S().Warnw("failed to expire invite during listing", "teamId", teamID, "error", expErr)
			}
			continue
		}
		pending = append(pending, PendingInvite{
			TeamID:   teamID,
			TeamName: team.Details.Name,
			Invite:   *invite,
		})
	}
	return pending, nil
}

// expire removes the invite, notifies the invitee exactly once, and reports
// ErrExpired. Removal happens before the email so a second touch finds
// nothing and sends nothing.
func (m *InviteManager) expire(ctx context.Context, team *models.Team, invite *models.Invite) error {
	if err := m.removeInvite(ctx, team, invite.InviteID); err != nil {
		return err
	}
	m.notifier.Send(TemplateInviteExpired, invite.Email, map[string]interface{}{
		"teamName": team.Details.Name,
		"name":     invite.Name,
	})
	return ErrExpired
}

func (m *InviteManager) removeInvite(ctx context.Context, team *models.Team, inviteID string) error {
	teamID := team.ID.Hex()
	var email string
	invites := make([]models.Invite, 0, len(team.Details.Invites))
	for _, inv := range team.Details.Invites {
		if inv.InviteID == inviteID {
			email = NormalizeEmail(inv.Email)
			continue
		}
		invites = append(invites, inv)
	}
	err := m.repo.UpdateTeamFields(ctx, teamID, bson.M{
		"invites":   invites,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	})
	if err != nil {
		return err
	}
	if email != "" {
		if err := m.repo.RemovePendingTeam(ctx, email, teamID); err != nil {
			zap.S().Warnw("failed to drop pending entry", "teamId", teamID, "email", email, "error", err)
		}
	}
	return nil
}

func findInvite(team *models.Team, inviteID string) *models.Invite {
	for i := range team.Details.Invites {
		if team.Details.Invites[i].InviteID == inviteID {
			return &team.Details.Invites[i]
		}
	}
	return nil
}

func findInviteByEmail(team *models.Team, email string) *models.Invite {
	email = NormalizeEmail(email)
	for i := range team.Details.Invites {
		if NormalizeEmail(team.Details.Invites[i].Email) == email {
			return &team.Details.Invites[i]
		}
	}
	return nil
}

func intersectWorkspaces(requested, available []models.WorkspaceRef) []models.WorkspaceRef {
	granted := make([]models.WorkspaceRef, 0, len(requested))
	for _, req := range requested {
		for _, ws := range available {
			if req.ID == ws.ID {
				granted = append(granted, ws)
				break
			}
		}
	}
	return granted
}
