package membership

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hubdeck/hubdeck-api/models"
)

// memRepo is an in-memory Repository used to test multi-step flows where
// expectation mocks cannot express the evolving state.
type memRepo struct {
	teams   map[string]*models.Team
	users   map[string]*models.User
	pending map[string][]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		teams:   map[string]*models.Team{},
		users:   map[string]*models.User{},
		pending: map[string][]string{},
	}
}

func (r *memRepo) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	team, ok := r.teams[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	return team, nil
}

func (r *memRepo) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (r *memRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.users {
		if NormalizeEmail(user.Details.Email) == NormalizeEmail(email) {
			return user, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) UpdateTeamFields(ctx context.Context, teamID string, fields bson.M) error {
	team, ok := r.teams[teamID]
	if !ok {
		return ErrNotFound
	}
	for key, value := range fields {
		switch key {
		case "name":
			team.Details.Name = value.(string)
		case "ownerID":
			team.Details.OwnerID = value.(string)
		case "users":
			team.Details.Users = value.([]models.TeamMember)
		case "admins":
			team.Details.Admins = value.([]string)
		case "invites":
			team.Details.Invites = value.([]models.Invite)
		case "workspaces":
			team.Details.Workspaces = value.([]models.WorkspaceRef)
		case "updatedAt":
			team.Details.UpdatedAt = value.(primitive.DateTime)
		default:
			return fmt.Errorf("unexpected team field %q", key)
		}
	}
	return nil
}

func (r *memRepo) UpdateUserFields(ctx context.Context, userID string, fields bson.M) error {
	user, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	for key, value := range fields {
		switch key {
		case "teams":
			user.Details.Teams = value.([]models.UserTeamRef)
		case "workspaces":
			user.Details.Workspaces = value.([]models.UserWorkspaceRef)
		default:
			return fmt.Errorf("unexpected user field %q", key)
		}
	}
	return nil
}

func (r *memRepo) PendingTeamIDs(ctx context.Context, email string) ([]string, error) {
	return r.pending[NormalizeEmail(email)], nil
}

func (r *memRepo) AddPendingTeam(ctx context.Context, email, teamID string) error {
	email = NormalizeEmail(email)
	for _, id := range r.pending[email] {
		if id == teamID {
			return nil
		}
	}
	r.pending[email] = append(r.pending[email], teamID)
	return nil
}

func (r *memRepo) RemovePendingTeam(ctx context.Context, email, teamID string) error {
	email = NormalizeEmail(email)
	kept := []string{}
	for _, id := range r.pending[email] {
		if id != teamID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(r.pending, email)
		return nil
	}
	r.pending[email] = kept
	return nil
}

type recordedEvent struct {
	topic   string
	teamID  string
	payload interface{}
}

type recordingPropagator struct {
	events []recordedEvent
}

func (p *recordingPropagator) Emit(topic, teamID string, payload interface{}) {
	p.events = append(p.events, recordedEvent{topic: topic, teamID: teamID, payload: payload})
}

type sentEmail struct {
	template  Template
	recipient string
	data      map[string]interface{}
}

type recordingNotifier struct {
	sent []sentEmail
}

func (n *recordingNotifier) Send(template Template, recipient string, data map[string]interface{}) {
	n.sent = append(n.sent, sentEmail{template: template, recipient: recipient, data: data})
}

// fixture: a team with an owner, one admin, one plain member and two
// workspaces, all mirrors consistent
type engineFixture struct {
	repo     *memRepo
	events   *recordingPropagator
	notifier *recordingNotifier
	engine   *Engine
	teamID   string
}

func newEngineFixture() *engineFixture {
	repo := newMemRepo()
	oid := primitive.NewObjectID()
	teamID := oid.Hex()

	workspaces := []models.WorkspaceRef{
		{ID: "ws-1", Name: "Design"},
		{ID: "ws-2", Name: "Engineering"},
	}
	repo.teams[teamID] = &models.Team{
		ID: oid,
		Details: models.TeamDetails{
			Name:    "Acme",
			OwnerID: "owner-1",
			Admins:  []string{"admin-1"},
			Users: []models.TeamMember{
				{ID: "owner-1", Email: "owner@acme.io", Name: "Olive Owner", Role: models.RoleOwner},
				{ID: "admin-1", Email: "admin@acme.io", Name: "Andy Admin", Role: models.RoleAdmin},
				{ID: "member-1", Email: "member@acme.io", Name: "Mia Member", Role: models.RoleMember},
			},
			Invites:    []models.Invite{},
			Workspaces: workspaces,
		},
	}
	repo.users["owner-1"] = &models.User{
		ID: "owner-1",
		Details: models.UserDetails{
			Email: "owner@acme.io",
			Name:  "Olive Owner",
			Teams: []models.UserTeamRef{{ID: teamID, Name: "Acme", Role: models.RoleOwner}},
			Workspaces: []models.UserWorkspaceRef{
				{TeamID: teamID, WorkspaceID: "ws-1", Name: "Design"},
				{TeamID: teamID, WorkspaceID: "ws-2", Name: "Engineering"},
			},
		},
	}
	repo.users["admin-1"] = &models.User{
		ID: "admin-1",
		Details: models.UserDetails{
			Email: "admin@acme.io",
			Name:  "Andy Admin",
			Teams: []models.UserTeamRef{{ID: teamID, Name: "Acme", Role: models.RoleAdmin}},
			Workspaces: []models.UserWorkspaceRef{
				{TeamID: teamID, WorkspaceID: "ws-1", Name: "Design"},
				{TeamID: teamID, WorkspaceID: "ws-2", Name: "Engineering"},
			},
		},
	}
	repo.users["member-1"] = &models.User{
		ID: "member-1",
		Details: models.UserDetails{
			Email: "member@acme.io",
			Name:  "Mia Member",
			Teams: []models.UserTeamRef{{ID: teamID, Name: "Acme", Role: models.RoleMember}},
			Workspaces: []models.UserWorkspaceRef{
				{TeamID: teamID, WorkspaceID: "ws-1", Name: "Design"},
			},
		},
	}
	repo.users["outsider-1"] = &models.User{
		ID: "outsider-1",
		Details: models.UserDetails{
			Email:      "outsider@example.com",
			Name:       "Oscar Outsider",
			Teams:      []models.UserTeamRef{},
			Workspaces: []models.UserWorkspaceRef{},
		},
	}

	events := &recordingPropagator{}
	notifier := &recordingNotifier{}
	return &engineFixture{
		repo:     repo,
		events:   events,
		notifier: notifier,
		engine:   NewEngine(repo, events, notifier),
		teamID:   teamID,
	}
}

// assertTeamInvariants checks the structural invariants every operation must
// preserve: the owner is listed as a member with the owner role and never
// appears in admins, and every admin id is also a member.
func assertTeamInvariants(t *testing.T, team *models.Team) {
	t.Helper()
	owner := team.Details.Member(team.Details.OwnerID)
	if assert.NotNil(t, owner, "owner must be in the member list") {
		assert.Equal(t, models.RoleOwner, owner.Role)
	}
	assert.NotContains(t, team.Details.Admins, team.Details.OwnerID, "owner must not be in admins")
	for _, adminID := range team.Details.Admins {
		member := team.Details.Member(adminID)
		if assert.NotNil(t, member, "admin %s must be a member", adminID) {
			assert.Equal(t, models.RoleAdmin, member.Role)
		}
	}
}

func TestAddUser_MemberGetsRequestedWorkspaces(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["outsider-1"]

	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleMember,
		[]models.WorkspaceRef{{ID: "ws-1", Name: "Design"}}, "owner-1")
	assert.NoError(t, err)

	team := f.repo.teams[f.teamID]
	member := team.Details.Member("outsider-1")
	if assert.NotNil(t, member) {
		assert.Equal(t, models.RoleMember, member.Role)
		assert.Equal(t, "outsider@example.com", member.Email)
	}
	assert.NotContains(t, team.Details.Admins, "outsider-1")

	ref := target.Details.TeamRef(f.teamID)
	if assert.NotNil(t, ref) {
		assert.Equal(t, models.RoleMember, ref.Role)
		assert.True(t, ref.IsNewInvite)
	}
	assert.True(t, target.Details.HasWorkspace(f.teamID, "ws-1"))
	assert.False(t, target.Details.HasWorkspace(f.teamID, "ws-2"))

	if assert.Len(t, f.events.events, 1) {
		assert.Equal(t, models.EventUserAddedToTeam, f.events.events[0].topic)
		assert.Equal(t, f.teamID, f.events.events[0].teamID)
		payload := f.events.events[0].payload.(models.TeamMembershipEvent)
		assert.Equal(t, "outsider-1", payload.UserID)
		assert.Len(t, payload.TeamWorkspaces, 1)
	}
	assertTeamInvariants(t, team)
}

func TestAddUser_AdminGetsAllTeamWorkspaces(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["outsider-1"]

	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleAdmin, nil, "owner-1")
	assert.NoError(t, err)

	team := f.repo.teams[f.teamID]
	assert.Contains(t, team.Details.Admins, "outsider-1")
	assert.True(t, target.Details.HasWorkspace(f.teamID, "ws-1"))
	assert.True(t, target.Details.HasWorkspace(f.teamID, "ws-2"))
	assertTeamInvariants(t, team)
}

func TestAddUser_RejectsOwnerRole(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["outsider-1"]

	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleOwner, nil, "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAddUser_ForbiddenForPlainMemberActor(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["outsider-1"]

	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleMember, nil, "member-1")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.events.events)
}

func TestAddUser_SelfJoinAllowed(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["outsider-1"]

	// invite acceptance runs with actor == target
	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleMember, nil, "outsider-1")
	assert.NoError(t, err)
	assert.NotNil(t, f.repo.teams[f.teamID].Details.Member("outsider-1"))
}

func TestAddUser_DropsPendingInviteForSameEmail(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["outsider-1"]
	team := f.repo.teams[f.teamID]
	team.Details.Invites = append(team.Details.Invites, models.Invite{
		InviteID:  "inv-1",
		Email:     "outsider@example.com",
		Role:      models.RoleMember,
		ExpiresAt: primitive.NewDateTimeFromTime(time.Now().Add(time.Hour)),
	})
	f.repo.pending["outsider@example.com"] = []string{f.teamID}

	// direct add supersedes the open invite; member and pending invite for
	// the same email must never coexist
	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleMember, nil, "owner-1")
	assert.NoError(t, err)

	assert.NotNil(t, team.Details.Member("outsider-1"))
	assert.Empty(t, team.Details.Invites)
	assert.Empty(t, f.repo.pending["outsider@example.com"])
	assertTeamInvariants(t, team)
}

func TestAddUser_UnrelatedInvitesUntouched(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["outsider-1"]
	team := f.repo.teams[f.teamID]
	team.Details.Invites = append(team.Details.Invites, models.Invite{
		InviteID:  "inv-other",
		Email:     "other@example.com",
		Role:      models.RoleMember,
		ExpiresAt: primitive.NewDateTimeFromTime(time.Now().Add(time.Hour)),
	})
	f.repo.pending["other@example.com"] = []string{f.teamID}

	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleMember, nil, "owner-1")
	assert.NoError(t, err)

	assert.Len(t, team.Details.Invites, 1)
	assert.Equal(t, []string{f.teamID}, f.repo.pending["other@example.com"])
}

func TestAddUser_DuplicateMemberConflict(t *testing.T) {
	f := newEngineFixture()
	target := f.repo.users["member-1"]

	err := f.engine.AddUser(context.Background(), f.teamID, target, models.RoleMember, nil, "owner-1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRemoveUser_CleansBothSides(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.RemoveUser(context.Background(), f.teamID, "member-1", "admin-1")
	assert.NoError(t, err)

	team := f.repo.teams[f.teamID]
	assert.Nil(t, team.Details.Member("member-1"))

	member := f.repo.users["member-1"]
	assert.Nil(t, member.Details.TeamRef(f.teamID))
	assert.False(t, member.Details.HasWorkspace(f.teamID, "ws-1"))

	if assert.Len(t, f.events.events, 1) {
		assert.Equal(t, models.EventUserRemovedFromTeam, f.events.events[0].topic)
	}
	if assert.Len(t, f.notifier.sent, 1) {
		assert.Equal(t, TemplateMemberRemoved, f.notifier.sent[0].template)
		assert.Equal(t, "owner@acme.io", f.notifier.sent[0].recipient)
	}
	assertTeamInvariants(t, team)
}

func TestRemoveUser_OwnerCannotBeRemoved(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.RemoveUser(context.Background(), f.teamID, "owner-1", "admin-1")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.NotNil(t, f.repo.teams[f.teamID].Details.Member("owner-1"))
}

func TestRemoveUser_ForbiddenForPlainMemberActor(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.RemoveUser(context.Background(), f.teamID, "admin-1", "member-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAddAdmin_GrantsAllTeamWorkspaces(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.AddAdmin(context.Background(), f.teamID, "member-1", "owner-1")
	assert.NoError(t, err)

	team := f.repo.teams[f.teamID]
	assert.Contains(t, team.Details.Admins, "member-1")
	assert.Equal(t, models.RoleAdmin, team.Details.Member("member-1").Role)

	member := f.repo.users["member-1"]
	assert.Equal(t, models.RoleAdmin, member.Details.TeamRef(f.teamID).Role)
	assert.True(t, member.Details.HasWorkspace(f.teamID, "ws-1"))
	assert.True(t, member.Details.HasWorkspace(f.teamID, "ws-2"))

	if assert.Len(t, f.events.events, 1) {
		assert.Equal(t, models.EventTeamAdminAdded, f.events.events[0].topic)
	}
	if assert.Len(t, f.notifier.sent, 1) {
		assert.Equal(t, TemplateAdminPromoted, f.notifier.sent[0].template)
		assert.Equal(t, "member@acme.io", f.notifier.sent[0].recipient)
	}
	assertTeamInvariants(t, team)
}

func TestAddAdmin_AlreadyAdminRejected(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.AddAdmin(context.Background(), f.teamID, "admin-1", "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAddAdmin_OwnerRejected(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.AddAdmin(context.Background(), f.teamID, "owner-1", "admin-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAddAdmin_NonMemberRejected(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.AddAdmin(context.Background(), f.teamID, "outsider-1", "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDemoteAdmin_KeepsWorkspaceAccess(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.DemoteAdmin(context.Background(), f.teamID, "admin-1", "owner-1")
	assert.NoError(t, err)

	team := f.repo.teams[f.teamID]
	assert.NotContains(t, team.Details.Admins, "admin-1")
	assert.Equal(t, models.RoleMember, team.Details.Member("admin-1").Role)

	demoted := f.repo.users["admin-1"]
	assert.Equal(t, models.RoleMember, demoted.Details.TeamRef(f.teamID).Role)

	// workspace access granted on promotion survives the demotion
	assert.True(t, demoted.Details.HasWorkspace(f.teamID, "ws-1"))
	assert.True(t, demoted.Details.HasWorkspace(f.teamID, "ws-2"))

	if assert.Len(t, f.events.events, 1) {
		assert.Equal(t, models.EventTeamAdminDemoted, f.events.events[0].topic)
	}
	if assert.Len(t, f.notifier.sent, 1) {
		assert.Equal(t, TemplateAdminDemoted, f.notifier.sent[0].template)
	}
	assertTeamInvariants(t, team)
}

func TestDemoteAdmin_OwnerRejected(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.DemoteAdmin(context.Background(), f.teamID, "owner-1", "admin-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDemoteAdmin_PlainMemberRejected(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.DemoteAdmin(context.Background(), f.teamID, "member-1", "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestChangeOwner_SwapsRolesOnBothSides(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.ChangeOwner(context.Background(), f.teamID, "admin-1", "owner-1")
	assert.NoError(t, err)

	team := f.repo.teams[f.teamID]
	assert.Equal(t, "admin-1", team.Details.OwnerID)
	assert.Equal(t, models.RoleOwner, team.Details.Member("admin-1").Role)
	assert.Equal(t, models.RoleAdmin, team.Details.Member("owner-1").Role)
	assert.Contains(t, team.Details.Admins, "owner-1")
	assert.NotContains(t, team.Details.Admins, "admin-1")

	assert.Equal(t, models.RoleOwner, f.repo.users["admin-1"].Details.TeamRef(f.teamID).Role)
	assert.Equal(t, models.RoleAdmin, f.repo.users["owner-1"].Details.TeamRef(f.teamID).Role)

	if assert.Len(t, f.notifier.sent, 2) {
		recipients := []string{f.notifier.sent[0].recipient, f.notifier.sent[1].recipient}
		assert.Contains(t, recipients, "owner@acme.io")
		assert.Contains(t, recipients, "admin@acme.io")
	}
	assertTeamInvariants(t, team)
}

func TestChangeOwner_RequiresAdminTarget(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.ChangeOwner(context.Background(), f.teamID, "member-1", "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, "owner-1", f.repo.teams[f.teamID].Details.OwnerID)
}

func TestChangeOwner_OnlyOwnerMayTransfer(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.ChangeOwner(context.Background(), f.teamID, "admin-1", "admin-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestChangeOwner_SelfTransferRejected(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.ChangeOwner(context.Background(), f.teamID, "owner-1", "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLeaveTeam_RemovesSelf(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.LeaveTeam(context.Background(), f.teamID, "member-1")
	assert.NoError(t, err)

	assert.Nil(t, f.repo.teams[f.teamID].Details.Member("member-1"))
	assert.Nil(t, f.repo.users["member-1"].Details.TeamRef(f.teamID))
	if assert.Len(t, f.notifier.sent, 1) {
		assert.Equal(t, TemplateMemberLeft, f.notifier.sent[0].template)
		assert.Equal(t, "owner@acme.io", f.notifier.sent[0].recipient)
	}
}

func TestLeaveTeam_OwnerMustTransferFirst(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.LeaveTeam(context.Background(), f.teamID, "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.NotNil(t, f.repo.teams[f.teamID].Details.Member("owner-1"))
}

func TestUpdateTeamDetails_SyncsNameToMirrors(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.UpdateTeamDetails(context.Background(), f.teamID, "Acme Corp", "admin-1")
	assert.NoError(t, err)

	assert.Equal(t, "Acme Corp", f.repo.teams[f.teamID].Details.Name)
	for _, userID := range []string{"owner-1", "admin-1", "member-1"} {
		assert.Equal(t, "Acme Corp", f.repo.users[userID].Details.TeamRef(f.teamID).Name)
	}
	if assert.Len(t, f.events.events, 1) {
		assert.Equal(t, models.EventTeamDetailsUpdated, f.events.events[0].topic)
		payload := f.events.events[0].payload.(models.TeamDetailsEvent)
		assert.Equal(t, "Acme Corp", payload.TeamName)
	}
}

func TestUpdateTeamDetails_EmptyNameRejected(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.UpdateTeamDetails(context.Background(), f.teamID, "", "owner-1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSeatUsage_CountsMembersAndInvites(t *testing.T) {
	f := newEngineFixture()
	team := f.repo.teams[f.teamID]
	team.Details.Invites = append(team.Details.Invites, models.Invite{InviteID: "inv-1", Email: "new@example.com"})

	usage, err := f.engine.SeatUsage(context.Background(), f.teamID)
	assert.NoError(t, err)
	assert.Equal(t, 3, usage.Members)
	assert.Equal(t, 1, usage.PendingInvites)
}
