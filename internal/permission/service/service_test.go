package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	groupstore "permit/internal/permission/store/group"
	overridestore "permit/internal/permission/store/override"
	templatestore "permit/internal/permission/store/template"
	id "permit/pkg/domain"
	dErrors "permit/pkg/domain-errors"
	"permit/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	service    *Service
	groups     *groupstore.InMemoryStore
	overrides  *overridestore.InMemoryStore
	templates  *templatestore.InMemoryStore
	auditStore *audit.InMemoryStore
	ctx        context.Context
	actorID    id.UserID
	now        time.Time
}

func (s *ServiceSuite) SetupTest() {
	catalogStore := catalog.NewInMemoryStore()
	catalog.SeedHospitalityCatalog(catalogStore)

	s.groups = groupstore.NewInMemoryStore()
	s.overrides = overridestore.NewInMemoryStore()
	s.templates = templatestore.NewInMemory()
	s.auditStore = audit.NewInMemoryStore()

	s.service = New(
		catalog.NewRegistry(catalogStore),
		s.groups, s.overrides, s.templates,
		audit.NewLedger(s.auditStore),
	)

	s.actorID = id.UserID(uuid.New())
	s.now = time.Date(2025, time.March, 10, 14, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithActorID(context.Background(), s.actorID), s.now)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) pair(module, action string) catalog.Pair {
	return catalog.Pair{ModuleKey: module, ActionKey: action}
}

func (s *ServiceSuite) TestGrantAppendsOneAuditEntry() {
	userID := id.UserID(uuid.New())

	overrideID, err := s.service.Grant(s.ctx, GrantRequest{
		UserID: userID,
		Pair:   s.pair("pos", "view"),
	})
	s.Require().NoError(err)
	s.False(overrideID.IsNil())
	s.Equal(1, s.auditStore.Count())

	entries, err := s.auditStore.List(s.ctx, audit.Filter{}, 10)
	s.Require().NoError(err)
	s.Equal(audit.ActionPermissionGranted, entries[0].ActionType)
	s.Equal(audit.RiskLow, entries[0].RiskLevel)
	s.Equal(s.actorID, entries[0].ActorID)
	s.Require().NotNil(entries[0].TargetUserID)
	s.Equal(userID, *entries[0].TargetUserID)
}

func (s *ServiceSuite) TestGrantFansOutAfterCommit() {
	fanout := make(chan audit.Entry, 4)
	svc := New(s.service.registry, s.groups, s.overrides, s.templates,
		audit.NewLedger(s.auditStore, audit.WithFanout(fanout)))

	_, err := svc.Grant(s.ctx, GrantRequest{
		UserID: id.UserID(uuid.New()),
		Pair:   s.pair("pos", "view"),
	})
	s.Require().NoError(err)

	s.Require().Len(fanout, 1)
	entry := <-fanout
	s.Equal(audit.ActionPermissionGranted, entry.ActionType)
}

func (s *ServiceSuite) TestGrantSensitiveIsHighRisk() {
	_, err := s.service.Grant(s.ctx, GrantRequest{
		UserID: id.UserID(uuid.New()),
		Pair:   s.pair("sales", "refund"),
	})
	s.Require().NoError(err)

	entries, err := s.auditStore.List(s.ctx, audit.Filter{}, 1)
	s.Require().NoError(err)
	s.Equal(audit.RiskHigh, entries[0].RiskLevel)
}

func (s *ServiceSuite) TestGrantHighValueCeilingIsCritical() {
	_, err := s.service.Grant(s.ctx, GrantRequest{
		UserID: id.UserID(uuid.New()),
		Pair:   s.pair("sales", "refund"),
		Conditions: permission.Conditions{
			AmountCeiling: &permission.AmountCeiling{Limit: 5000},
		},
	})
	s.Require().NoError(err)

	entries, err := s.auditStore.List(s.ctx, audit.Filter{}, 1)
	s.Require().NoError(err)
	s.Equal(audit.RiskCritical, entries[0].RiskLevel)
	s.Equal("5000", entries[0].Details["amount_limit"])
}

func (s *ServiceSuite) TestGrantCeilingAtThresholdStaysHigh() {
	_, err := s.service.Grant(s.ctx, GrantRequest{
		UserID: id.UserID(uuid.New()),
		Pair:   s.pair("sales", "refund"),
		Conditions: permission.Conditions{
			AmountCeiling: &permission.AmountCeiling{Limit: DefaultHighValueThreshold},
		},
	})
	s.Require().NoError(err)

	entries, err := s.auditStore.List(s.ctx, audit.Filter{}, 1)
	s.Require().NoError(err)
	s.Equal(audit.RiskHigh, entries[0].RiskLevel)
}

func (s *ServiceSuite) TestGrantUnknownPair() {
	_, err := s.service.Grant(s.ctx, GrantRequest{
		UserID: id.UserID(uuid.New()),
		Pair:   s.pair("sales", "void"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(0, s.auditStore.Count())
}

func (s *ServiceSuite) TestGrantWithoutActor() {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	_, err := s.service.Grant(ctx, GrantRequest{
		UserID: id.UserID(uuid.New()),
		Pair:   s.pair("pos", "view"),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestGrantSupersedesPriorOverride() {
	userID := id.UserID(uuid.New())
	pair := s.pair("pos", "refund")

	firstID, err := s.service.Grant(s.ctx, GrantRequest{UserID: userID, Pair: pair})
	s.Require().NoError(err)
	secondID, err := s.service.Grant(s.ctx, GrantRequest{UserID: userID, Pair: pair})
	s.Require().NoError(err)

	active, err := s.overrides.ActiveOverride(s.ctx, userID, pair)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.Equal(secondID, active.ID)

	history, err := s.overrides.History(s.ctx, userID, pair)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(firstID, history[0].ID)
	s.False(history[0].Active)
	s.Equal(2, s.auditStore.Count())
}

func (s *ServiceSuite) TestRevokeInsertsExplicitDeny() {
	userID := id.UserID(uuid.New())
	pair := s.pair("pos", "void")

	_, err := s.service.Grant(s.ctx, GrantRequest{UserID: userID, Pair: pair})
	s.Require().NoError(err)

	err = s.service.Revoke(s.ctx, RevokeRequest{UserID: userID, Pair: pair, Reason: "policy change"})
	s.Require().NoError(err)

	active, err := s.overrides.ActiveOverride(s.ctx, userID, pair)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.False(active.Granted)

	entries, err := s.auditStore.List(s.ctx, audit.Filter{ActionType: audit.ActionPermissionRevoked}, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.RiskHigh, entries[0].RiskLevel)
	s.Equal("policy change", entries[0].Details["reason"])
}

func (s *ServiceSuite) TestCreateGroupSkipsInvalidInitialPairs() {
	group, err := s.service.CreateGroup(s.ctx, CreateGroupRequest{
		Name:  "Night Shift",
		Color: "#2d6cdf",
		InitialPairs: []catalog.Pair{
			s.pair("pos", "view"),
			s.pair("pos", "bogus"),
		},
	})
	s.Require().NoError(err)

	pairs, err := s.groups.GrantedPairs(s.ctx, group.ID)
	s.Require().NoError(err)
	s.Equal([]catalog.Pair{s.pair("pos", "view")}, pairs)

	entries, err := s.auditStore.List(s.ctx, audit.Filter{ActionType: audit.ActionGroupCreated}, 1)
	s.Require().NoError(err)
	s.Equal("pos:bogus", entries[0].Details["skipped_pairs"])
}

func (s *ServiceSuite) TestReplaceGroupPermissionsLeniency() {
	group, err := s.service.CreateGroup(s.ctx, CreateGroupRequest{Name: "Servers"})
	s.Require().NoError(err)

	result, err := s.service.ReplaceGroupPermissions(s.ctx, group.ID, []catalog.Pair{
		s.pair("pos", "view"),
		s.pair("restaurant", "view"),
		s.pair("restaurant", "refund"),
	})
	s.Require().NoError(err)
	s.Equal(2, result.ReplacedCount)
	s.Equal([]catalog.Pair{s.pair("restaurant", "refund")}, result.SkippedPairs)
}

func (s *ServiceSuite) TestReplaceGroupPermissionsSensitiveRisk() {
	group, err := s.service.CreateGroup(s.ctx, CreateGroupRequest{Name: "Managers"})
	s.Require().NoError(err)

	_, err = s.service.ReplaceGroupPermissions(s.ctx, group.ID, []catalog.Pair{
		s.pair("pos", "view"),
		s.pair("sales", "refund"),
	})
	s.Require().NoError(err)

	entries, err := s.auditStore.List(s.ctx, audit.Filter{ActionType: audit.ActionGroupPermissionsReplaced}, 1)
	s.Require().NoError(err)
	s.Equal(audit.RiskMedium, entries[0].RiskLevel)
}

func (s *ServiceSuite) TestReplaceRollbackKeepsPriorSetAndSkipsAudit() {
	group, err := s.service.CreateGroup(s.ctx, CreateGroupRequest{
		Name:         "Servers",
		InitialPairs: []catalog.Pair{s.pair("pos", "view")},
	})
	s.Require().NoError(err)
	before := s.auditStore.Count()

	failing := &failingGroupStore{GroupStore: s.groups}
	svc := New(s.service.registry, failing, s.overrides, s.templates, audit.NewLedger(s.auditStore))

	_, err = svc.ReplaceGroupPermissions(s.ctx, group.ID, []catalog.Pair{s.pair("inventory", "view")})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	pairs, err := s.groups.GrantedPairs(s.ctx, group.ID)
	s.Require().NoError(err)
	s.Equal([]catalog.Pair{s.pair("pos", "view")}, pairs)
	s.Equal(before, s.auditStore.Count())
}

func (s *ServiceSuite) TestMembershipLifecycle() {
	group, err := s.service.CreateGroup(s.ctx, CreateGroupRequest{Name: "Servers"})
	s.Require().NoError(err)
	userID := id.UserID(uuid.New())

	membershipID, err := s.service.AddMember(s.ctx, group.ID, userID, nil)
	s.Require().NoError(err)
	s.False(membershipID.IsNil())

	_, err = s.service.AddMember(s.ctx, group.ID, userID, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	err = s.service.RemoveMember(s.ctx, group.ID, userID, "transferred")
	s.Require().NoError(err)

	err = s.service.RemoveMember(s.ctx, group.ID, userID, "again")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	// join, conflict-join, leave: one entry each for the successes
	entries, err := s.auditStore.List(s.ctx, audit.Filter{TargetUserID: userID}, 10)
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *ServiceSuite) TestCreateTemplateRejectsUnknownPair() {
	_, err := s.service.CreateTemplate(s.ctx, CreateTemplateRequest{
		Name:  "Cashier",
		Pairs: []catalog.Pair{s.pair("pos", "view"), s.pair("pos", "bogus")},
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(0, s.auditStore.Count())
}

func (s *ServiceSuite) TestApplyTemplateToGroup() {
	tpl, err := s.service.CreateTemplate(s.ctx, CreateTemplateRequest{
		Name:  "Cashier",
		Pairs: []catalog.Pair{s.pair("pos", "view"), s.pair("sales", "create")},
	})
	s.Require().NoError(err)

	group, err := s.service.CreateGroup(s.ctx, CreateGroupRequest{Name: "Front Desk"})
	s.Require().NoError(err)

	result, err := s.service.ApplyTemplateToGroup(s.ctx, tpl.ID, group.ID)
	s.Require().NoError(err)
	s.Equal(2, result.ReplacedCount)

	pairs, err := s.groups.GrantedPairs(s.ctx, group.ID)
	s.Require().NoError(err)
	s.Len(pairs, 2)

	entries, err := s.auditStore.List(s.ctx, audit.Filter{ActionType: audit.ActionGroupPermissionsReplaced}, 10)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *ServiceSuite) TestApplyTemplateUnknownTemplate() {
	group, err := s.service.CreateGroup(s.ctx, CreateGroupRequest{Name: "Front Desk"})
	s.Require().NoError(err)

	_, err = s.service.ApplyTemplateToGroup(s.ctx, id.TemplateID(uuid.New()), group.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// failingGroupStore fails every permission replacement without touching
// state, standing in for a storage fault mid-transaction.
type failingGroupStore struct {
	GroupStore
}

func (f *failingGroupStore) ReplacePermissions(context.Context, id.GroupID, []permission.GroupPermission) error {
	return errors.New("storage fault")
}
