package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
)

var (
	admin    = &entity.User{ID: 1, Role: entity.RoleAdmin, Active: true}
	operator = &entity.User{ID: 2, Role: entity.RoleOperator, Active: true}
	other    = int64(3)
)

func id(v int64) *int64 { return &v }

func TestActivityRules(t *testing.T) {
	tests := []struct {
		name     string
		p        *entity.User
		req      policy.Request
		expected bool
	}{
		{"admin reads foreign activity", admin, policy.Request{Action: policy.ActionRead, CreatorID: other}, true},
		{"admin deletes foreign activity", admin, policy.Request{Action: policy.ActionDelete, CreatorID: other}, true},
		{"operator reads own", operator, policy.Request{Action: policy.ActionRead, CreatorID: operator.ID}, true},
		{"operator reads assigned", operator, policy.Request{Action: policy.ActionRead, CreatorID: other, AssigneeID: id(operator.ID)}, true},
		{"operator reads foreign", operator, policy.Request{Action: policy.ActionRead, CreatorID: other, AssigneeID: id(other)}, false},
		{"operator reads foreign unassigned", operator, policy.Request{Action: policy.ActionRead, CreatorID: other}, false},
		{"operator creates", operator, policy.Request{Action: policy.ActionCreate, CreatorID: operator.ID}, true},
		{"operator updates own", operator, policy.Request{Action: policy.ActionUpdate, CreatorID: operator.ID}, true},
		{"operator updates assigned", operator, policy.Request{Action: policy.ActionUpdate, CreatorID: other, AssigneeID: id(operator.ID)}, false},
		{"operator changes status of assigned", operator, policy.Request{Action: policy.ActionChangeStatus, CreatorID: other, AssigneeID: id(operator.ID)}, false},
		{"operator deletes assigned", operator, policy.Request{Action: policy.ActionDelete, CreatorID: other, AssigneeID: id(operator.ID)}, false},
		{"operator deletes own", operator, policy.Request{Action: policy.ActionDelete, CreatorID: operator.ID}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Resource = policy.ResourceActivity
			d := policy.Evaluate(tt.p, tt.req)
			assert.Equal(t, tt.expected, d.Allowed, d.Reason)
		})
	}
}

func TestCategoryRules(t *testing.T) {
	for _, a := range []policy.Action{policy.ActionCreate, policy.ActionUpdate, policy.ActionDelete} {
		assert.True(t, policy.Evaluate(admin, policy.Request{Action: a, Resource: policy.ResourceCategory}).Allowed)
		assert.False(t, policy.Evaluate(operator, policy.Request{Action: a, Resource: policy.ResourceCategory}).Allowed)
	}
	for _, a := range []policy.Action{policy.ActionRead, policy.ActionList} {
		assert.True(t, policy.Evaluate(operator, policy.Request{Action: a, Resource: policy.ResourceCategory}).Allowed)
	}
}

func TestUserRules(t *testing.T) {
	tests := []struct {
		name     string
		p        *entity.User
		req      policy.Request
		expected bool
	}{
		{"admin lists", admin, policy.Request{Action: policy.ActionList}, true},
		{"admin updates other role", admin, policy.Request{Action: policy.ActionUpdate, TargetID: other, Fields: []string{"role", "is_active"}}, true},
		{"admin deletes other", admin, policy.Request{Action: policy.ActionDelete, TargetID: other}, true},
		{"admin deletes self", admin, policy.Request{Action: policy.ActionDelete, TargetID: admin.ID}, false},
		{"admin demotes self", admin, policy.Request{Action: policy.ActionUpdate, TargetID: admin.ID, Fields: []string{"role"}}, false},
		{"admin deactivates self", admin, policy.Request{Action: policy.ActionUpdate, TargetID: admin.ID, Fields: []string{"is_active"}}, false},
		{"admin renames self", admin, policy.Request{Action: policy.ActionUpdate, TargetID: admin.ID, Fields: []string{"username"}}, true},
		{"operator lists", operator, policy.Request{Action: policy.ActionList}, false},
		{"operator creates", operator, policy.Request{Action: policy.ActionCreate}, false},
		{"operator reads self", operator, policy.Request{Action: policy.ActionRead, TargetID: operator.ID}, true},
		{"operator reads other", operator, policy.Request{Action: policy.ActionRead, TargetID: other}, false},
		{"operator updates own handles", operator, policy.Request{Action: policy.ActionUpdate, TargetID: operator.ID, Fields: []string{"username", "email"}}, true},
		{"operator promotes self", operator, policy.Request{Action: policy.ActionUpdate, TargetID: operator.ID, Fields: []string{"role"}}, false},
		{"operator reactivates self", operator, policy.Request{Action: policy.ActionUpdate, TargetID: operator.ID, Fields: []string{"is_active"}}, false},
		{"operator updates other", operator, policy.Request{Action: policy.ActionUpdate, TargetID: other, Fields: []string{"username"}}, false},
		{"operator deletes self", operator, policy.Request{Action: policy.ActionDelete, TargetID: operator.ID}, false},
		{"operator changes other password", operator, policy.Request{Action: policy.ActionChangePassword, TargetID: other}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Resource = policy.ResourceUser
			d := policy.Evaluate(tt.p, tt.req)
			assert.Equal(t, tt.expected, d.Allowed, d.Reason)
		})
	}
}

func TestPasswordChangeReproof(t *testing.T) {
	self := policy.Evaluate(operator, policy.Request{Action: policy.ActionChangePassword, Resource: policy.ResourceUser, TargetID: operator.ID})
	assert.True(t, self.Allowed)
	assert.True(t, self.RequireCurrentSecret)

	adminSelf := policy.Evaluate(admin, policy.Request{Action: policy.ActionChangePassword, Resource: policy.ResourceUser, TargetID: admin.ID})
	assert.True(t, adminSelf.Allowed)
	assert.True(t, adminSelf.RequireCurrentSecret)

	adminOther := policy.Evaluate(admin, policy.Request{Action: policy.ActionChangePassword, Resource: policy.ResourceUser, TargetID: other})
	assert.True(t, adminOther.Allowed)
	assert.False(t, adminOther.RequireCurrentSecret)
}

func TestAuditIsAdminOnly(t *testing.T) {
	assert.True(t, policy.Evaluate(admin, policy.Request{Action: policy.ActionList, Resource: policy.ResourceAudit}).Allowed)
	assert.False(t, policy.Evaluate(operator, policy.Request{Action: policy.ActionList, Resource: policy.ResourceAudit}).Allowed)
}

func TestUnknownRoleAndNilPrincipalAreDenied(t *testing.T) {
	ghost := &entity.User{ID: 9, Role: entity.Role("guest")}
	assert.False(t, policy.Evaluate(ghost, policy.Request{Action: policy.ActionRead, Resource: policy.ResourceCategory}).Allowed)
	assert.False(t, policy.Evaluate(nil, policy.Request{Action: policy.ActionRead, Resource: policy.ResourceCategory}).Allowed)
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	_, err := policy.Authorize(operator, policy.Request{Action: policy.ActionDelete, Resource: policy.ResourceCategory})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	d, err := policy.Authorize(admin, policy.Request{Action: policy.ActionDelete, Resource: policy.ResourceCategory})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestActivityScope(t *testing.T) {
	assert.Nil(t, policy.ActivityScope(admin))
	scope := policy.ActivityScope(operator)
	require.NotNil(t, scope)
	assert.Equal(t, operator.ID, *scope)
}
