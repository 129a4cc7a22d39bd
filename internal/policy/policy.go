// Package policy decides whether a principal may perform an operation on
// an entity. Rules are evaluated in order and the first match wins:
//
//  1. admins may do anything except destructive actions on their own account
//  2. operators read/list activities they created or are assigned to
//  3. operators mutate only activities they created
//  4. categories are admin-managed
//  5. operators read/update only their own user record, never its role or active flag
//  6. changing one's own password requires the current one
package policy

import (
	"slices"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
)

type Action int

const (
	ActionRead Action = iota
	ActionList
	ActionCreate
	ActionUpdate
	ActionChangeStatus
	ActionDelete
	ActionChangePassword
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionList:
		return "list"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionChangeStatus:
		return "change status of"
	case ActionDelete:
		return "delete"
	case ActionChangePassword:
		return "change password of"
	default:
		return "unknown"
	}
}

type Resource int

const (
	ResourceActivity Resource = iota
	ResourceCategory
	ResourceUser
	ResourceAudit
)

func (r Resource) String() string {
	switch r {
	case ResourceActivity:
		return "activity"
	case ResourceCategory:
		return "category"
	case ResourceUser:
		return "user"
	case ResourceAudit:
		return "audit"
	default:
		return "unknown"
	}
}

// Request describes one operation. Activity requests carry the target's
// creator and assignee; user requests carry the target id and the fields
// an update touches.
type Request struct {
	Action     Action
	Resource   Resource
	CreatorID  int64
	AssigneeID *int64
	TargetID   int64
	Fields     []string
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Reason  string
	// RequireCurrentSecret is set for self password changes.
	RequireCurrentSecret bool
}

func permit() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// protectedSelfFields may not be changed by a principal on its own record.
var protectedSelfFields = []string{"role", "is_active"}

// operatorSelfFields are the only fields an operator may change on itself.
var operatorSelfFields = []string{"username", "email"}

// Evaluate applies the rules to p and req.
func Evaluate(p *entity.User, req Request) Decision {
	if p == nil {
		return deny("no principal")
	}
	switch p.Role {
	case entity.RoleAdmin:
		return evaluateAdmin(p, req)
	case entity.RoleOperator:
		return evaluateOperator(p, req)
	default:
		return deny("unknown role")
	}
}

// Authorize is Evaluate returning Forbidden on deny.
func Authorize(p *entity.User, req Request) (Decision, error) {
	d := Evaluate(p, req)
	if !d.Allowed {
		return d, apperr.Forbidden(d.Reason)
	}
	return d, nil
}

func evaluateAdmin(p *entity.User, req Request) Decision {
	if req.Resource != ResourceUser || req.TargetID != p.ID {
		return permit()
	}
	switch req.Action {
	case ActionDelete:
		return deny("a principal may not delete its own account")
	case ActionUpdate:
		if touchesAny(req.Fields, protectedSelfFields) {
			return deny("a principal may not change its own role or active flag")
		}
		return permit()
	case ActionChangePassword:
		return Decision{Allowed: true, RequireCurrentSecret: true}
	default:
		return permit()
	}
}

func evaluateOperator(p *entity.User, req Request) Decision {
	switch req.Resource {
	case ResourceActivity:
		return operatorActivity(p, req)
	case ResourceCategory:
		switch req.Action {
		case ActionRead, ActionList:
			return permit()
		default:
			return deny("categories are managed by administrators")
		}
	case ResourceUser:
		return operatorUser(p, req)
	case ResourceAudit:
		return deny("audit records are restricted to administrators")
	default:
		return deny("unknown resource")
	}
}

func operatorActivity(p *entity.User, req Request) Decision {
	isCreator := req.CreatorID == p.ID
	isAssignee := req.AssigneeID != nil && *req.AssigneeID == p.ID

	switch req.Action {
	case ActionCreate:
		return permit()
	case ActionRead, ActionList:
		if isCreator || isAssignee {
			return permit()
		}
		return deny("not allowed to view this activity")
	case ActionUpdate, ActionChangeStatus, ActionDelete:
		if isCreator {
			return permit()
		}
		return deny("only the creator or an administrator may " + req.Action.String() + " this activity")
	default:
		return deny("unsupported activity action")
	}
}

func operatorUser(p *entity.User, req Request) Decision {
	if req.TargetID != p.ID {
		return deny("administrator role required")
	}
	switch req.Action {
	case ActionRead:
		return permit()
	case ActionUpdate:
		for _, f := range req.Fields {
			if !slices.Contains(operatorSelfFields, f) {
				return deny("a principal may not change its own " + f)
			}
		}
		return permit()
	case ActionChangePassword:
		return Decision{Allowed: true, RequireCurrentSecret: true}
	default:
		return deny("administrator role required")
	}
}

func touchesAny(fields, protected []string) bool {
	for _, f := range fields {
		if slices.Contains(protected, f) {
			return true
		}
	}
	return false
}

// ActivityScope returns the principal id list queries must be restricted
// to (rows it created or is assigned to), or nil for an unrestricted view.
func ActivityScope(p *entity.User) *int64 {
	switch p.Role {
	case entity.RoleAdmin:
		return nil
	case entity.RoleOperator:
		id := p.ID
		return &id
	default:
		// unknown roles see nothing they do not own
		id := p.ID
		return &id
	}
}
