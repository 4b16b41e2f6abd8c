package service

import (
	"github.com/segyhp/peer-lending/internal/domain"
	customError "github.com/segyhp/peer-lending/pkg/errors"
)

// Action is an operation gated by the access policy.
type Action string

const (
	ActionRequestLoan    Action = "loan:request"
	ActionApproveLoan    Action = "loan:approve"
	ActionDeclineLoan    Action = "loan:decline"
	ActionListOwnLoans   Action = "loan:list-own"
	ActionListAllPending Action = "loan:list-all-pending"
	ActionPayTerm        Action = "repayment:pay"
	ActionViewSchedule   Action = "repayment:view"
)

type rule struct {
	role   domain.Role
	denied string
}

var policy = map[Action]rule{
	ActionRequestLoan:    {domain.RoleUser, "Only users can make a loan request"},
	ActionApproveLoan:    {domain.RoleAdmin, "Only admins can approve loans"},
	ActionDeclineLoan:    {domain.RoleAdmin, "Only admins can decline loans"},
	ActionListOwnLoans:   {domain.RoleUser, "Admin can't access this route"},
	ActionListAllPending: {domain.RoleAdmin, "You are a user, and this route is only accessible for admins"},
	ActionPayTerm:        {domain.RoleUser, "Only users can make loan repayments"},
	ActionViewSchedule:   {domain.RoleUser, "Only users can access this route"},
}

// Allowed reports whether a caller holding role caller satisfies required.
func Allowed(required, caller domain.Role) bool {
	return caller.Valid() && caller == required
}

// Authorize returns an AuthorizationError unless role may perform action.
// Unknown actions are denied.
func Authorize(action Action, role domain.Role) error {
	r, ok := policy[action]
	if !ok {
		return customError.NewAuthorizationError("Action not permitted")
	}
	if !Allowed(r.role, role) {
		return customError.NewAuthorizationError(r.denied)
	}
	return nil
}
