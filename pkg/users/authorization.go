package users

import (
	"fmt"

	"github.com/memtensor/memchat/pkg/errors"
)

// Identity is the authenticated caller resolved from a token
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Can reports whether the identity's role grants the action
func (i Identity) Can(action Action) bool {
	return Actions(i.Role).Has(action)
}

// Relation describes how the caller of an update relates to the target user
type Relation int

const (
	RelationNone       Relation = iota // caller may not update the target
	RelationSelf                       // caller updates their own account
	RelationAdmin                      // admin updates another non-superadmin user
	RelationSuperadmin                 // superadmin updates another user
)

var (
	selfFields = []string{
		FieldName, FieldAge, FieldPhone, FieldAddress, FieldCity,
		FieldCountry, FieldZipCode, FieldProfileImage, FieldPassword,
	}
	adminFields      = append(append([]string{}, selfFields...), FieldEmail)
	superadminFields = append(append([]string{}, adminFields...), FieldRole)
)

// RelationTo classifies the caller relative to the target user
func (i Identity) RelationTo(target *User) Relation {
	if i.ID == target.ID {
		return RelationSelf
	}
	if !i.Can(ActionUsersUpdate) {
		return RelationNone
	}

	switch i.Role {
	case RoleSuperadmin:
		return RelationSuperadmin
	case RoleAdmin:
		if target.Role == RoleSuperadmin {
			return RelationNone
		}
		return RelationAdmin
	default:
		return RelationNone
	}
}

// AllowedFields returns the fields a relation may update
func AllowedFields(rel Relation) map[string]bool {
	var fields []string
	switch rel {
	case RelationSelf:
		fields = selfFields
	case RelationAdmin:
		fields = adminFields
	case RelationSuperadmin:
		fields = superadminFields
	}

	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}
	return allowed
}

// AuthorizeUpdate checks every field of the patch against the caller's allow-list
func AuthorizeUpdate(actor Identity, target *User, fields []string) error {
	rel := actor.RelationTo(target)
	if rel == RelationNone {
		return errors.NewForbiddenError("Forbidden: Access denied")
	}

	allowed := AllowedFields(rel)
	for _, f := range fields {
		if !allowed[f] {
			return errors.NewForbiddenError(fmt.Sprintf("You are not allowed to update field: %s", f)).
				WithDetail("field", f)
		}
	}
	return nil
}

// AuthorizeDelete checks that the caller may deactivate the target
func AuthorizeDelete(actor Identity, target *User) error {
	if !actor.Can(ActionUsersDelete) {
		return errors.NewForbiddenError("Forbidden: Access denied")
	}
	if target.Role == RoleSuperadmin || target.ID == actor.ID {
		return errors.NewForbiddenError("Access denied")
	}
	return nil
}
