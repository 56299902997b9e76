package services

import (
	"landmarket-server/models"

	"golang.org/x/exp/slices"
)

// Denial kinds let the HTTP boundary surface an accurate message: a role
// problem, an ownership/participation problem, or a field the actor's role is
// not allowed to touch.
const (
	DenyWrongRole      = "wrong_role"
	DenyNotParticipant = "not_participant"
	DenyInvalidField   = "invalid_field"
)

type Decision struct {
	Allowed bool
	Kind    string
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(kind, reason string) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// CanCreateProperty: only landowners list properties.
func CanCreateProperty(actor *models.User) Decision {
	if actor.Role != models.RoleLandowner {
		return deny(DenyWrongRole, "only landowners can create properties")
	}
	return allow()
}

// CanMutateProperty covers update and delete: the owner or an admin.
func CanMutateProperty(actor *models.User, property *models.Property) Decision {
	if property.OwnerID == actor.ID || actor.Role == models.RoleAdmin {
		return allow()
	}
	return deny(DenyNotParticipant, "you are not the owner of this property")
}

// CanMutatePropertyImage covers adding and deleting images of a property.
func CanMutatePropertyImage(actor *models.User, property *models.Property) Decision {
	if property.OwnerID == actor.ID || actor.Role == models.RoleAdmin {
		return allow()
	}
	return deny(DenyNotParticipant, "you are not the owner of this property")
}

// CanCreateVisitRequest: non-owners only, and only while the property is
// available.
func CanCreateVisitRequest(actor *models.User, property *models.Property) Decision {
	if property.OwnerID == actor.ID {
		return deny(DenyNotParticipant, "you cannot request a visit of your own property")
	}
	if !property.Available() {
		return deny(DenyInvalidField, "this property is no longer available")
	}
	return allow()
}

// CanUpdateVisitRequest applies the per-role field mask: the property owner
// may only change the status, the requester may change everything except the
// status, admins are unrestricted.
func CanUpdateVisitRequest(actor *models.User, visit *models.VisitRequest, property *models.Property, changedFields []string) Decision {
	switch {
	case property.OwnerID == actor.ID:
		for _, field := range changedFields {
			if field != "status" {
				return deny(DenyInvalidField, "owners may only change the status of a visit request")
			}
		}
		return allow()
	case visit.RequesterID == actor.ID:
		if slices.Contains(changedFields, "status") {
			return deny(DenyInvalidField, "you cannot change the status of your own visit request")
		}
		for _, field := range changedFields {
			if field != "requested_date" && field != "description" {
				return deny(DenyInvalidField, "you may only change the date and description of your visit request")
			}
		}
		return allow()
	case actor.Role == models.RoleAdmin:
		return allow()
	}
	return deny(DenyNotParticipant, "you are not a participant of this visit request")
}

// CanCreateReport: anyone but the property's owner.
func CanCreateReport(actor *models.User, property *models.Property) Decision {
	if property.OwnerID == actor.ID {
		return deny(DenyNotParticipant, "you cannot report your own property")
	}
	return allow()
}

// CanUpdateReport: non-admins may only edit the description.
func CanUpdateReport(actor *models.User, changedFields []string) Decision {
	if actor.Role == models.RoleAdmin {
		return allow()
	}
	for _, field := range changedFields {
		if field != "description" {
			return deny(DenyInvalidField, "you may only change the description of your report")
		}
	}
	return allow()
}

// CanCreateTransaction: buyers only, never on their own property, only while
// the property is still on the market, and at most one pending transaction
// per (property, buyer) pair.
func CanCreateTransaction(actor *models.User, property *models.Property, hasPendingTransaction bool) Decision {
	if actor.Role != models.RoleBuyer {
		return deny(DenyWrongRole, "only buyers can initiate transactions")
	}
	if property.OwnerID == actor.ID {
		return deny(DenyNotParticipant, "you cannot buy your own property")
	}
	if !property.Available() {
		return deny(DenyInvalidField, "this property is no longer available")
	}
	if hasPendingTransaction {
		return deny(DenyInvalidField, "you already have a pending transaction for this property")
	}
	return allow()
}

// CanUpdateTransaction gates status moves: the buyer may only back out
// (rejected), the seller may accept, reject or complete, admins are
// unrestricted. Everyone else is denied.
func CanUpdateTransaction(actor *models.User, transaction *models.Transaction, newStatus string, statusChanging bool) Decision {
	switch {
	case actor.Role == models.RoleAdmin:
		return allow()
	case actor.ID == transaction.BuyerID:
		if statusChanging && newStatus != models.TransactionStatusRejected {
			return deny(DenyInvalidField, "buyers can only reject transactions")
		}
		return allow()
	case actor.ID == transaction.SellerID:
		if statusChanging {
			switch newStatus {
			case models.TransactionStatusAccepted, models.TransactionStatusRejected, models.TransactionStatusCompleted:
			default:
				return deny(DenyInvalidField, "invalid status change for seller")
			}
		}
		return allow()
	}
	return deny(DenyNotParticipant, "you are not a participant of this transaction")
}
