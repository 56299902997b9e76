package services

import (
	"testing"

	"landmarket-server/models"
)

func testUser(id uint, role string) *models.User {
	user := models.User{Role: role}
	user.ID = id
	return &user
}

func testProperty(id, ownerID uint, available bool) *models.Property {
	property := models.Property{OwnerID: ownerID, IsAvailable: &available}
	property.ID = id
	return &property
}

func TestCanCreateProperty(t *testing.T) {
	if d := CanCreateProperty(testUser(1, models.RoleLandowner)); !d.Allowed {
		t.Fatalf("landowner should create properties: %v", d.Reason)
	}
	if d := CanCreateProperty(testUser(2, models.RoleBuyer)); d.Allowed || d.Kind != DenyWrongRole {
		t.Fatalf("buyer must be denied with wrong_role, got %+v", d)
	}
	if d := CanCreateProperty(testUser(3, models.RoleAdmin)); d.Allowed {
		t.Fatal("admins do not list properties themselves")
	}
}

func TestCanMutateProperty(t *testing.T) {
	property := testProperty(10, 1, true)

	if d := CanMutateProperty(testUser(1, models.RoleLandowner), property); !d.Allowed {
		t.Fatalf("owner should mutate own property: %v", d.Reason)
	}
	if d := CanMutateProperty(testUser(2, models.RoleLandowner), property); d.Allowed {
		t.Fatal("another landowner must not mutate a foreign property")
	}
	if d := CanMutateProperty(testUser(3, models.RoleAdmin), property); !d.Allowed {
		t.Fatalf("admin should mutate any property: %v", d.Reason)
	}
}

func TestCanCreateVisitRequest(t *testing.T) {
	available := testProperty(10, 1, true)
	unavailable := testProperty(11, 1, false)

	if d := CanCreateVisitRequest(testUser(2, models.RoleBuyer), available); !d.Allowed {
		t.Fatalf("buyer should request a visit: %v", d.Reason)
	}
	if d := CanCreateVisitRequest(testUser(1, models.RoleLandowner), available); d.Allowed {
		t.Fatal("owner must not request a visit of their own property")
	}
	if d := CanCreateVisitRequest(testUser(2, models.RoleBuyer), unavailable); d.Allowed {
		t.Fatal("visits on unavailable properties must be denied")
	}
}

func TestCanUpdateVisitRequestFieldMask(t *testing.T) {
	property := testProperty(10, 1, true)
	visit := &models.VisitRequest{PropertyID: 10, RequesterID: 2, Status: models.VisitStatusPending}

	owner := testUser(1, models.RoleLandowner)
	requester := testUser(2, models.RoleBuyer)
	stranger := testUser(3, models.RoleBuyer)
	admin := testUser(4, models.RoleAdmin)

	if d := CanUpdateVisitRequest(owner, visit, property, []string{"status"}); !d.Allowed {
		t.Fatalf("owner should change the status: %v", d.Reason)
	}
	if d := CanUpdateVisitRequest(owner, visit, property, []string{"description"}); d.Allowed {
		t.Fatal("owner must not change anything but the status")
	}
	if d := CanUpdateVisitRequest(requester, visit, property, []string{"requested_date", "description"}); !d.Allowed {
		t.Fatalf("requester should reschedule: %v", d.Reason)
	}
	if d := CanUpdateVisitRequest(requester, visit, property, []string{"status"}); d.Allowed {
		t.Fatal("requester must never change the status")
	}
	if d := CanUpdateVisitRequest(stranger, visit, property, []string{"description"}); d.Allowed || d.Kind != DenyNotParticipant {
		t.Fatalf("stranger must be denied as non-participant, got %+v", d)
	}
	if d := CanUpdateVisitRequest(admin, visit, property, []string{"status", "description"}); !d.Allowed {
		t.Fatalf("admin is unrestricted: %v", d.Reason)
	}
}

func TestCanCreateReport(t *testing.T) {
	property := testProperty(10, 1, true)

	if d := CanCreateReport(testUser(2, models.RoleBuyer), property); !d.Allowed {
		t.Fatalf("non-owner should report: %v", d.Reason)
	}
	if d := CanCreateReport(testUser(1, models.RoleLandowner), property); d.Allowed {
		t.Fatal("owner must not report their own property")
	}
}

func TestCanUpdateReport(t *testing.T) {
	if d := CanUpdateReport(testUser(2, models.RoleBuyer), []string{"description"}); !d.Allowed {
		t.Fatalf("reporter should edit the description: %v", d.Reason)
	}
	if d := CanUpdateReport(testUser(2, models.RoleBuyer), []string{"status"}); d.Allowed {
		t.Fatal("non-admin must not change the report status")
	}
	if d := CanUpdateReport(testUser(3, models.RoleAdmin), []string{"status"}); !d.Allowed {
		t.Fatalf("admin should progress the report status: %v", d.Reason)
	}
}

func TestCanCreateTransaction(t *testing.T) {
	property := testProperty(10, 1, true)

	if d := CanCreateTransaction(testUser(2, models.RoleBuyer), property, false); !d.Allowed {
		t.Fatalf("buyer should open a transaction: %v", d.Reason)
	}
	if d := CanCreateTransaction(testUser(2, models.RoleLandowner), property, false); d.Allowed || d.Kind != DenyWrongRole {
		t.Fatalf("non-buyer must be denied with wrong_role, got %+v", d)
	}
	if d := CanCreateTransaction(testUser(1, models.RoleBuyer), property, false); d.Allowed {
		t.Fatal("buying your own property must be denied")
	}
	if d := CanCreateTransaction(testUser(2, models.RoleBuyer), property, true); d.Allowed {
		t.Fatal("a second pending transaction must be denied")
	}
	if d := CanCreateTransaction(testUser(2, models.RoleBuyer), testProperty(11, 1, false), false); d.Allowed || d.Kind != DenyInvalidField {
		t.Fatalf("an off-market property must be denied with invalid_field, got %+v", d)
	}
}

func TestCanUpdateTransaction(t *testing.T) {
	transaction := &models.Transaction{BuyerID: 2, SellerID: 1, Status: models.TransactionStatusPending}

	buyer := testUser(2, models.RoleBuyer)
	seller := testUser(1, models.RoleLandowner)
	stranger := testUser(3, models.RoleBuyer)
	admin := testUser(4, models.RoleAdmin)

	if d := CanUpdateTransaction(buyer, transaction, models.TransactionStatusRejected, true); !d.Allowed {
		t.Fatalf("buyer should back out: %v", d.Reason)
	}
	if d := CanUpdateTransaction(buyer, transaction, models.TransactionStatusAccepted, true); d.Allowed {
		t.Fatal("buyer must not accept a transaction")
	}
	for _, status := range []string{
		models.TransactionStatusAccepted,
		models.TransactionStatusRejected,
		models.TransactionStatusCompleted,
	} {
		if d := CanUpdateTransaction(seller, transaction, status, true); !d.Allowed {
			t.Fatalf("seller should move to %s: %v", status, d.Reason)
		}
	}
	if d := CanUpdateTransaction(seller, transaction, models.TransactionStatusPending, true); d.Allowed {
		t.Fatal("seller must not move a transaction back to pending")
	}
	if d := CanUpdateTransaction(stranger, transaction, models.TransactionStatusRejected, true); d.Allowed || d.Kind != DenyNotParticipant {
		t.Fatalf("stranger must be denied as non-participant, got %+v", d)
	}
	if d := CanUpdateTransaction(admin, transaction, models.TransactionStatusCompleted, true); !d.Allowed {
		t.Fatalf("admin is unrestricted: %v", d.Reason)
	}
}
