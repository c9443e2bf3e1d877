package services

import (
	"slices"
	"strings"
	"testing"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

func TestValidateTransition_TableClosure(t *testing.T) {
	roles := []domain.ActorRole{domain.ActorRoleAdmin, domain.ActorRoleCustomer}

	for _, from := range domain.OrderStatuses {
		for _, role := range roles {
			allowed := AllowedTransitions(from, role)
			for _, to := range domain.OrderStatuses {
				decision := ValidateTransition(TransitionRequest{Current: from, Requested: to, Role: role})
				listed := slices.Contains(allowed, to)
				expected := listed && !isCancellationOfAccepted(from, to)
				if decision.Valid != expected {
					t.Fatalf("%s %s->%s: expected valid=%v got %v (%s)", role, from, to, expected, decision.Valid, decision.Message)
				}
				if !decision.Valid && decision.Message == "" {
					t.Fatalf("%s %s->%s: rejection must carry a message", role, from, to)
				}
			}
		}
	}
}

func TestValidateTransition_TerminalStatusesHaveNoMoves(t *testing.T) {
	for _, from := range []domain.OrderStatus{domain.OrderStatusCompleted, domain.OrderStatusRejected, domain.OrderStatusCancelled} {
		for _, role := range []domain.ActorRole{domain.ActorRoleAdmin, domain.ActorRoleCustomer} {
			if got := AllowedTransitions(from, role); len(got) != 0 {
				t.Fatalf("expected no transitions from %s for %s, got %v", from, role, got)
			}
		}
	}
}

func TestValidateTransition_ItemChangesBlockAcceptance(t *testing.T) {
	for _, from := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusAdminPending} {
		accept := ValidateTransition(TransitionRequest{
			Current:        from,
			Requested:      domain.OrderStatusAccepted,
			Role:           domain.ActorRoleAdmin,
			HasItemChanges: true,
		})
		if accept.Valid {
			t.Fatalf("%s: acceptance with item changes must be rejected", from)
		}
		if !strings.Contains(accept.Message, string(domain.OrderStatusCustomerPending)) {
			t.Fatalf("%s: expected message to point at the quote path, got %q", from, accept.Message)
		}

		quote := ValidateTransition(TransitionRequest{
			Current:        from,
			Requested:      domain.OrderStatusCustomerPending,
			Role:           domain.ActorRoleAdmin,
			HasItemChanges: true,
		})
		if !quote.Valid {
			t.Fatalf("%s: quote with item changes must be valid: %s", from, quote.Message)
		}

		reject := ValidateTransition(TransitionRequest{
			Current:     from,
			Requested:   domain.OrderStatusRejected,
			Role:        domain.ActorRoleAdmin,
			ItemsEdited: true,
		})
		if !reject.Valid {
			t.Fatalf("%s: rejecting an edited order must be valid: %s", from, reject.Message)
		}
	}
}

func TestValidateTransition_PersistedEditedFlagBlocksAcceptance(t *testing.T) {
	decision := ValidateTransition(TransitionRequest{
		Current:     domain.OrderStatusPending,
		Requested:   domain.OrderStatusAccepted,
		Role:        domain.ActorRoleAdmin,
		ItemsEdited: true,
	})
	if decision.Valid {
		t.Fatalf("expected edited order acceptance to be rejected")
	}
}

func TestValidateTransition_GenericCancelDirectsToCancelOperation(t *testing.T) {
	decision := ValidateTransition(TransitionRequest{
		Current:   domain.OrderStatusAccepted,
		Requested: domain.OrderStatusCancelled,
		Role:      domain.ActorRoleAdmin,
	})
	if decision.Valid {
		t.Fatalf("expected generic cancel to be rejected")
	}
	if !strings.Contains(decision.Message, "cancel operation") {
		t.Fatalf("unexpected message %q", decision.Message)
	}
}

func TestValidateTransition_ItemChangesOutsideEditableStatus(t *testing.T) {
	tests := []struct {
		name    string
		current domain.OrderStatus
		target  domain.OrderStatus
		role    domain.ActorRole
	}{
		{name: "quote", current: domain.OrderStatusCustomerPending, target: domain.OrderStatusPending, role: domain.ActorRoleCustomer},
		{name: "accepted", current: domain.OrderStatusAccepted, target: domain.OrderStatusCompleted, role: domain.ActorRoleAdmin},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := ValidateTransition(TransitionRequest{
				Current:        tc.current,
				Requested:      tc.target,
				Role:           tc.role,
				HasItemChanges: true,
			})
			if decision.Valid {
				t.Fatalf("expected item changes to be rejected in %s", tc.current)
			}
			if !strings.Contains(decision.Message, "items can only be changed") {
				t.Fatalf("unexpected message %q", decision.Message)
			}
		})
	}
}

func TestValidateTransition_SameStatusAndUnknownValues(t *testing.T) {
	if d := ValidateTransition(TransitionRequest{Current: domain.OrderStatusPending, Requested: domain.OrderStatusPending, Role: domain.ActorRoleAdmin}); d.Valid {
		t.Fatalf("same status must not be a valid transition")
	}
	if d := ValidateTransition(TransitionRequest{Current: domain.OrderStatusPending, Requested: "SHIPPED", Role: domain.ActorRoleAdmin}); d.Valid {
		t.Fatalf("unknown status must be rejected")
	}
	if d := ValidateTransition(TransitionRequest{Current: domain.OrderStatusPending, Requested: domain.OrderStatusRejected, Role: "GUEST"}); d.Valid {
		t.Fatalf("unknown role must be rejected")
	}
}

func TestValidateTransition_CustomerQuoteResponses(t *testing.T) {
	approve := ValidateTransition(TransitionRequest{
		Current:     domain.OrderStatusCustomerPending,
		Requested:   domain.OrderStatusPending,
		Role:        domain.ActorRoleCustomer,
		ItemsEdited: true,
	})
	if !approve.Valid {
		t.Fatalf("customer approval must be valid: %s", approve.Message)
	}

	adminBack := ValidateTransition(TransitionRequest{
		Current:   domain.OrderStatusCustomerPending,
		Requested: domain.OrderStatusPending,
		Role:      domain.ActorRoleAdmin,
	})
	if adminBack.Valid {
		t.Fatalf("admin must not answer the customer's quote")
	}
}
