package services

import (
	"fmt"
	"slices"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

// orderStatusTransitions lists the moves each role may request from a given status.
// Statuses absent from the table are terminal for every role.
var orderStatusTransitions = map[domain.OrderStatus]map[domain.ActorRole][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.ActorRoleAdmin: {domain.OrderStatusRejected, domain.OrderStatusAccepted, domain.OrderStatusCustomerPending},
	},
	domain.OrderStatusAdminPending: {
		domain.ActorRoleAdmin: {domain.OrderStatusRejected, domain.OrderStatusCustomerPending, domain.OrderStatusAccepted},
	},
	domain.OrderStatusCustomerPending: {
		domain.ActorRoleAdmin:    {domain.OrderStatusRejected},
		domain.ActorRoleCustomer: {domain.OrderStatusRejected, domain.OrderStatusPending},
	},
	domain.OrderStatusAccepted: {
		domain.ActorRoleAdmin: {domain.OrderStatusCancelled, domain.OrderStatusCompleted},
	},
}

// TransitionRequest is the full input of the status machine.
type TransitionRequest struct {
	Current        domain.OrderStatus
	ItemsEdited    bool
	Requested      domain.OrderStatus
	Role           domain.ActorRole
	HasItemChanges bool
}

// TransitionDecision is the status machine verdict with a human readable reason.
type TransitionDecision struct {
	Valid   bool
	Message string
}

// ValidateTransition decides whether the requested status change is legal. It performs no I/O.
func ValidateTransition(req TransitionRequest) TransitionDecision {
	if req.HasItemChanges && !itemsEditable(req.Current) {
		return deny("items can only be changed while the order is %s or %s, current status is %s",
			domain.OrderStatusPending, domain.OrderStatusAdminPending, req.Current)
	}
	if !req.Current.Valid() {
		return deny("unknown current status %q", req.Current)
	}
	if !req.Requested.Valid() {
		return deny("unknown status %q", req.Requested)
	}
	if req.Role != domain.ActorRoleAdmin && req.Role != domain.ActorRoleCustomer {
		return deny("unknown actor role %q", req.Role)
	}
	if req.Current == req.Requested {
		return deny("order is already %s", req.Current)
	}
	if isCancellationOfAccepted(req.Current, req.Requested) && req.Role == domain.ActorRoleAdmin {
		return deny("accepted orders must be cancelled through the cancel operation so stock can be restored")
	}
	if !slices.Contains(AllowedTransitions(req.Current, req.Role), req.Requested) {
		return deny("%s cannot move an order from %s to %s", roleLabel(req.Role), req.Current, req.Requested)
	}
	if requiresCustomerConfirmation(req) {
		return deny("order items were edited; send the quote to the customer (%s) or reject the order",
			domain.OrderStatusCustomerPending)
	}
	return TransitionDecision{Valid: true}
}

// AllowedTransitions returns the table entries for the status and role.
func AllowedTransitions(current domain.OrderStatus, role domain.ActorRole) []domain.OrderStatus {
	byRole, ok := orderStatusTransitions[current]
	if !ok {
		return nil
	}
	return slices.Clone(byRole[role])
}

// itemsEditable reports whether line items may be mutated in the status.
func itemsEditable(status domain.OrderStatus) bool {
	return status == domain.OrderStatusPending || status == domain.OrderStatusAdminPending
}

// promoEditable reports whether a promo code may be attached or removed in the status.
func promoEditable(status domain.OrderStatus) bool {
	return itemsEditable(status) || status == domain.OrderStatusCustomerPending
}

func isCancellationOfAccepted(from, to domain.OrderStatus) bool {
	return from == domain.OrderStatusAccepted && to == domain.OrderStatusCancelled
}

// requiresCustomerConfirmation blocks direct acceptance of orders whose pricing changed.
func requiresCustomerConfirmation(req TransitionRequest) bool {
	if req.Requested != domain.OrderStatusAccepted || !itemsEditable(req.Current) {
		return false
	}
	return req.ItemsEdited || req.HasItemChanges
}

func deny(format string, args ...any) TransitionDecision {
	return TransitionDecision{Valid: false, Message: fmt.Sprintf(format, args...)}
}

func roleLabel(role domain.ActorRole) string {
	switch role {
	case domain.ActorRoleAdmin:
		return "admin"
	case domain.ActorRoleCustomer:
		return "customer"
	default:
		return string(role)
	}
}
