package external

import (
	"context"

	"proofwork/internal/types"
)

// CheckoutRequest carries what the billing provider needs to open a hosted
// checkout for one user.
type CheckoutRequest struct {
	VariantID string
	UserID    string
	Email     string
}

// CheckoutCreator opens hosted checkouts with the billing provider.
type CheckoutCreator interface {
	// CreateCheckout returns the hosted checkout URL. The user id is embedded
	// as custom data so subscription webhooks can be correlated back.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// IdentityResolver resolves a bearer token to the authenticated user.
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}
