package promo

import (
	"context"
	"encoding/json"
)

// Directory is the read side of the upstream loyalty backend.
type Directory interface {
	ListClients(ctx context.Context) ([]Client, error)
	ListCampaigns(ctx context.Context) ([]Campaign, error)
}

// Ledger is the write side of the upstream loyalty backend. Bodies and
// results are passed through untouched.
type Ledger interface {
	Statement(ctx context.Context, clientID string) (json.RawMessage, error)
	RegisterPurchase(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	SaveCampaign(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
}
