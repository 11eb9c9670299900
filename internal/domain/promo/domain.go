package promo

import "github.com/shopspring/decimal"

type Kind string

const (
	KindPromo Kind = "promo"
	KindPhone Kind = "phone"
)

// Payload is a decoded QR payload. CampaignID is empty for KindPhone.
type Payload struct {
	Kind        Kind   `json:"kind"`
	CampaignID  string `json:"campaign_id,omitempty"`
	PhoneNumber string `json:"phone_number"`
	Raw         string `json:"raw"`
}

type Client struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Phone    string          `json:"phone"`
	Points   decimal.Decimal `json:"points"`
	Business string          `json:"business"`
}

type Campaign struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Threshold  decimal.Decimal `json:"threshold"`
	Reward     string          `json:"reward"`
	UsesStamps bool            `json:"uses_stamps"`
	Active     bool            `json:"active"`
}
