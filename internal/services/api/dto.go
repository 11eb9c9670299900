package api

import (
	"github.com/shopspring/decimal"

	"github.com/NordCoder/Puntos/internal/domain/notification"
	"github.com/NordCoder/Puntos/internal/domain/promo"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

type contextRequest struct {
	DisplayName     string          `json:"display_name" validate:"required,max=120"`
	Points          decimal.Decimal `json:"points"`
	BusinessName    string          `json:"business_name" validate:"max=120"`
	BusinessLogoURL *string         `json:"business_logo_url" validate:"omitempty,url"`
}

func (r contextRequest) toDomain(userID string) domain.UserContext {
	id := userID
	return domain.UserContext{
		DisplayName:     r.DisplayName,
		Points:          r.Points,
		BusinessName:    r.BusinessName,
		BusinessLogoURL: r.BusinessLogoURL,
		UserID:          &id,
	}
}

type permissionRequest struct {
	State string `json:"state" validate:"required,oneof=default granted denied"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}

// rawRequest keeps Raw optional: an empty scan is "not recognized", not invalid.
type rawRequest struct {
	Raw string `json:"raw"`
}

type qrQuery struct {
	CampaignID string `validate:"required"`
	Phone      string `validate:"required"`
	Size       int    `validate:"omitempty,min=64,max=1024"`
}

type grantedResponse struct {
	Granted bool `json:"granted"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type redeemResponse struct {
	Payload  promo.Payload   `json:"payload"`
	Client   *promo.Client   `json:"client,omitempty"`
	Campaign *promo.Campaign `json:"campaign,omitempty"`
}

type inboxResponse struct {
	Notifications []*notification.Notification `json:"notifications"`
}
