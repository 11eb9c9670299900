package promo

import "strings"

// FindClientByPhone returns the first client whose digit-normalized phone
// contains the normalized query or is contained by it, so numbers stored
// with or without a country code still match.
func FindClientByPhone(clients []Client, phone string) (Client, bool) {
	q := DigitsOnly(phone)
	if q == "" {
		return Client{}, false
	}
	for _, c := range clients {
		p := DigitsOnly(c.Phone)
		if p == "" {
			continue
		}
		if strings.Contains(p, q) || strings.Contains(q, p) {
			return c, true
		}
	}
	return Client{}, false
}

func FindCampaignByID(campaigns []Campaign, id string) (Campaign, bool) {
	for _, c := range campaigns {
		if c.ID == id {
			return c, true
		}
	}
	return Campaign{}, false
}
