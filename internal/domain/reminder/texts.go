package reminder

import "fmt"

// DailyReminder renders the once-a-day balance reminder for uc.
func DailyReminder(uc UserContext, link string) Notification {
	name := uc.DisplayName
	if name == "" {
		name = "Hola"
	}
	business := uc.BusinessName
	if business == "" {
		business = "tu negocio favorito"
	}
	n := Notification{
		Title: fmt.Sprintf("%s, tienes %s puntos", name, uc.Points.String()),
		Body:  fmt.Sprintf("Tus puntos en %s te esperan. ¡Canjéalos por recompensas!", business),
		Link:  link,
		Tag:   "daily-reminder",
	}
	if uc.BusinessLogoURL != nil {
		n.Icon = *uc.BusinessLogoURL
	}
	return n
}
