package realtime

import "github.com/okdriver/okdriver-backend/internal/domain"

// RoomsFor комнаты, в которые соединение входит автоматически по роли
func RoomsFor(p *domain.Principal) []string {
	if p == nil {
		return nil
	}
	switch p.Role {
	case domain.RoleCompany:
		if p.CompanyID != nil {
			return []string{domain.CompanyRoom(*p.CompanyID)}
		}
	case domain.RoleDriver:
		if p.VehicleID != nil {
			return []string{domain.VehicleRoom(*p.VehicleID)}
		}
	case domain.RoleClient:
		if p.ClientID != nil {
			return []string{domain.ClientRoom(*p.ClientID)}
		}
	}
	return nil
}
