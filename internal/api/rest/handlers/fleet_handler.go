package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
	"github.com/okdriver/okdriver-backend/pkg/res"
)

// FleetHandler машины, клиенты и треки компании
type FleetHandler struct {
	fleet     *service.FleetService
	locations *service.LocationService
	log       *logger.Logger
}

func NewFleetHandler(fleet *service.FleetService, locations *service.LocationService, log *logger.Logger) *FleetHandler {
	return &FleetHandler{fleet: fleet, locations: locations, log: log}
}

func (h *FleetHandler) CreateVehicle(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.VehicleInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	vehicle, err := h.fleet.CreateVehicle(c.Request.Context(), company, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	created(c, vehicle)
}

func (h *FleetHandler) ListVehicles(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	vehicles, err := h.fleet.ListVehicles(c.Request.Context(), company)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, vehicles)
}

func (h *FleetHandler) GetVehicle(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	vehicle, err := h.fleet.GetVehicle(c.Request.Context(), company, id)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, vehicle)
}

func (h *FleetHandler) UpdateVehicle(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.VehicleUpdate](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	vehicle, err := h.fleet.UpdateVehicle(c.Request.Context(), company, id, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, vehicle)
}

func (h *FleetHandler) DeleteVehicle(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	if err := h.fleet.DeleteVehicle(c.Request.Context(), company, id); err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, gin.H{"id": id, "deleted": true})
}

// VehicleLocations трек машины, since в RFC3339 (по умолчанию последние сутки)
func (h *FleetHandler) VehicleLocations(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			fail(c, domain.Validation("since must be an RFC3339 timestamp"), h.log)
			return
		}
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		fail(c, err, h.log)
		return
	}

	points, err := h.locations.History(c.Request.Context(), company, id, since, limit)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, points)
}

func (h *FleetHandler) CreateClient(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.ClientInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	client, err := h.fleet.CreateClient(c.Request.Context(), company, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	created(c, client)
}

func (h *FleetHandler) ListClients(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	clients, err := h.fleet.ListClients(c.Request.Context(), company)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, clients)
}

// SubmitLocation точка от водителя, машина берется из токена
func (h *FleetHandler) SubmitLocation(c *gin.Context) {
	body, err := req.HandleBody[service.LocationInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	update, err := h.locations.Submit(c.Request.Context(), middleware.PrincipalFrom(c), *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	res.OK(c.Writer, gin.H{"queued": true, "location": update}, http.StatusAccepted)
}

// AssignedVehicles машины, назначенные клиенту из токена
func (h *FleetHandler) AssignedVehicles(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	if p.CompanyID == nil || p.ClientID == nil {
		fail(c, domain.Unauthorized("client authentication required"), h.log)
		return
	}
	vehicles, err := h.fleet.ClientVehicles(c.Request.Context(), *p.CompanyID, *p.ClientID)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, vehicles)
}
