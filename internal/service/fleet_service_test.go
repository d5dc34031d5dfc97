package service

import (
	"testing"

	"github.com/okdriver/okdriver-backend/internal/domain"
)

func TestVehicleCreationIsGatedByPlan(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanCompany, 0, 30)
	company := f.company()

	_, err := f.fleet.CreateVehicle(f.ctx, company.ID, VehicleInput{VehicleNumber: "KA01AB1234"})
	if domain.KindOf(err) != domain.KindPaymentRequired {
		t.Fatalf("without subscription: err = %v, want payment required", err)
	}

	if _, err := f.subs.Select(f.ctx, company, plan.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}

	for _, number := range []string{"ka01ab1234", "KA01AB5678"} {
		if _, err := f.fleet.CreateVehicle(f.ctx, company.ID, VehicleInput{VehicleNumber: number}); err != nil {
			t.Fatalf("CreateVehicle %s: %v", number, err)
		}
	}
	if _, err := f.fleet.CreateVehicle(f.ctx, company.ID, VehicleInput{VehicleNumber: "KA01AB9999"}); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("over limit: err = %v, want conflict", err)
	}

	vehicles, _ := f.fleet.ListVehicles(f.ctx, company.ID)
	if len(vehicles) != 2 || vehicles[0].VehicleNumber != "KA01AB1234" && vehicles[1].VehicleNumber != "KA01AB1234" {
		t.Fatalf("vehicles = %+v", vehicles)
	}
}

func TestClientLimitAndOwnership(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanCompany, 0, 30)
	company := f.company()
	other := f.company()

	if _, err := f.subs.Select(f.ctx, company, plan.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}

	client, err := f.fleet.CreateClient(f.ctx, company.ID, ClientInput{Name: "Client", Email: "Client@Example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if client.Email != "client@example.com" || client.PasswordHash == "" {
		t.Fatalf("client = %+v", client)
	}
	if _, err := f.fleet.CreateClient(f.ctx, company.ID, ClientInput{Name: "Second", Email: "second@example.com", Password: "secret123"}); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("over client limit: err = %v", err)
	}

	if _, err := f.fleet.GetClient(f.ctx, other.ID, client.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("foreign client: err = %v", err)
	}
}

func TestVehicleOwnership(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanCompany, 0, 30)
	company := f.company()
	other := f.company()

	if _, err := f.subs.Select(f.ctx, company, plan.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	vehicle, err := f.fleet.CreateVehicle(f.ctx, company.ID, VehicleInput{VehicleNumber: "MH12XY0001"})
	if err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	if _, err := f.fleet.GetVehicle(f.ctx, other.ID, vehicle.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("foreign GetVehicle: err = %v", err)
	}
	if err := f.fleet.DeleteVehicle(f.ctx, other.ID, vehicle.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("foreign DeleteVehicle: err = %v", err)
	}
	if err := f.fleet.DeleteVehicle(f.ctx, company.ID, vehicle.ID); err != nil {
		t.Fatalf("DeleteVehicle: %v", err)
	}
}

func TestUpdateVehicleReassigns(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanCompany, 0, 30)
	company := f.company()
	other := f.company()
	driver := f.driver()

	if _, err := f.subs.Select(f.ctx, company, plan.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := f.subs.Select(f.ctx, other, plan.ID); err != nil {
		t.Fatalf("Select other: %v", err)
	}
	client, err := f.fleet.CreateClient(f.ctx, company.ID, ClientInput{Name: "Client", Email: "client@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	foreign, err := f.fleet.CreateClient(f.ctx, other.ID, ClientInput{Name: "Foreign", Email: "foreign@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("CreateClient other: %v", err)
	}
	vehicle, err := f.fleet.CreateVehicle(f.ctx, company.ID, VehicleInput{VehicleNumber: "MH12XY0001"})
	if err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}
	if _, err := f.fleet.CreateVehicle(f.ctx, company.ID, VehicleInput{VehicleNumber: "MH12XY0002"}); err != nil {
		t.Fatalf("CreateVehicle second: %v", err)
	}

	model := " Tata Ace "
	updated, err := f.fleet.UpdateVehicle(f.ctx, company.ID, vehicle.ID, VehicleUpdate{Model: &model, DriverID: &driver.ID, ClientID: &client.ID})
	if err != nil {
		t.Fatalf("UpdateVehicle: %v", err)
	}
	if updated.Model != "Tata Ace" || updated.DriverID == nil || *updated.DriverID != driver.ID || updated.ClientID == nil || *updated.ClientID != client.ID {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.VehicleNumber != "MH12XY0001" {
		t.Fatalf("number changed: %q", updated.VehicleNumber)
	}

	assigned, err := f.fleet.ClientVehicles(f.ctx, company.ID, client.ID)
	if err != nil || len(assigned) != 1 || assigned[0].ID != vehicle.ID {
		t.Fatalf("ClientVehicles = %+v, %v", assigned, err)
	}

	if _, err := f.fleet.UpdateVehicle(f.ctx, company.ID, vehicle.ID, VehicleUpdate{ClientID: &foreign.ID}); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("foreign client: err = %v", err)
	}
	if _, err := f.fleet.UpdateVehicle(f.ctx, other.ID, vehicle.ID, VehicleUpdate{Model: &model}); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("foreign vehicle: err = %v", err)
	}
	taken := "mh12xy0002"
	if _, err := f.fleet.UpdateVehicle(f.ctx, company.ID, vehicle.ID, VehicleUpdate{VehicleNumber: &taken}); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("duplicate number: err = %v", err)
	}
	if _, err := f.fleet.UpdateVehicle(f.ctx, company.ID, vehicle.ID, VehicleUpdate{ClientID: &client.ID, UnassignClient: true}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("conflicting flags: err = %v", err)
	}

	cleared, err := f.fleet.UpdateVehicle(f.ctx, company.ID, vehicle.ID, VehicleUpdate{UnassignClient: true})
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if cleared.ClientID != nil || cleared.DriverID == nil {
		t.Fatalf("cleared = %+v", cleared)
	}
	if assigned, _ := f.fleet.ClientVehicles(f.ctx, company.ID, client.ID); len(assigned) != 0 {
		t.Fatalf("still assigned: %+v", assigned)
	}
}
