package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
)

func TestEndDateFollowsPlanDuration(t *testing.T) {
	for _, days := range []int{30, 90, 180, 365, 7} {
		f := newFixture(t)
		plan := f.plan(domain.PlanDriver, 0, days)
		driver := f.driver()

		sub, err := f.subs.Select(f.ctx, driver, plan.ID)
		if err != nil {
			t.Fatalf("%d days: Select: %v", days, err)
		}
		want := sub.StartAt.Add(time.Duration(days) * 24 * time.Hour)
		if !sub.EndAt.Equal(want) {
			t.Errorf("%d days: endAt = %v, want %v", days, sub.EndAt, want)
		}
	}
}

func TestSelectGuards(t *testing.T) {
	f := newFixture(t)
	free := f.plan(domain.PlanDriver, 0, 30)
	paid := f.plan(domain.PlanDriver, 199, 30)
	companyPlan := f.plan(domain.PlanCompany, 0, 30)
	driver := f.driver()

	if _, err := f.subs.Select(f.ctx, driver, paid.ID); domain.KindOf(err) != domain.KindValidation ||
		domain.PublicMessage(err) != "paid plan requires checkout" {
		t.Fatalf("paid plan: err = %v", err)
	}
	if _, err := f.subs.Select(f.ctx, driver, companyPlan.ID); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("other kind: err = %v", err)
	}
	if _, err := f.subs.Select(f.ctx, driver, uuid.New()); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("unknown plan: err = %v", err)
	}
	if _, err := f.subs.Select(f.ctx, domain.TenantRef{Kind: domain.TenantDriver, ID: uuid.New()}, free.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("unknown tenant: err = %v", err)
	}

	if _, err := f.subs.Select(f.ctx, driver, free.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := f.subs.Select(f.ctx, driver, free.ID); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("second Select: err = %v, want conflict", err)
	}
}

func TestAdminAssignIgnoresPrice(t *testing.T) {
	f := newFixture(t)
	paid := f.plan(domain.PlanDriver, 999, 90)
	driver := f.driver()

	sub, err := f.subs.AdminAssign(f.ctx, driver, paid.ID)
	if err != nil {
		t.Fatalf("AdminAssign: %v", err)
	}
	if sub.PlanID != paid.ID || sub.Status != domain.SubscriptionActive {
		t.Fatalf("sub = %+v", sub)
	}
	if _, err := f.subs.AdminAssign(f.ctx, driver, paid.ID); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("second assign: err = %v, want conflict", err)
	}
}

func TestLazyExpiryOnRead(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanDriver, 0, 7)
	driver := f.driver()

	sub, err := f.subs.Select(f.ctx, driver, plan.ID)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	f.advance(6 * 24 * time.Hour)
	if state, _ := f.subs.Active(f.ctx, driver); !state.Active {
		t.Fatal("subscription must still be active on day 6")
	}

	f.advance(2 * 24 * time.Hour)
	state, err := f.subs.Active(f.ctx, driver)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if state.Active {
		t.Fatal("subscription past endAt must not be active")
	}

	history, _ := f.subs.History(f.ctx, driver)
	if len(history) != 1 || history[0].ID != sub.ID || history[0].Status != domain.SubscriptionExpired {
		t.Fatalf("history = %+v", history)
	}

	// после истечения можно выбрать план снова
	if _, err := f.subs.Select(f.ctx, driver, plan.ID); err != nil {
		t.Fatalf("Select after expiry: %v", err)
	}
}

func TestCancelClearsTenantPointer(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanDriver, 0, 30)
	driver := f.driver()

	if _, err := f.subs.Cancel(f.ctx, driver); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("cancel without subscription: err = %v", err)
	}

	if _, err := f.subs.Select(f.ctx, driver, plan.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	cancelled, err := f.subs.Cancel(f.ctx, driver)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.SubscriptionCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}

	tenant, _ := f.store.Accounts.GetTenant(f.ctx, driver)
	if tenant.CurrentPlanID != nil || tenant.SubscriptionExpiresAt != nil {
		t.Fatalf("tenant pointer not cleared: %+v", tenant)
	}
	if _, err := f.subs.RequireActive(f.ctx, driver); domain.KindOf(err) != domain.KindPaymentRequired {
		t.Fatalf("RequireActive after cancel: err = %v", err)
	}
}

func TestExpireDueSweep(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanDriver, 0, 7)
	for i := 0; i < 3; i++ {
		if _, err := f.subs.Select(f.ctx, f.driver(), plan.ID); err != nil {
			t.Fatalf("Select: %v", err)
		}
	}

	f.advance(8 * 24 * time.Hour)
	counts, err := f.subs.ExpireDue(f.ctx)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if counts.Subscriptions != 3 {
		t.Fatalf("expired = %d, want 3", counts.Subscriptions)
	}
	if counts, _ := f.subs.ExpireDue(f.ctx); counts.Subscriptions != 0 {
		t.Fatalf("second sweep expired %d", counts.Subscriptions)
	}
}

func TestPlanSoftDelete(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanDriver, 0, 30)
	driver := f.driver()

	if _, err := f.subs.Select(f.ctx, driver, plan.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}

	err := f.plans.Delete(f.ctx, domain.PlanDriver, plan.ID)
	if domain.KindOf(err) != domain.KindValidation || domain.PublicMessage(err) != "plan is in use" {
		t.Fatalf("Delete in use: err = %v", err)
	}

	if _, err := f.subs.Cancel(f.ctx, driver); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := f.plans.Delete(f.ctx, domain.PlanDriver, plan.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	stored, err := f.plans.Get(f.ctx, domain.PlanDriver, plan.ID)
	if err != nil {
		t.Fatalf("deleted plan row must remain: %v", err)
	}
	if stored.IsActive {
		t.Fatal("deleted plan must be inactive")
	}

	public, _ := f.plans.List(f.ctx, domain.PlanDriver, false)
	if len(public) != 0 {
		t.Fatalf("public list = %+v", public)
	}
	all, _ := f.plans.List(f.ctx, domain.PlanDriver, true)
	if len(all) != 1 {
		t.Fatalf("admin list = %d plans, want 1", len(all))
	}
}

func TestPlanKindMismatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(domain.PlanCompany, 100, 30)

	if _, err := f.plans.Get(f.ctx, domain.PlanDriver, plan.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("Get: err = %v", err)
	}
	if _, err := f.plans.Update(f.ctx, domain.PlanDriver, plan.ID, PlanInput{Name: "x", DurationDays: 1}); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("Update: err = %v", err)
	}
	if err := f.plans.Delete(f.ctx, domain.PlanAPI, plan.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("Delete: err = %v", err)
	}
}

func TestPlanValidation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.plans.Create(f.ctx, domain.PlanDriver, PlanInput{Name: "No duration"}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("zero duration: err = %v", err)
	}
	if _, err := f.plans.Create(f.ctx, domain.PlanVehicleLimit, PlanInput{Name: "No increment"}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("top-up without increment: err = %v", err)
	}

	plan := f.plan(domain.PlanAPI, 49, 30)
	updated, err := f.plans.Update(f.ctx, domain.PlanAPI, plan.ID, PlanInput{Name: "API Pro", DurationDays: 60, RequestsPerDay: intPtr(10000)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "API Pro" || updated.DurationDays != 60 || *updated.RequestsPerDay != 10000 {
		t.Fatalf("updated = %+v", updated)
	}
}
