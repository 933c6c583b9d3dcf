package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/db"
	"github.com/example/storagegatebot/models"
)

const ownerID = 999

type fixture struct {
	registry *core.Registry
	ledger   *core.Ledger
	acct     *core.Accountant
	tickets  *core.Tickets
	codes    *core.Codes
	files    *core.Files
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	registry := core.NewRegistry(d, d, ownerID, secret)
	acct := core.NewAccountant(d)
	return &fixture{
		registry: registry,
		ledger:   core.NewLedger(d, registry, d),
		acct:     acct,
		tickets:  core.NewTickets(d, registry, d),
		codes:    core.NewCodes(d, registry, d),
		files:    core.NewFiles(d, acct, registry, d),
	}
}

func TestRegisterSecretGate(t *testing.T) {
	f := newFixture(t, "s3cret")
	ctx := context.Background()

	if _, err := f.registry.Register(ctx, 1, "alice", "wrong"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for wrong secret, got %v", err)
	}
	acc, err := f.registry.Register(ctx, 1, "alice", "s3cret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acc.Approved {
		t.Fatalf("registration must start pending")
	}

	open := newFixture(t, "")
	if _, err := open.registry.Register(ctx, 2, "bob", ""); err != nil {
		t.Fatalf("open signup: %v", err)
	}
}

func TestAdminGateFailsClosed(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	ok, err := f.registry.IsAdmin(ctx, ownerID)
	if err != nil || !ok {
		t.Fatalf("owner must always be admin: ok=%v err=%v", ok, err)
	}
	// Unknown actor: no account row at all.
	ok, err = f.registry.IsAdmin(ctx, 12345)
	if err != nil || ok {
		t.Fatalf("unknown actor must not be admin: ok=%v err=%v", ok, err)
	}

	if _, err := f.registry.Register(ctx, 1, "alice", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registry.Approve(ctx, 1, 1); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("non-admin approve: want ErrUnauthorized, got %v", err)
	}
	if _, err := f.ledger.Grant(ctx, 1, 1, "basic"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("non-admin grant: want ErrUnauthorized, got %v", err)
	}
	if _, err := f.codes.Mint(ctx, 1, "basic", 30); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("non-admin mint: want ErrUnauthorized, got %v", err)
	}
	if _, err := f.tickets.List(ctx, 1, ""); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("non-admin list: want ErrUnauthorized, got %v", err)
	}
}

func TestPromoteDemote(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.registry.Register(ctx, 1, "alice", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registry.Promote(ctx, ownerID, 1, 0); err != nil {
		t.Fatalf("promote: %v", err)
	}
	ok, err := f.registry.IsAdmin(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("promoted account must be admin: ok=%v err=%v", ok, err)
	}

	// Promoted admins can run privileged operations.
	if err := f.registry.Approve(ctx, 1, 1); err != nil {
		t.Fatalf("approve by promoted admin: %v", err)
	}

	if err := f.registry.Demote(ctx, ownerID, ownerID); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("demoting the owner: want ErrConflict, got %v", err)
	}
	if err := f.registry.Demote(ctx, ownerID, 1); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if ok, _ := f.registry.IsAdmin(ctx, 1); ok {
		t.Fatalf("demoted account must not stay admin")
	}
	if err := f.registry.Promote(ctx, ownerID, 1, -1); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("negative grant duration: want ErrInvalidInput, got %v", err)
	}
}

func TestBanClearsApproval(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.registry.Register(ctx, 1, "alice", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registry.Approve(ctx, ownerID, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.registry.Ban(ctx, ownerID, 1); err != nil {
		t.Fatalf("ban: %v", err)
	}
	acc, err := f.registry.Account(ctx, 1)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if !acc.Banned || acc.Approved {
		t.Fatalf("ban must clear approval: %+v", acc)
	}

	if err := f.registry.Approve(ctx, ownerID, 1); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("approving a banned account: want ErrConflict, got %v", err)
	}

	if err := f.registry.Unban(ctx, ownerID, 1); err != nil {
		t.Fatalf("unban: %v", err)
	}
	acc, _ = f.registry.Account(ctx, 1)
	if acc.Banned || !acc.Approved {
		t.Fatalf("unban must restore approval: %+v", acc)
	}
}

func TestRejectOnlyPending(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.registry.Register(ctx, 1, "alice", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registry.Approve(ctx, ownerID, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.registry.Reject(ctx, ownerID, 1); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("rejecting an approved account: want ErrConflict, got %v", err)
	}

	if _, err := f.registry.Register(ctx, 2, "bob", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registry.Reject(ctx, ownerID, 2); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.registry.Account(ctx, 2); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("rejected registration must be gone, got %v", err)
	}
}

func TestPaymentWorkflow(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.registry.Register(ctx, 1, "alice", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registry.Approve(ctx, ownerID, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}

	tk, err := f.tickets.Open(ctx, 1, "basic")
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	if tk.Amount != 2 {
		t.Errorf("basic plan price: want 2, got %v", tk.Amount)
	}

	if _, err := f.tickets.Open(ctx, 1, "pro"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("second open payment ticket: want ErrConflict, got %v", err)
	}

	sub, err := f.tickets.Complete(ctx, ownerID, tk.ID, "wire received")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sub == nil || sub.Plan != "basic" {
		t.Fatalf("completion must return the activated subscription, got %+v", sub)
	}

	got, err := f.ledger.Check(ctx, 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got.QuotaBytes != 1<<30 {
		t.Errorf("basic quota: want 1 GiB, got %d", got.QuotaBytes)
	}
	want := time.Now().AddDate(0, 0, 30)
	if diff := got.ExpiresAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry: want ~%v, got %v", want, got.ExpiresAt)
	}

	if err := f.tickets.Close(ctx, ownerID, tk.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSupportTicketNoLedgerEffect(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	tk, err := f.tickets.OpenSupport(ctx, 1, "download links broken")
	if err != nil {
		t.Fatalf("open support: %v", err)
	}
	if _, err := f.tickets.Complete(ctx, ownerID, tk.ID, "fixed"); err != nil {
		t.Fatalf("complete support: %v", err)
	}
	if _, err := f.ledger.Check(ctx, 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("support completion must not grant a subscription, got %v", err)
	}

	if _, err := f.tickets.OpenSupport(ctx, 1, ""); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("empty subject: want ErrInvalidInput, got %v", err)
	}
}

func TestQuotaRefusalLeavesUsageUntouched(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.ledger.Grant(ctx, ownerID, 1, "standard"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.acct.Reserve(ctx, 1, 6<<30); !errors.Is(err, core.ErrQuotaExceeded) {
		t.Fatalf("oversized reserve: want ErrQuotaExceeded, got %v", err)
	}
	sub, err := f.ledger.Check(ctx, 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if sub.BytesUsed != 0 || sub.BytesReserved != 0 {
		t.Fatalf("refusal mutated usage: used=%d reserved=%d", sub.BytesUsed, sub.BytesReserved)
	}

	if err := f.acct.Reserve(ctx, 2, 1); !errors.Is(err, core.ErrQuotaExceeded) {
		t.Fatalf("reserve without subscription: want ErrQuotaExceeded, got %v", err)
	}
	if err := f.acct.Reserve(ctx, 1, 0); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("zero-size reserve: want ErrInvalidInput, got %v", err)
	}
}

func TestFileStoreAndDelete(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.ledger.Grant(ctx, ownerID, 1, "basic"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.files.Reserve(ctx, 1, 500); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	file := &models.File{AccountID: 1, Name: "report.pdf", Kind: "document", Size: 500, FileID: "tg-handle"}
	if err := f.files.Store(ctx, file); err != nil {
		t.Fatalf("store: %v", err)
	}
	if file.Slug == "" {
		t.Fatalf("store must mint a share slug")
	}

	sub, _ := f.ledger.Check(ctx, 1)
	if sub.BytesUsed != 500 || sub.BytesReserved != 0 {
		t.Fatalf("after store: used=%d reserved=%d", sub.BytesUsed, sub.BytesReserved)
	}

	got, err := f.files.BySlug(ctx, file.Slug)
	if err != nil || got.ID != file.ID {
		t.Fatalf("by slug: %+v, %v", got, err)
	}

	// A stranger can neither fetch nor delete the file.
	if _, err := f.files.Get(ctx, 2, file.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("stranger get: want ErrUnauthorized, got %v", err)
	}
	if err := f.files.Delete(ctx, 2, file.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("stranger delete: want ErrUnauthorized, got %v", err)
	}

	if err := f.files.Delete(ctx, 1, file.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	sub, _ = f.ledger.Check(ctx, 1)
	if sub.BytesUsed != 0 {
		t.Fatalf("delete must release bytes, used=%d", sub.BytesUsed)
	}
}

func TestAbortedUploadReleasesReservation(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.ledger.Grant(ctx, ownerID, 1, "basic"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.files.Reserve(ctx, 1, 800); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.files.Abort(ctx, 1, 800); err != nil {
		t.Fatalf("abort: %v", err)
	}
	sub, _ := f.ledger.Check(ctx, 1)
	if sub.BytesUsed != 0 || sub.BytesReserved != 0 {
		t.Fatalf("abort left residue: used=%d reserved=%d", sub.BytesUsed, sub.BytesReserved)
	}
}

func TestToggleNotifyOwnerOnly(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.ledger.Grant(ctx, ownerID, 1, "basic"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.files.Reserve(ctx, 1, 10); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	file := &models.File{AccountID: 1, Name: "a", Size: 10, FileID: "x"}
	if err := f.files.Store(ctx, file); err != nil {
		t.Fatalf("store: %v", err)
	}

	on, err := f.files.ToggleNotify(ctx, 1, file.ID)
	if err != nil || !on {
		t.Fatalf("first toggle: on=%v err=%v", on, err)
	}
	if _, err := f.files.ToggleNotify(ctx, 2, file.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("stranger toggle: want ErrUnauthorized, got %v", err)
	}
}

func TestRedeemCodeRoundTrip(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	code, err := f.codes.Mint(ctx, ownerID, "pro", 7)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if len(code.Code) != 16 {
		t.Fatalf("code length: want 16, got %d (%q)", len(code.Code), code.Code)
	}

	// Redeem is case and whitespace tolerant.
	sub, err := f.codes.Redeem(ctx, 1, "  "+code.Code+" ")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if sub.Plan != "pro" || sub.QuotaBytes != 20<<30 {
		t.Fatalf("redeemed subscription: %+v", sub)
	}

	if _, err := f.codes.Redeem(ctx, 2, code.Code); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("second redeem: want ErrConflict, got %v", err)
	}
	if _, err := f.codes.Redeem(ctx, 1, ""); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("empty code: want ErrInvalidInput, got %v", err)
	}
	if _, err := f.codes.Mint(ctx, ownerID, "nosuch", 7); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("mint unknown plan: want ErrInvalidInput, got %v", err)
	}
}

func TestRenewValidation(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.ledger.Renew(ctx, ownerID, 1, 0); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("zero-day renew: want ErrInvalidInput, got %v", err)
	}
	if _, err := f.ledger.Renew(ctx, ownerID, 1, 10); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("renew without subscription: want ErrNotFound, got %v", err)
	}
}
