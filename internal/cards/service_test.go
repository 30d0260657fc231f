package cards

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/cardledger/internal/cardnumber"
	"github.com/congo-pay/cardledger/internal/ledger"
	"github.com/congo-pay/cardledger/internal/notification"
	"github.com/congo-pay/cardledger/internal/txn"
)

var serviceNow = time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

type owners map[string]bool

func (o owners) Exists(_ context.Context, id string) (bool, error) {
	return o[id], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Kind)
	}
	return out
}

// scriptedIssuer hands out the given tokens in order.
type scriptedIssuer struct {
	tokens []string
	calls  int
}

func (s *scriptedIssuer) Issue() (cardnumber.Issued, error) {
	token := s.tokens[s.calls%len(s.tokens)]
	s.calls++
	return cardnumber.Issued{Number: "3985000000000000", Token: token, Last4: token[len(token)-4:]}, nil
}

type fixture struct {
	svc      *Service
	repo     Repository
	ledger   ledger.Ledger
	notifier *recordingNotifier
	ownerID  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	issuer, err := cardnumber.NewIssuer("", []byte("test-key"))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return newFixtureWithIssuer(t, issuer)
}

func newFixtureWithIssuer(t *testing.T, issuer NumberIssuer) fixture {
	t.Helper()
	ownerID := uuid.NewString()
	repo := NewMemoryRepository()
	led := ledger.NewInMemory()
	notifier := &recordingNotifier{}
	svc := NewService(Deps{
		Repo:     repo,
		Tx:       txn.NewMemoryManager(time.Second),
		Owners:   owners{ownerID: true},
		History:  led,
		Issuer:   issuer,
		Notifier: notifier,
	})
	svc.now = func() time.Time { return serviceNow }
	return fixture{svc: svc, repo: repo, ledger: led, notifier: notifier, ownerID: ownerID}
}

func (f fixture) issue(t *testing.T, exp time.Month, year int, balance string) Card {
	t.Helper()
	card, err := f.svc.Issue(context.Background(), IssueInput{
		OwnerID:    f.ownerID,
		OwnerName:  "Ada Lovelace",
		Expiration: ym(year, exp),
		Balance:    decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("issue card: %v", err)
	}
	return card
}

func TestServiceIssue(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, time.December, 2028, "1000.50")

	if card.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", card.Status)
	}
	if !card.Balance.Equal(decimal.RequireFromString("1000.50")) {
		t.Fatalf("unexpected balance %s", card.Balance)
	}
	if len(card.Last4) != 4 || len(card.NumberToken) != 64 {
		t.Fatalf("expected tokenized number, got token=%q last4=%q", card.NumberToken, card.Last4)
	}
	if got := card.MaskedNumber(); got != "**** **** **** "+card.Last4 {
		t.Fatalf("unexpected mask %q", got)
	}

	stored, err := f.svc.Get(context.Background(), card.ID)
	if err != nil || stored.ID != card.ID {
		t.Fatalf("get issued card: %v", err)
	}
	if kinds := f.notifier.kinds(); len(kinds) != 1 || kinds[0] != notification.KindCardIssued {
		t.Fatalf("expected one card.issued event, got %v", kinds)
	}
}

func TestServiceIssueRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exp := ym(2028, time.December)

	_, err := f.svc.Issue(ctx, IssueInput{OwnerID: f.ownerID, OwnerName: "Ada", Expiration: exp, Balance: decimal.RequireFromString("-1")})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("negative balance: expected ErrInvalidOperation, got %v", err)
	}
	_, err = f.svc.Issue(ctx, IssueInput{OwnerID: f.ownerID, OwnerName: "  ", Expiration: exp})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("blank name: expected ErrInvalidOperation, got %v", err)
	}
	_, err = f.svc.Issue(ctx, IssueInput{OwnerID: f.ownerID, OwnerName: strings.Repeat("x", MaxOwnerNameLength+1), Expiration: exp})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("long name: expected ErrInvalidOperation, got %v", err)
	}
	_, err = f.svc.Issue(ctx, IssueInput{OwnerID: uuid.NewString(), OwnerName: "Ada", Expiration: exp})
	if !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("unknown owner: expected ErrOwnerNotFound, got %v", err)
	}
	all, _ := f.svc.ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("rejected issuance must not store a card")
	}
}

func TestServiceIssueRegeneratesOnCollision(t *testing.T) {
	issuer := &scriptedIssuer{tokens: []string{"token-0001", "token-0001", "token-0002"}}
	f := newFixtureWithIssuer(t, issuer)

	first := f.issue(t, time.December, 2028, "0")
	second := f.issue(t, time.December, 2028, "0")
	if first.NumberToken != "token-0001" || second.NumberToken != "token-0002" {
		t.Fatalf("expected regeneration, got %q then %q", first.NumberToken, second.NumberToken)
	}
	if issuer.calls != 3 {
		t.Fatalf("expected 3 draws, got %d", issuer.calls)
	}

	stuck := newFixtureWithIssuer(t, &scriptedIssuer{tokens: []string{"token-0009"}})
	stuck.issue(t, time.December, 2028, "0")
	_, err := stuck.svc.Issue(context.Background(), IssueInput{OwnerID: stuck.ownerID, OwnerName: "Ada", Expiration: ym(2028, time.December)})
	if !errors.Is(err, ErrDuplicateCardNumber) {
		t.Fatalf("expected ErrDuplicateCardNumber, got %v", err)
	}
}

func TestServiceExpiredAtIssuance(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, time.January, 2020, "10")
	if card.Status != StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", card.Status)
	}
	if _, err := f.svc.Block(context.Background(), card.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("block expired: expected ErrInvalidOperation, got %v", err)
	}
	if _, err := f.svc.Activate(context.Background(), card.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("activate expired: expected ErrInvalidOperation, got %v", err)
	}
}

func TestServiceBlockActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, time.December, 2028, "10")

	blocked, err := f.svc.Block(ctx, card.ID)
	if err != nil || blocked.Status != StatusBlocked {
		t.Fatalf("block: status=%s err=%v", blocked.Status, err)
	}
	_, err = f.svc.Block(ctx, card.ID)
	if !errors.Is(err, ErrInvalidOperation) || !strings.Contains(err.Error(), "already blocked") {
		t.Fatalf("expected already blocked, got %v", err)
	}

	active, err := f.svc.Activate(ctx, card.ID)
	if err != nil || active.Status != StatusActive {
		t.Fatalf("activate: status=%s err=%v", active.Status, err)
	}
	_, err = f.svc.Activate(ctx, card.ID)
	if !errors.Is(err, ErrInvalidOperation) || !strings.Contains(err.Error(), "already active") {
		t.Fatalf("expected already active, got %v", err)
	}

	if _, err := f.svc.Block(ctx, uuid.NewString()); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}

	kinds := f.notifier.kinds()
	if kinds[len(kinds)-1] != notification.KindCardActivated || kinds[len(kinds)-2] != notification.KindCardBlocked {
		t.Fatalf("unexpected events %v", kinds)
	}
}

func TestServiceReadsEffectiveStatus(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, time.June, 2026, "10")

	f.svc.now = func() time.Time { return serviceNow.AddDate(0, 1, 0) }
	got, err := f.svc.Get(context.Background(), card.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("expected EXPIRED after the month passed, got %s", got.Status)
	}
	stored, _ := f.repo.Get(context.Background(), card.ID)
	if stored.Status != StatusActive {
		t.Fatalf("reads must not rewrite the stored status, got %s", stored.Status)
	}
}

func TestServiceGetOwned(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, time.December, 2028, "10")

	if _, err := f.svc.GetOwned(context.Background(), f.ownerID, card.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.svc.GetOwned(context.Background(), uuid.NewString(), card.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestServiceUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, time.December, 2028, "10")

	blank := "   "
	past := ym(2025, time.March)
	updated, err := f.svc.Update(ctx, card.ID, UpdateInput{OwnerName: &blank, Expiration: &past})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.OwnerName != "Ada Lovelace" {
		t.Fatalf("blank name must be ignored, got %q", updated.OwnerName)
	}
	if updated.Status != StatusExpired {
		t.Fatalf("expected EXPIRED after moving expiration into the past, got %s", updated.Status)
	}

	name := "Grace Hopper"
	future := ym(2029, time.January)
	updated, err = f.svc.Update(ctx, card.ID, UpdateInput{OwnerName: &name, Expiration: &future})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.OwnerName != name || updated.Status != StatusActive {
		t.Fatalf("unexpected card %+v", updated)
	}
}

func TestServiceUpdateExpirationRederivesBlockedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, time.December, 2028, "10")
	if _, err := f.svc.Block(ctx, card.ID); err != nil {
		t.Fatalf("block: %v", err)
	}

	future := ym(2030, time.January)
	updated, err := f.svc.Update(ctx, card.ID, UpdateInput{Expiration: &future})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusActive {
		t.Fatalf("expected ACTIVE after a new future expiration, got %s", updated.Status)
	}
	stored, err := f.svc.Get(ctx, card.ID)
	if err != nil || stored.Status != StatusActive {
		t.Fatalf("stored status %s, err %v", stored.Status, err)
	}
}

func TestServiceRequestBlock(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, time.December, 2028, "10")

	if _, err := f.svc.RequestBlock(context.Background(), uuid.NewString(), card.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	got, err := f.svc.RequestBlock(context.Background(), f.ownerID, card.ID)
	if err != nil {
		t.Fatalf("request block: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("a request must not change the status, got %s", got.Status)
	}
	kinds := f.notifier.kinds()
	if kinds[len(kinds)-1] != notification.KindCardBlockRequested {
		t.Fatalf("expected block request event, got %v", kinds)
	}
}

func TestServiceDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	untouched := f.issue(t, time.December, 2028, "10")
	used := f.issue(t, time.December, 2028, "10")
	other := f.issue(t, time.December, 2028, "10")

	if _, err := f.ledger.Append(ctx, ledger.AppendInput{
		FromCardID: used.ID, ToCardID: other.ID, Amount: decimal.RequireFromString("1"), Status: ledger.StatusSuccess,
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	if err := f.svc.Delete(ctx, used.ID); !errors.Is(err, ErrCardHasTransactions) {
		t.Fatalf("expected ErrCardHasTransactions, got %v", err)
	}
	if _, err := f.svc.Get(ctx, used.ID); err != nil {
		t.Fatalf("rejected delete must keep the card: %v", err)
	}

	if err := f.svc.Delete(ctx, untouched.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, untouched.ID); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound after delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, untouched.ID); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("second delete: expected ErrCardNotFound, got %v", err)
	}
}

func TestServiceListByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, b := range []string{"30", "10", "20"} {
		f.issue(t, time.December, 2028, b)
	}

	page, err := f.svc.ListByOwner(ctx, f.ownerID, PageRequest{Page: 0, Size: 2, Sort: "balance,desc"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.TotalPages() != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if !page.Items[0].Balance.Equal(decimal.NewFromInt(30)) || !page.Items[1].Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected order %s, %s", page.Items[0].Balance, page.Items[1].Balance)
	}

	last, _ := f.svc.ListByOwner(ctx, f.ownerID, PageRequest{Page: 1, Size: 2, Sort: "balance"})
	if len(last.Items) != 1 || !last.Items[0].Balance.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected last page %+v", last.Items)
	}

	empty, _ := f.svc.ListByOwner(ctx, uuid.NewString(), PageRequest{})
	if empty.Size != defaultPageSize || len(empty.Items) != 0 {
		t.Fatalf("unexpected empty page %+v", empty)
	}

	if _, err := f.svc.ListByOwner(ctx, f.ownerID, PageRequest{Sort: "number"}); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
	if _, err := f.svc.ListByOwner(ctx, f.ownerID, PageRequest{Page: -1}); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
	if _, err := f.svc.ListByOwner(ctx, f.ownerID, PageRequest{Page: 922337203685477581, Size: 10}); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage for an overflowing offset, got %v", err)
	}
}
