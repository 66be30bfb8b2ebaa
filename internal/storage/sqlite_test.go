package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-agent-pipeline/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustCreateClient(t *testing.T, store *Store, userID, name, email, company string) *models.Client {
	t.Helper()
	client, err := store.CreateClient(context.Background(), userID, models.CreateClientRequest{
		Name: name, Email: email, Company: company,
	})
	if err != nil {
		t.Fatalf("create client %s: %v", name, err)
	}
	return client
}

func mustCreateInvoice(t *testing.T, store *Store, userID string, clientID int64, amount float64, dueDate time.Time, paid bool) *models.Invoice {
	t.Helper()
	inv, err := store.CreateInvoice(context.Background(), userID, models.CreateInvoiceRequest{
		Amount: amount, DueDate: dueDate, ClientID: clientID,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if paid {
		if err := store.MarkInvoicePaid(context.Background(), inv.ID, userID); err != nil {
			t.Fatalf("mark paid: %v", err)
		}
	}
	return inv
}

func TestListClientsScopedByUser(t *testing.T) {
	store := newTestStore(t)
	mustCreateClient(t, store, "user-a", "Acme Corp", "ops@acme.test", "Acme")
	mustCreateClient(t, store, "user-b", "Globex", "info@globex.test", "Globex")

	clients, err := store.ListClients(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "Acme Corp" {
		t.Fatalf("expected only user-a clients, got %+v", clients)
	}
}

func TestFindClientsSubstringMatch(t *testing.T) {
	store := newTestStore(t)
	mustCreateClient(t, store, "u1", "Northwind Traders", "sales@northwind.test", "Northwind")
	mustCreateClient(t, store, "u1", "Contoso", "hello@contoso.test", "Contoso Ltd")

	for _, search := range []string{"northwind", "NORTHWIND", "sales@"} {
		clients, err := store.FindClients(context.Background(), search, 10)
		if err != nil {
			t.Fatalf("find clients %q: %v", search, err)
		}
		if len(clients) != 1 || clients[0].Name != "Northwind Traders" {
			t.Fatalf("search %q: expected Northwind Traders, got %+v", search, clients)
		}
	}
}

func TestFindInvoicesAmountOrClientName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	acme := mustCreateClient(t, store, "u1", "Acme Corp", "ops@acme.test", "")
	globex := mustCreateClient(t, store, "u1", "Globex", "info@globex.test", "")

	now := time.Now().UTC()
	mustCreateInvoice(t, store, "u1", acme.ID, 50, now, false)
	mustCreateInvoice(t, store, "u1", globex.ID, 5000, now, false)

	// amount threshold alone
	invoices, err := store.FindInvoices(ctx, 1000, "", 10)
	if err != nil {
		t.Fatalf("find invoices: %v", err)
	}
	if len(invoices) != 1 || invoices[0].Amount != 5000 {
		t.Fatalf("expected the 5000 invoice, got %+v", invoices)
	}

	// name match ORed with threshold picks up both
	invoices, err = store.FindInvoices(ctx, 1000, "acme", 10)
	if err != nil {
		t.Fatalf("find invoices: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("expected both invoices, got %+v", invoices)
	}
}

func TestClientWithInvoicesOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	client := mustCreateClient(t, store, "u1", "Acme Corp", "ops@acme.test", "")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		mustCreateInvoice(t, store, "u1", client.ID, 100, base.AddDate(0, 0, i), false)
	}

	got, invoices, err := store.ClientWithInvoices(context.Background(), client.ID, 3)
	if err != nil {
		t.Fatalf("client with invoices: %v", err)
	}
	if got.ID != client.ID {
		t.Fatalf("expected client %d, got %d", client.ID, got.ID)
	}
	if len(invoices) != 3 {
		t.Fatalf("expected 3 invoices, got %d", len(invoices))
	}
	for i := 1; i < len(invoices); i++ {
		if invoices[i].DueDate.After(invoices[i-1].DueDate) {
			t.Fatalf("invoices not ordered by due date desc: %+v", invoices)
		}
	}
}

func TestClientWithInvoicesNotFound(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.ClientWithInvoices(context.Background(), 9999, 20)

	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Type != models.ErrorTypeNotFound {
		t.Fatalf("expected not_found AppError, got %v", err)
	}
}

func TestCountOverdueInvoicesCapped(t *testing.T) {
	store := newTestStore(t)
	client := mustCreateClient(t, store, "u1", "Acme Corp", "ops@acme.test", "")

	past := time.Now().UTC().AddDate(0, 0, -30)
	for i := 0; i < 8; i++ {
		mustCreateInvoice(t, store, "u1", client.ID, 100, past, false)
	}
	// paid and future invoices never count
	mustCreateInvoice(t, store, "u1", client.ID, 100, past, true)
	mustCreateInvoice(t, store, "u1", client.ID, 100, time.Now().UTC().AddDate(0, 0, 30), false)

	n, err := store.CountOverdueInvoices(context.Background(), client.ID, 5)
	if err != nil {
		t.Fatalf("count overdue: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected cap of 5, got %d", n)
	}
}

func TestCountClientsActiveSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	active := mustCreateClient(t, store, "u1", "Active Co", "a@a.test", "")
	dormant := mustCreateClient(t, store, "u1", "Dormant Co", "d@d.test", "")

	now := time.Now().UTC()
	mustCreateInvoice(t, store, "u1", active.ID, 100, now.AddDate(0, 0, -10), true)
	mustCreateInvoice(t, store, "u1", dormant.ID, 100, now.AddDate(0, 0, -400), true)

	n, err := store.CountClientsActiveSince(ctx, now.AddDate(0, 0, -180))
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 active client, got %d", n)
	}

	total, err := store.CountClients(ctx)
	if err != nil {
		t.Fatalf("count clients: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 clients, got %d", total)
	}
}

func TestMarkInvoicePaidWrongUser(t *testing.T) {
	store := newTestStore(t)
	client := mustCreateClient(t, store, "u1", "Acme Corp", "ops@acme.test", "")
	inv := mustCreateInvoice(t, store, "u1", client.ID, 100, time.Now().UTC(), false)

	err := store.MarkInvoicePaid(context.Background(), inv.ID, "someone-else")
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Type != models.ErrorTypeNotFound {
		t.Fatalf("expected not_found for foreign user, got %v", err)
	}
}
