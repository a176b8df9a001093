package sqlite

import (
	"context"
	"testing"
)

func TestSearchEmails(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "acc-1")
	seedAccount(t, db, "acc-2")
	ctx := context.Background()

	quarterly := testEmail("acc-1", "pm-1")
	quarterly.Subject = "Quarterly report attached"
	quarterly.BodyText = "Numbers look good this quarter."
	if err := db.UpsertEmail(ctx, quarterly); err != nil {
		t.Fatalf("UpsertEmail() error: %v", err)
	}

	lunch := testEmail("acc-1", "pm-2")
	lunch.Subject = "Lunch on Friday?"
	lunch.BodyText = "Thinking tacos."
	if err := db.UpsertEmail(ctx, lunch); err != nil {
		t.Fatalf("UpsertEmail() error: %v", err)
	}

	otherQuarterly := testEmail("acc-2", "pm-3")
	otherQuarterly.Subject = "Quarterly planning"
	if err := db.UpsertEmail(ctx, otherQuarterly); err != nil {
		t.Fatalf("UpsertEmail() error: %v", err)
	}

	scoped, err := db.SearchEmails(ctx, "quarterly", "acc-1")
	if err != nil {
		t.Fatalf("SearchEmails() error: %v", err)
	}
	if len(scoped) != 1 {
		t.Fatalf("scoped search len = %d, want 1", len(scoped))
	}
	if scoped[0].Subject != "Quarterly report attached" {
		t.Errorf("Subject = %q, want %q", scoped[0].Subject, "Quarterly report attached")
	}

	unified, err := db.SearchEmails(ctx, "quarterly", "")
	if err != nil {
		t.Fatalf("SearchEmails() unified error: %v", err)
	}
	if len(unified) != 2 {
		t.Errorf("unified search len = %d, want 2", len(unified))
	}

	none, err := db.SearchEmails(ctx, "zeppelin", "")
	if err != nil {
		t.Fatalf("SearchEmails() error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("search for absent term len = %d, want 0", len(none))
	}
}

func TestSearchEmails_IndexFollowsUpdates(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "acc-1")
	ctx := context.Background()

	e := testEmail("acc-1", "pm-1")
	e.Subject = "Draft itinerary"
	if err := db.UpsertEmail(ctx, e); err != nil {
		t.Fatalf("UpsertEmail() error: %v", err)
	}
	if err := db.DeleteEmail(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEmail() error: %v", err)
	}

	got, err := db.SearchEmails(ctx, "itinerary", "")
	if err != nil {
		t.Fatalf("SearchEmails() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("search after delete len = %d, want 0", len(got))
	}
}
