package store

import (
	"context"
	"errors"
	"testing"

	"github.com/quietline/quietline/pkg/screen"
	"github.com/quietline/quietline/pkg/screen/finalize"
)

func TestNewFirestoreWithClient_DefaultsCollections(t *testing.T) {
	f := NewFirestoreWithClient(nil, Config{})
	if f.callsCollection != "calls" || f.usersCollection != "users" {
		t.Fatalf("collections=%q/%q", f.callsCollection, f.usersCollection)
	}

	f = NewFirestoreWithClient(nil, Config{CallsCollection: "screened", UsersCollection: "owners"})
	if f.callsCollection != "screened" || f.usersCollection != "owners" {
		t.Fatalf("collections=%q/%q", f.callsCollection, f.usersCollection)
	}
}

func TestCreateCall_RejectsMissingCallID(t *testing.T) {
	f := NewFirestoreWithClient(nil, Config{})
	_, err := f.CreateCall(context.Background(), &screen.CallRecord{SessionID: "MZ1"})
	if !errors.Is(err, screen.ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}

func TestUpdateStats_RejectsMissingUserID(t *testing.T) {
	f := NewFirestoreWithClient(nil, Config{})
	err := f.UpdateStats(context.Background(), "", finalize.StatsDelta{CallsDelta: 1})
	if !errors.Is(err, screen.ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
}
