// Package store persists finished call records and per-user stats in
// Firestore.
package store

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/quietline/quietline/pkg/screen"
	"github.com/quietline/quietline/pkg/screen/finalize"
)

const (
	defaultCallsCollection = "calls"
	defaultUsersCollection = "users"
)

// Firestore implements finalize.Store.
type Firestore struct {
	client          *firestore.Client
	callsCollection string
	usersCollection string
}

// Config selects the collections used for records and stats.
type Config struct {
	CallsCollection string
	UsersCollection string
}

// NewFirestore builds a client from the ambient credentials: an inline
// service-account JSON, a credentials file path, or application default
// credentials, in that order.
func NewFirestore(ctx context.Context, cfg Config) (*Firestore, error) {
	var app *firebase.App
	var err error

	switch {
	case os.Getenv("FIREBASE_CREDENTIALS_JSON") != "":
		opt := option.WithCredentialsJSON([]byte(os.Getenv("FIREBASE_CREDENTIALS_JSON")))
		app, err = firebase.NewApp(ctx, nil, opt)
	case os.Getenv("FIREBASE_CREDENTIALS_FILE") != "":
		opt := option.WithCredentialsFile(os.Getenv("FIREBASE_CREDENTIALS_FILE"))
		app, err = firebase.NewApp(ctx, nil, opt)
	default:
		app, err = firebase.NewApp(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	return NewFirestoreWithClient(client, cfg), nil
}

func NewFirestoreWithClient(client *firestore.Client, cfg Config) *Firestore {
	if cfg.CallsCollection == "" {
		cfg.CallsCollection = defaultCallsCollection
	}
	if cfg.UsersCollection == "" {
		cfg.UsersCollection = defaultUsersCollection
	}
	return &Firestore{
		client:          client,
		callsCollection: cfg.CallsCollection,
		usersCollection: cfg.UsersCollection,
	}
}

// CreateCall writes the record keyed by its call id.
func (f *Firestore) CreateCall(ctx context.Context, record *screen.CallRecord) (string, error) {
	if record.CallID == "" {
		return "", fmt.Errorf("%w: record has no call id", screen.ErrValidation)
	}
	ref := f.client.Collection(f.callsCollection).Doc(record.CallID)
	if _, err := ref.Set(ctx, record); err != nil {
		return "", fmt.Errorf("%w: create call %s: %v", screen.ErrPersistence, record.CallID, err)
	}
	return record.CallID, nil
}

// UpdateStats applies the delta to the user's running totals with server
// side increments, creating the stats document on first use.
func (f *Firestore) UpdateStats(ctx context.Context, userID string, delta finalize.StatsDelta) error {
	if userID == "" {
		return fmt.Errorf("%w: missing user id", screen.ErrValidation)
	}
	ref := f.client.Collection(f.usersCollection).Doc(userID)
	_, err := ref.Set(ctx, map[string]interface{}{
		"stats": map[string]interface{}{
			"totalCalls":           firestore.Increment(delta.CallsDelta),
			"totalDurationSeconds": firestore.Increment(delta.DurationDelta),
		},
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("%w: update stats for %s: %v", screen.ErrPersistence, userID, err)
	}
	return nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}
