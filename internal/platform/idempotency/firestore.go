package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection, "idempotencyKeys" by default.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithMaxAttempts bounds transaction retries, 5 by default.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(s *FirestoreStore) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// FirestoreStore shares keys across API instances. Documents are keyed by Key.ID and carry an
// expiresAt field that CleanupExpired (and an optional Firestore TTL policy) uses.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	attempts   int
}

func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) (*FirestoreStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: firestore client is required")
	}
	s := &FirestoreStore{client: client, collection: "idempotencyKeys", attempts: 5}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (Claim, Record, error) {
	var (
		claim  Claim
		record Record
	)
	err := s.inTx(ctx, key, func(tx *firestore.Transaction, ref *firestore.DocumentRef, existing *Record) error {
		var write *Record
		var err error
		claim, record, write, err = claimAgainst(existing, key, fingerprint, now.UTC(), ttl)
		if err != nil || write == nil {
			return err
		}
		return tx.Set(ref, encodeRecord(*write))
	})
	return claim, record, err
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key Key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	return s.inTx(ctx, key, func(tx *firestore.Transaction, ref *firestore.DocumentRef, existing *Record) error {
		record, err := completed(existing, key, fingerprint, resp, now.UTC(), ttl)
		if err != nil {
			return err
		}
		return tx.Set(ref, encodeRecord(record))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key Key) error {
	_, err := s.client.Collection(s.collection).Doc(key.ID()).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// CleanupExpired deletes up to limit expired documents in one batch. limit defaults to 100.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	snaps, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil || len(snaps) == 0 {
		return 0, err
	}
	batch := s.client.Batch()
	for _, snap := range snaps {
		batch.Delete(snap.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(snaps), nil
}

type txFunc func(tx *firestore.Transaction, ref *firestore.DocumentRef, existing *Record) error

// inTx loads the key's document inside a transaction and hands it to fn. existing is nil when
// the document does not exist.
func (s *FirestoreStore) inTx(ctx context.Context, key Key, fn txFunc) error {
	ref := s.client.Collection(s.collection).Doc(key.ID())
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			return fn(tx, ref, nil)
		case err != nil:
			return err
		}
		var doc keyDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		record := doc.decode()
		return fn(tx, ref, &record)
	}, firestore.MaxAttempts(s.attempts))
}

type keyDocument struct {
	Scope       string            `firestore:"scope"`
	Key         string            `firestore:"key"`
	Fingerprint string            `firestore:"fingerprint"`
	State       string            `firestore:"state"`
	Response    *responseDocument `firestore:"response,omitempty"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
	ExpiresAt   time.Time         `firestore:"expiresAt"`
}

type responseDocument struct {
	Status  int                 `firestore:"status"`
	Headers map[string][]string `firestore:"headers,omitempty"`
	Body    []byte              `firestore:"body,omitempty"`
}

func encodeRecord(r Record) keyDocument {
	doc := keyDocument{
		Scope:       r.Key.Scope,
		Key:         r.Key.Value,
		Fingerprint: r.Fingerprint,
		State:       string(r.State),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
	if r.State == StateCompleted {
		doc.Response = &responseDocument{Status: r.Response.Status, Headers: r.Response.Headers, Body: r.Response.Body}
	}
	return doc
}

func (d keyDocument) decode() Record {
	r := Record{
		Key:         Key{Scope: d.Scope, Value: d.Key},
		Fingerprint: d.Fingerprint,
		State:       State(d.State),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
	if d.Response != nil {
		r.Response = Response{Status: d.Response.Status, Headers: d.Response.Headers, Body: d.Response.Body}
	}
	return r
}
