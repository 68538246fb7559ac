package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/calvinalkan/livequery/pkg/livequery"
	"github.com/calvinalkan/livequery/pkg/memstore"
	"github.com/calvinalkan/livequery/pkg/sqlstore"
)

const contactEntity = "contact"

// Contact is the record the playground manages.
type Contact struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Archived bool   `json:"archived,omitempty"`
}

// ID implements [livequery.Record].
func (c Contact) ID() string { return c.Key }

// activeContacts lists unarchived contacts by name, sectioned by the
// upper-cased first letter.
func activeContacts() livequery.FetchSpec[Contact] {
	return livequery.FetchSpec[Contact]{
		Entity:    contactEntity,
		Where:     func(c Contact) (bool, error) { return !c.Archived, nil },
		WhereDesc: "archived == false",
		Compare: func(a, b Contact) int {
			if c := strings.Compare(initial(a.Name), initial(b.Name)); c != 0 {
				return c
			}

			if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
				return c
			}

			return strings.Compare(a.Key, b.Key)
		},
		SortDesc:    "initial asc, lower(name) asc, key asc",
		SectionKey:  func(c Contact) string { return initial(c.Name) },
		SectionDesc: "initial(name)",
	}
}

func initial(name string) string {
	if name == "" {
		return "#"
	}

	return livequery.DefaultIndexTitle(name)
}

// backend is the write side of a contact store. Writes become visible to
// on-commit controllers at Commit.
type backend interface {
	livequery.Store[Contact]
	Get(ctx context.Context, id string) (Contact, bool, error)
	Put(ctx context.Context, c Contact) error
	Delete(ctx context.Context, id string) error
	Commit(ctx context.Context) error
	Pending() bool
	Close() error
	Kind() string
}

// openBackend returns a SQLite store for a non-empty path and an in-memory
// store otherwise.
func openBackend(ctx context.Context, dbPath string) (backend, error) {
	if dbPath == "" {
		return &memBackend{Store: memstore.New[Contact](contactEntity)}, nil
	}

	s, err := sqlstore.Open[Contact](ctx, dbPath, contactEntity, sqlstore.Options[Contact]{})
	if err != nil {
		return nil, err
	}

	return &sqlBackend{Store: s, path: dbPath}, nil
}

func newID() string { return memstore.NewID() }

// memBackend publishes every write immediately and a commit event on Commit.
type memBackend struct {
	*memstore.Store[Contact]
}

func (b *memBackend) Get(_ context.Context, id string) (Contact, bool, error) {
	c, ok := b.Store.Get(id)

	return c, ok, nil
}

func (b *memBackend) Put(_ context.Context, c Contact) error { return b.Store.Put(c) }

func (b *memBackend) Delete(_ context.Context, id string) error { return b.Store.Delete(id) }

func (b *memBackend) Commit(context.Context) error {
	b.Store.Commit()

	return nil
}

func (*memBackend) Pending() bool { return false }

func (*memBackend) Close() error { return nil }

func (*memBackend) Kind() string { return "memory" }

// sqlBackend buffers writes in an open transaction; nothing is stored or
// published until Commit.
type sqlBackend struct {
	*sqlstore.Store[Contact]
	path string
	tx   *sqlstore.Tx[Contact]
}

func (b *sqlBackend) txn(ctx context.Context) (*sqlstore.Tx[Contact], error) {
	if b.tx != nil {
		return b.tx, nil
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return nil, err
	}

	b.tx = tx

	return tx, nil
}

func (b *sqlBackend) Get(ctx context.Context, id string) (Contact, bool, error) {
	if b.tx != nil {
		return b.tx.Get(id)
	}

	return b.Store.Get(ctx, id)
}

func (b *sqlBackend) Put(ctx context.Context, c Contact) error {
	tx, err := b.txn(ctx)
	if err != nil {
		return err
	}

	return tx.Put(c)
}

func (b *sqlBackend) Delete(ctx context.Context, id string) error {
	tx, err := b.txn(ctx)
	if err != nil {
		return err
	}

	return tx.Delete(id)
}

func (b *sqlBackend) Commit(ctx context.Context) error {
	if b.tx == nil {
		return nil
	}

	tx := b.tx
	b.tx = nil

	return tx.Commit(ctx)
}

// Pending reports whether uncommitted writes exist.
func (b *sqlBackend) Pending() bool { return b.tx != nil }

// Close discards uncommitted writes.
func (b *sqlBackend) Close() error {
	if b.tx != nil {
		b.tx.Rollback()
		b.tx = nil
	}

	return b.Store.Close()
}

func (b *sqlBackend) Kind() string { return fmt.Sprintf("sqlite %s", b.path) }
