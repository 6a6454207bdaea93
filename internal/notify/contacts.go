package notify

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// CachedContacts memoises a ContactLookup for a TTL. Missing contacts are
// cached too; lookup errors are not.
type CachedContacts struct {
	next  ContactLookup
	cache *cache.Cache
}

func NewCachedContacts(next ContactLookup, ttl time.Duration) *CachedContacts {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedContacts{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedContacts) Email(ctx context.Context, id, typ string) (string, error) {
	return c.get(ctx, "email", id, typ, c.next.Email)
}

func (c *CachedContacts) Phone(ctx context.Context, id, typ string) (string, error) {
	return c.get(ctx, "phone", id, typ, c.next.Phone)
}

func (c *CachedContacts) PushEndpoint(ctx context.Context, id, typ string) (string, error) {
	return c.get(ctx, "push", id, typ, c.next.PushEndpoint)
}

// Forget drops every cached contact of a recipient.
func (c *CachedContacts) Forget(id, typ string) {
	for _, kind := range []string{"email", "phone", "push"} {
		c.cache.Delete(cacheKey(kind, id, typ))
	}
}

type lookupFunc func(ctx context.Context, id, typ string) (string, error)

func (c *CachedContacts) get(ctx context.Context, kind, id, typ string, fetch lookupFunc) (string, error) {
	key := cacheKey(kind, id, typ)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	v, err := fetch(ctx, id, typ)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(key, v)
	return v, nil
}

func cacheKey(kind, id, typ string) string {
	return kind + ":" + typ + ":" + id
}

// StaticContacts is a ContactLookup over fixed maps keyed by recipient id.
type StaticContacts struct {
	Emails        map[string]string
	Phones        map[string]string
	PushEndpoints map[string]string
}

func (s StaticContacts) Email(_ context.Context, id, _ string) (string, error) {
	return s.Emails[id], nil
}

func (s StaticContacts) Phone(_ context.Context, id, _ string) (string, error) {
	return s.Phones[id], nil
}

func (s StaticContacts) PushEndpoint(_ context.Context, id, _ string) (string, error) {
	return s.PushEndpoints[id], nil
}

// ContactWriter stores contact details. *db.ContactRepository satisfies it.
type ContactWriter interface {
	Upsert(ctx context.Context, recipientID, recipientType, email, phone, pushEndpoint string) error
}

// ContactBook is the write path for contacts. Saving evicts the recipient
// from the cache so the next dispatch sees the new values.
type ContactBook struct {
	store ContactWriter
	cache *CachedContacts
}

// NewContactBook creates a book writing to store. cache may be nil.
func NewContactBook(store ContactWriter, cache *CachedContacts) *ContactBook {
	return &ContactBook{store: store, cache: cache}
}

func (b *ContactBook) Save(ctx context.Context, id, typ string, c Contacts) error {
	if err := b.store.Upsert(ctx, id, typ, c.Email, c.Phone, c.PushEndpoint); err != nil {
		return err
	}
	if b.cache != nil {
		b.cache.Forget(id, typ)
	}
	return nil
}
