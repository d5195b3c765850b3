package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/normalize"
	"github.com/dalemusser/juntos/internal/app/system/ratelimit"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Client implements Provider over the document service.
type Client struct {
	docs    docstore.Service
	limiter *ratelimit.Limiter
	log     *zap.Logger
	cost    int

	mu        sync.RWMutex
	current   *models.Identity
	listeners map[uint64]func(*models.Identity)
	nextID    uint64
}

// Option customizes a Client.
type Option func(*Client)

// WithBcryptCost sets the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(c *Client) { c.cost = cost }
}

// WithLimiter throttles sign-in attempts per email address.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient returns a signed-out client.
func NewClient(docs docstore.Service, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		docs:      docs,
		log:       logger,
		cost:      bcrypt.DefaultCost,
		listeners: make(map[uint64]func(*models.Identity)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (*models.Identity, error) {
	email = normalize.Email(email)
	if !validEmail(email) {
		return nil, &Error{Code: CodeInvalidEmail}
	}
	if len(password) < MinPasswordLen {
		return nil, &Error{Code: CodeWeakPassword}
	}

	existing, err := c.findByEmail(ctx, email)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Err: err}
	}
	if existing != nil {
		return nil, &Error{Code: CodeEmailInUse}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Err: err}
	}
	now := time.Now().UTC()
	acct := models.Account{Email: email, PasswordHash: string(hash), CreatedAt: now, UpdatedAt: now}
	id, err := c.docs.Add(ctx, docstore.Accounts, acct.ToDocument())
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicate) {
			return nil, &Error{Code: CodeEmailInUse}
		}
		return nil, &Error{Code: CodeInternal, Err: err}
	}
	acct.ID = id

	c.log.Info("account created", zap.String("user_id", id))
	ident := acct.Identity()
	c.setCurrent(ident)
	return ident, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	email = normalize.Email(email)
	if c.limiter != nil && !c.limiter.Allow(ratelimit.EmailKey(email)) {
		c.log.Warn("sign-in throttled", zap.String("email", email))
		return nil, &Error{Code: CodeTooManyRequests}
	}

	acct, err := c.findByEmail(ctx, email)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Err: err}
	}
	if acct == nil {
		return nil, &Error{Code: CodeUserNotFound}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, &Error{Code: CodeWrongPassword}
	}

	if c.limiter != nil {
		c.limiter.Reset(ratelimit.EmailKey(email))
	}
	ident := acct.Identity()
	c.setCurrent(ident)
	return ident, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Code: CodeInternal, Err: err}
	}
	c.setCurrent(nil)
	return nil
}

func (c *Client) Current() *models.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

func (c *Client) OnIdentityChange(fn func(*models.Identity)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) UpdateDisplayName(ctx context.Context, displayName string) error {
	cur := c.Current()
	if cur == nil {
		return &Error{Code: CodeNotSignedIn}
	}
	err := c.docs.Update(ctx, docstore.Accounts, cur.ID, docstore.Document{
		"display_name": displayName,
		"updated_at":   time.Now().UTC(),
	})
	if err != nil {
		return &Error{Code: CodeInternal, Err: err}
	}

	c.mu.Lock()
	if c.current != nil && c.current.ID == cur.ID {
		c.current.DisplayName = displayName
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	cur := c.Current()
	if cur == nil {
		return &Error{Code: CodeNotSignedIn}
	}
	if err := c.docs.Delete(ctx, docstore.Accounts, cur.ID); err != nil {
		return &Error{Code: CodeInternal, Err: err}
	}
	c.log.Info("account deleted", zap.String("user_id", cur.ID))
	c.setCurrent(nil)
	return nil
}

// setCurrent swaps the current identity and notifies listeners outside the
// lock.
func (c *Client) setCurrent(ident *models.Identity) {
	c.mu.Lock()
	c.current = ident
	fns := make([]func(*models.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		if ident == nil {
			fn(nil)
			continue
		}
		cp := *ident
		fn(&cp)
	}
}

func (c *Client) findByEmail(ctx context.Context, email string) (*models.Account, error) {
	snaps, err := c.docs.Query(ctx, docstore.Accounts, docstore.Where("email", email))
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	var acct models.Account
	if err := docstore.DecodeSnapshot(snaps[0], &acct); err != nil {
		return nil, err
	}
	acct.ID = snaps[0].ID
	return &acct, nil
}

var _ Provider = (*Client)(nil)
