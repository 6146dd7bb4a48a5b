// Package memory holds in-process implementations of the repository
// interfaces. They back the service when no database is configured and
// serve as fakes in tests. Nothing is persisted across restarts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/repository"
)

const defaultAuditLimit = 50

// Store groups the repositories that share one process-local dataset.
type Store struct {
	Cases         *CaseRepository
	Users         *UserRepository
	Audit         *AuditRepository
	RefreshTokens *RefreshTokenRepository
	Tx            *TxRunner
}

// NewStore returns an empty store.
func NewStore() *Store {
	cases := NewCaseRepository()
	users := NewUserRepository()
	return &Store{
		Cases:         cases,
		Users:         users,
		Audit:         NewAuditRepository(),
		RefreshTokens: NewRefreshTokenRepository(),
		Tx:            NewTxRunner(cases, users),
	}
}

// CaseRepository keeps cases in a map.
type CaseRepository struct {
	mu    sync.Mutex
	cases map[string]*domain.Case
	seq   int
	lists int
	now   func() time.Time
}

// NewCaseRepository returns an empty repository.
func NewCaseRepository() *CaseRepository {
	return &CaseRepository{cases: map[string]*domain.Case{}, now: time.Now}
}

// stamp returns strictly increasing timestamps so newest-first ordering is
// stable even when the clock does not advance between calls.
func (r *CaseRepository) stamp() time.Time {
	r.seq++
	return r.now().UTC().Truncate(time.Second).Add(time.Duration(r.seq) * time.Millisecond)
}

func (r *CaseRepository) Create(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.NewString()
	c.IsActive = true
	c.CreatedAt = r.stamp()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *CaseRepository) Update(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.cases[c.ID]
	if !ok || !existing.IsActive {
		return pgx.ErrNoRows
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = r.stamp()
	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *CaseRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.cases[id]
	if !ok || !existing.IsActive {
		return pgx.ErrNoRows
	}
	existing.IsActive = false
	existing.UpdatedAt = r.stamp()
	return nil
}

func (r *CaseRepository) GetByID(_ context.Context, id string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

// GetByIDForUpdate is GetByID; TxRunner serialises writers instead of
// locking rows.
func (r *CaseRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Case, error) {
	return r.GetByID(ctx, id)
}

func (r *CaseRepository) List(_ context.Context, f repository.CaseFilter) ([]domain.Case, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++

	var matched []domain.Case
	for _, c := range r.cases {
		if matchCase(c, f) {
			matched = append(matched, *c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func matchCase(c *domain.Case, f repository.CaseFilter) bool {
	switch {
	case f.Active != nil:
		if c.IsActive != *f.Active {
			return false
		}
	case !f.IncludeInactive && !c.IsActive:
		return false
	}
	if !f.Scope.All {
		own := f.Scope.OwnerID != "" && c.CreatedBy == f.Scope.OwnerID
		assigned := f.Scope.AssigneeID != "" && c.IsAssignedTo(f.Scope.AssigneeID)
		if !own && !assigned {
			return false
		}
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.Priority != nil && c.Priority != *f.Priority {
		return false
	}
	if f.AssignedTo != nil && !c.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	if f.CreatedBy != nil && c.CreatedBy != *f.CreatedBy {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" &&
		!strings.Contains(strings.ToLower(c.Title), term) &&
		!strings.Contains(strings.ToLower(c.Description), term) {
		return false
	}
	return true
}

func (r *CaseRepository) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cases), nil
}

// Put stores c as given, filling in an id, timestamps and defaults when
// they are missing. Used for seeding.
func (r *CaseRepository) Put(c domain.Case) *domain.Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.stamp()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Priority == "" {
		c.Priority = domain.CasePriorityMedium
	}
	if c.Status == "" {
		c.Status = domain.CaseStatusOpen
	}
	c.IsActive = true
	r.cases[c.ID] = &c
	cp := c
	return &cp
}

// Lists reports how many List calls reached the repository.
func (r *CaseRepository) Lists() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lists
}

// UserRepository keeps accounts in a map.
type UserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewUserRepository returns a repository holding copies of users.
func NewUserRepository(users ...*domain.User) *UserRepository {
	r := &UserRepository{users: map[string]*domain.User{}}
	for _, u := range users {
		cp := *u
		r.users[u.ID] = &cp
	}
	return r
}

func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	u.ID = uuid.NewString()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *UserRepository) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return pgx.ErrNoRows
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *UserRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.IsActive = false
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *UserRepository) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var usernameTaken, emailTaken bool
	for _, existing := range r.users {
		if existing.Username == username {
			usernameTaken = true
		}
		if strings.EqualFold(existing.Email, email) {
			emailTaken = true
		}
	}
	return usernameTaken, emailTaken, nil
}

func (r *UserRepository) List(_ context.Context, activeOnly bool) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.User{}
	for _, u := range r.users {
		if activeOnly && !u.IsActive {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// TxRunner serialises transactional callbacks. There is no rollback: a
// callback that fails after writing leaves its writes in place.
type TxRunner struct {
	mu    sync.Mutex
	cases repository.CaseRepository
	users repository.UserRepository
}

// NewTxRunner binds the runner to the given repositories.
func NewTxRunner(cases repository.CaseRepository, users repository.UserRepository) *TxRunner {
	return &TxRunner{cases: cases, users: users}
}

func (t *TxRunner) RunInTx(_ context.Context, fn func(repository.CaseRepository, repository.UserRepository) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.cases, t.users)
}

// AuditRepository keeps the audit trail in insertion order.
type AuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	last    repository.AuditFilter
}

// NewAuditRepository returns an empty trail.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(_ context.Context, e *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

// List returns matching entries newest first.
func (r *AuditRepository) List(_ context.Context, f repository.AuditFilter) ([]domain.AuditEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = f

	action := strings.ToLower(strings.TrimSpace(f.Action))
	var matched []domain.AuditEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
			continue
		}
		if action != "" && !strings.Contains(strings.ToLower(e.Action), action) {
			continue
		}
		if f.Result != nil && e.Result != *f.Result {
			continue
		}
		matched = append(matched, e)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	return page(matched, limit, f.Offset), len(matched), nil
}

// Entries returns a copy of the trail in insertion order.
func (r *AuditRepository) Entries() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEntry{}, r.entries...)
}

// LastFilter returns the filter of the most recent List call.
func (r *AuditRepository) LastFilter() repository.AuditFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// RefreshTokenRepository keeps issued refresh tokens keyed by token id.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domain.RefreshToken
	now    func() time.Time
}

// NewRefreshTokenRepository returns an empty repository.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: map[string]domain.RefreshToken{}, now: time.Now}
}

func (r *RefreshTokenRepository) Create(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[t.TokenID]; ok {
		return repository.ErrDuplicate
	}
	t.ID = uuid.NewString()
	t.CreatedAt = r.now().UTC()
	r.tokens[t.TokenID] = *t
	return nil
}

func (r *RefreshTokenRepository) GetByTokenID(_ context.Context, tokenID string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r *RefreshTokenRepository) DeleteByTokenID(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[tokenID]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tokens, tokenID)
	return nil
}

func (r *RefreshTokenRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokenRepository) DeleteExpired(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for id, t := range r.tokens {
		if !t.ExpiresAt.After(now) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many refresh tokens are stored.
func (r *RefreshTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

func page[T any](items []T, limit, offset int) []T {
	total := len(items)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return append([]T{}, items[offset:end]...)
}

var (
	_ repository.CaseRepository         = (*CaseRepository)(nil)
	_ repository.UserRepository         = (*UserRepository)(nil)
	_ repository.AuditRepository        = (*AuditRepository)(nil)
	_ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
	_ repository.TxRunner               = (*TxRunner)(nil)
)
