package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/identity"
)

// FakeProvider is an in-memory identity provider for tests. Accounts are
// keyed by email, ID tokens are plain strings registered up front.
type FakeProvider struct {
	mu sync.Mutex

	users     map[string]fakeAccount // by email
	idTokens  map[string]identity.UserRecord
	nextID    int
	ResetSent []string
	VerifSent []string
}

type fakeAccount struct {
	record   identity.UserRecord
	password string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		users:    make(map[string]fakeAccount),
		idTokens: make(map[string]identity.UserRecord),
	}
}

// AddUser registers an account and returns its subject id
func (p *FakeProvider) AddUser(email string, password string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.addLocked(email, password)
}

// AddIDToken registers a federated token that verifies to the record
func (p *FakeProvider) AddIDToken(token string, record identity.UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.idTokens[token] = record
}

func (p *FakeProvider) addLocked(email string, password string) string {
	p.nextID++
	uid := fmt.Sprintf("uid-%d", p.nextID)
	p.users[email] = fakeAccount{
		record:   identity.UserRecord{UID: uid, Email: email},
		password: password,
	}
	return uid
}

func (p *FakeProvider) VerifyPassword(_ context.Context, email string, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	account, ok := p.users[email]
	if !ok || account.password != password {
		return "", apperrors.ErrInvalidCredentials
	}
	return account.record.UID, nil
}

func (p *FakeProvider) VerifyIDToken(_ context.Context, idToken string) (identity.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.idTokens[idToken]
	if !ok {
		return identity.UserRecord{}, apperrors.ErrUnauthenticated
	}
	return record, nil
}

func (p *FakeProvider) CreateUser(_ context.Context, email string, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.users[email]; ok {
		return "", apperrors.ErrEmailAlreadyExists
	}
	return p.addLocked(email, password), nil
}

func (p *FakeProvider) GetUser(_ context.Context, uid string) (identity.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, account := range p.users {
		if account.record.UID == uid {
			return account.record, nil
		}
	}
	return identity.UserRecord{}, apperrors.ErrUserNotFound
}

func (p *FakeProvider) SendPasswordReset(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Recorded even for unknown emails, the caller must not learn the
	// difference
	p.ResetSent = append(p.ResetSent, email)
	return nil
}

func (p *FakeProvider) SendEmailVerification(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.VerifSent = append(p.VerifSent, email)
	return nil
}
