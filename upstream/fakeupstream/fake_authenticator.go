package fakeupstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-agent-auth/upstream"
)

var _ upstream.Authenticator = (*FakeAuthenticator)(nil)

// FakeAuthenticator accepts a fixed set of accounts and counts calls.
type FakeAuthenticator struct {
	lock     sync.Mutex
	accounts map[string]string
	calls    int
	failWith error
	lifetime time.Duration
	now      func() time.Time
}

func NewFakeAuthenticator() *FakeAuthenticator {
	return &FakeAuthenticator{
		accounts: make(map[string]string),
		lifetime: time.Hour,
		now:      time.Now,
	}
}

func (f *FakeAuthenticator) AddAccount(email, password string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accounts[email] = password
}

// FailWith makes every following call return err. nil restores normal behaviour.
func (f *FakeAuthenticator) FailWith(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.failWith = err
}

func (f *FakeAuthenticator) SetTokenLifetime(d time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.lifetime = d
}

func (f *FakeAuthenticator) Calls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

func (f *FakeAuthenticator) Authenticate(_ context.Context, email, password string) (upstream.Token, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls++

	if f.failWith != nil {
		return upstream.Token{}, f.failWith
	}
	if expected, ok := f.accounts[email]; !ok || expected != password {
		return upstream.Token{}, upstream.ErrAuthentication
	}
	return upstream.Token{
		Value:     fmt.Sprintf("upstream-%s-%d", email, f.calls),
		ExpiresAt: f.now().Add(f.lifetime),
	}, nil
}
