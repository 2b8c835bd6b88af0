package rotation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// MockIssuer stands in for the upstream key-management APIs in local
// development and tests. Issued credentials are random, and revocations are
// recorded so tests can assert on them. Scripted errors drive failure paths.
type MockIssuer struct {
	mu      sync.Mutex
	issued  map[string][]string
	revoked map[string][]string

	issueScript  []error
	revokeScript []error

	IssueCalls  int
	RevokeCalls int
}

type MockIssuerOption func(*MockIssuer)

// WithIssueScript sets per-call outcomes for Issue: entry i is the error
// returned by call i (nil meaning success). Calls beyond the script succeed.
func WithIssueScript(errs ...error) MockIssuerOption {
	return func(m *MockIssuer) { m.issueScript = errs }
}

// WithRevokeScript sets per-call outcomes for Revoke.
func WithRevokeScript(errs ...error) MockIssuerOption {
	return func(m *MockIssuer) { m.revokeScript = errs }
}

func NewMockIssuer(opts ...MockIssuerOption) *MockIssuer {
	m := &MockIssuer{
		issued:  make(map[string][]string),
		revoked: make(map[string][]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MockIssuer) Issue(ctx context.Context, service string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IssueCalls++

	if len(m.issueScript) > 0 {
		err := m.issueScript[0]
		m.issueScript = m.issueScript[1:]
		if err != nil {
			return "", err
		}
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	cred := fmt.Sprintf("sk_%s_%s", service, hex.EncodeToString(buf))
	m.issued[service] = append(m.issued[service], cred)
	return cred, nil
}

func (m *MockIssuer) Revoke(ctx context.Context, service, cred string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RevokeCalls++

	if len(m.revokeScript) > 0 {
		err := m.revokeScript[0]
		m.revokeScript = m.revokeScript[1:]
		if err != nil {
			return err
		}
	}
	m.revoked[service] = append(m.revoked[service], cred)
	return nil
}

// Issued returns the credentials issued for a service, in order.
func (m *MockIssuer) Issued(service string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.issued[service]))
	copy(out, m.issued[service])
	return out
}

// Revoked returns the credentials revoked for a service, in order.
func (m *MockIssuer) Revoked(service string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.revoked[service]))
	copy(out, m.revoked[service])
	return out
}
