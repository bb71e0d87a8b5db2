package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/infra/security"
	"github.com/arklim/identity-verification/internal/repository"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// memKV is an in-memory KeyValueStore whose TTLs follow the test clock.
type memKV struct {
	mu      sync.Mutex
	clock   *testClock
	entries map[string]memEntry
	err     error
}

func newMemKV(clock *testClock) *memKV {
	return &memKV{clock: clock, entries: make(map[string]memEntry)}
}

func (m *memKV) live(key string) (memEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !m.clock.Now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return entry, true
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	entry, ok := m.live(key)
	if !ok {
		return "", repository.ErrNotFound
	}
	return entry.value, nil
}

func (m *memKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[key] = memEntry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.entries, key)
	return nil
}

func (m *memKV) Increment(_ context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	entry, ok := m.live(key)
	if !ok {
		entry = memEntry{value: "0", expiresAt: m.clock.Now().Add(ttl)}
	}
	count, _ := strconv.ParseInt(entry.value, 10, 64)
	if count >= limit {
		return count, false, nil
	}
	count++
	entry.value = strconv.FormatInt(count, 10)
	m.entries[key] = entry
	return count, true, nil
}

func (m *memKV) RemainingTTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	entry, ok := m.live(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(m.clock.Now()), nil
}

// memOTPStore keeps records without TTL eviction so expiry is decided by OTPManager.
type memOTPStore struct {
	mu      sync.Mutex
	records map[string]domain.OTPRecord
	err     error
}

func newMemOTPStore() *memOTPStore {
	return &memOTPStore{records: make(map[string]domain.OTPRecord)}
}

func otpKey(purpose domain.OTPPurpose, identifier string) string {
	return string(purpose) + ":" + identifier
}

func (s *memOTPStore) Save(_ context.Context, record domain.OTPRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records[otpKey(record.Purpose, record.Identifier)] = record
	return nil
}

func (s *memOTPStore) Fetch(_ context.Context, purpose domain.OTPPurpose, identifier string) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	record, ok := s.records[otpKey(purpose, identifier)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

func (s *memOTPStore) IncrementAttempts(_ context.Context, purpose domain.OTPPurpose, identifier string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	key := otpKey(purpose, identifier)
	record, ok := s.records[key]
	if !ok {
		return 0, repository.ErrNotFound
	}
	record.Attempts++
	s.records[key] = record
	return record.Attempts, nil
}

func (s *memOTPStore) Delete(_ context.Context, purpose domain.OTPPurpose, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.records, otpKey(purpose, identifier))
	return nil
}

func (s *memOTPStore) get(purpose domain.OTPPurpose, identifier string) (domain.OTPRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[otpKey(purpose, identifier)]
	return record, ok
}

type testUserRepo struct {
	mu        sync.Mutex
	users     map[string]domain.User
	err       error
	createErr error
}

func newTestUserRepo(users ...domain.User) *testUserRepo {
	repo := &testUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *testUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.users[user.ID] = user
	return nil
}

func (r *testUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if user, ok := r.users[id]; ok {
		copy := user
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *testUserRepo) FindByIdentifier(_ context.Context, kind domain.IdentifierKind, identifier string, orgID *int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, user := range r.users {
		if orgID != nil && user.OrganizationID != *orgID {
			continue
		}
		if strings.EqualFold(user.Identifier(kind), identifier) && identifier != "" {
			copy := user
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *testUserRepo) Update(_ context.Context, id string, patch domain.UserPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.FullName != nil {
		user.FullName = *patch.FullName
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	if patch.IsActive != nil {
		user.IsActive = *patch.IsActive
	}
	if patch.PhoneVerified != nil {
		user.PhoneVerified = *patch.PhoneVerified
	}
	if patch.EmailVerified != nil {
		user.EmailVerified = *patch.EmailVerified
	}
	r.users[id] = user
	return nil
}

func (r *testUserRepo) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	user.LoginAttempts = 0
	user.LockedUntil = nil
	user.UpdatedAt = changedAt
	r.users[id] = user
	return nil
}

func (r *testUserRepo) IncrementLoginAttempts(_ context.Context, id string, threshold int, lockUntil time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.LoginAttempts++
	if user.LoginAttempts >= threshold {
		until := lockUntil
		user.LockedUntil = &until
	}
	r.users[id] = user
	copy := user
	return &copy, nil
}

func (r *testUserRepo) ResetLoginAttempts(_ context.Context, id string, loginAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &loginAt
	r.users[id] = user
	return nil
}

func (r *testUserRepo) get(id string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

type sentMessage struct {
	to      string
	subject string
	body    string
}

type recordingNotifier struct {
	mu     sync.Mutex
	sms    []sentMessage
	emails []sentMessage
	err    error
}

func (n *recordingNotifier) SendSMS(_ context.Context, phone, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sms = append(n.sms, sentMessage{to: phone, body: message})
	return nil
}

func (n *recordingNotifier) SendEmail(_ context.Context, email, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.emails = append(n.emails, sentMessage{to: email, subject: subject, body: body})
	return nil
}

// lastCode extracts the digits following "code is " from the latest SMS, or
// the latest email when no SMS was sent.
func (n *recordingNotifier) lastCode(t *testing.T) string {
	t.Helper()

	n.mu.Lock()
	defer n.mu.Unlock()

	var body string
	switch {
	case len(n.sms) > 0:
		body = n.sms[len(n.sms)-1].body
	case len(n.emails) > 0:
		body = n.emails[len(n.emails)-1].body
	default:
		t.Fatalf("no message was sent")
	}

	_, rest, ok := strings.Cut(body, "code is ")
	if !ok {
		t.Fatalf("message %q carries no code", body)
	}
	code, _, _ := strings.Cut(rest, ".")
	return code
}

func (n *recordingNotifier) sentSMS() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sms)
}

type recordingEvents struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	verified   []domain.UserVerifiedEvent
	locked     []domain.AccountLockedEvent
	resets     []domain.PasswordResetEvent
	err        error
}

func (e *recordingEvents) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, event)
	return e.err
}

func (e *recordingEvents) PublishUserVerified(_ context.Context, event domain.UserVerifiedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verified = append(e.verified, event)
	return e.err
}

func (e *recordingEvents) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = append(e.locked, event)
	return e.err
}

func (e *recordingEvents) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets = append(e.resets, event)
	return e.err
}

type recordingMetrics struct {
	mu       sync.Mutex
	logins   map[string]int
	issued   int
	limited  int
	locked   int
	verified map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{logins: make(map[string]int), verified: make(map[string]int)}
}

func (m *recordingMetrics) LoginAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *recordingMetrics) OTPIssued(domain.OTPPurpose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
}

func (m *recordingMetrics) OTPVerified(_ domain.OTPPurpose, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[outcome]++
}

func (m *recordingMetrics) RateLimited(domain.OTPPurpose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limited++
}

func (m *recordingMetrics) AccountLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked++
}

func newTestHasher(t *testing.T) *security.Argon2Hasher {
	t.Helper()

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}
	return hasher
}

func newTestJWT(t *testing.T) *security.JWTManager {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return security.NewJWTManager(security.NewStaticKeyProvider("test", key), "identity-verification")
}

type authHarness struct {
	svc      *AuthService
	clock    *testClock
	users    *testUserRepo
	kv       *memKV
	otpStore *memOTPStore
	notifier *recordingNotifier
	events   *recordingEvents
	metrics  *recordingMetrics
	hasher   *security.Argon2Hasher
	issuer   *TokenIssuer
}

func newAuthHarness(t *testing.T, users ...domain.User) *authHarness {
	t.Helper()

	h := &authHarness{
		clock:    newTestClock(),
		users:    newTestUserRepo(users...),
		otpStore: newMemOTPStore(),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		metrics:  newRecordingMetrics(),
		hasher:   newTestHasher(t),
	}
	h.kv = newMemKV(h.clock)
	h.issuer = NewTokenIssuer(newTestJWT(t), time.Hour, 7*24*time.Hour).WithClock(h.clock.Now)

	svc, err := NewAuthService(AuthDependencies{
		Users:       h.users,
		Hasher:      h.hasher,
		Passwords:   security.DefaultPasswordValidator(8, 0),
		Identifiers: security.NewIdentifierResolver(domain.IdentifierPhone),
		OTP:         NewOTPManager(h.otpStore).WithClock(h.clock.Now),
		RateLimiter: NewRateLimiter(h.kv, "").WithClock(h.clock.Now),
		LockPolicy:  NewAccountLockPolicy(h.users, 5, 30*time.Minute).WithClock(h.clock.Now),
		Tokens:      h.issuer,
		Notifier:    h.notifier,
		Events:      h.events,
		Metrics:     h.metrics,
	}, DefaultAuthSettings())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	h.svc = svc.WithClock(h.clock.Now)
	return h
}

// activeUser returns a verified active user whose password is password.
func (h *authHarness) activeUser(t *testing.T, id, phone, password string) domain.User {
	t.Helper()

	hash, err := h.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := domain.User{
		ID:             id,
		OrganizationID: 1,
		Phone:          phone,
		FullName:       "Nguyen Van A",
		PasswordHash:   hash,
		Role:           domain.UserRoleVisitor,
		Status:         domain.UserStatusActive,
		IsActive:       true,
		PhoneVerified:  true,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
	if err := h.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

var errBackendDown = fmt.Errorf("%w: redis get: connection refused", repository.ErrUnavailable)
