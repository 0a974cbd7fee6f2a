package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(persist TokenStore) *Store {
	s := NewStore(persist, testLogger())
	s.now = func() time.Time { return testNow }
	return s
}

func makeToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
		Email:            email,
	}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

type fakeAuth struct {
	token string
	err   error
	calls int
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (string, error) {
	f.calls++
	return f.token, f.err
}

func (f *fakeAuth) Register(ctx context.Context, email, password, name string) (string, error) {
	f.calls++
	return f.token, f.err
}

func TestHydrate_ValidToken(t *testing.T) {
	token := makeToken(t, "user-1", "a@x.com", testNow.Add(time.Hour))
	store := newTestStore(NewMemoryStore(token))

	sess := store.Hydrate(context.Background())

	if !store.IsAuthenticated() {
		t.Fatal("IsAuthenticated() = false after hydrating a valid token")
	}
	if sess.Subject != "user-1" || sess.Email != "a@x.com" {
		t.Errorf("identity = %q/%q, want user-1/a@x.com", sess.Subject, sess.Email)
	}
	if !sess.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", sess.ExpiresAt)
	}
}

func TestHydrate_ExpiredTokenClearsStorage(t *testing.T) {
	token := makeToken(t, "user-1", "a@x.com", testNow.Add(-time.Second))
	persist := NewMemoryStore(token)
	store := newTestStore(persist)

	store.Hydrate(context.Background())

	if store.IsAuthenticated() {
		t.Error("IsAuthenticated() = true for expired token")
	}
	if got, _ := persist.Load(context.Background()); got != "" {
		t.Errorf("persisted token = %q, want cleared", got)
	}
	if store.Token() != "" {
		t.Error("Token() should be empty after expired hydrate")
	}
}

func TestHydrate_GarbageTokenClearsStorage(t *testing.T) {
	persist := NewMemoryStore("not-a-jwt")
	store := newTestStore(persist)

	store.Hydrate(context.Background())

	if store.IsAuthenticated() {
		t.Error("IsAuthenticated() = true for undecodable token")
	}
	if got, _ := persist.Load(context.Background()); got != "" {
		t.Errorf("persisted token = %q, want cleared", got)
	}
}

func TestHydrate_NoToken(t *testing.T) {
	store := newTestStore(NewMemoryStore(""))
	if sess := store.Hydrate(context.Background()); sess.Token != "" {
		t.Errorf("Hydrate() = %+v, want anonymous", sess)
	}
}

func TestHydrate_TokenWithoutExpiry(t *testing.T) {
	token := makeToken(t, "user-1", "a@x.com", time.Time{})
	store := newTestStore(NewMemoryStore(token))

	sess := store.Hydrate(context.Background())
	if !store.IsAuthenticated() {
		t.Error("token without exp should authenticate")
	}
	if !sess.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", sess.ExpiresAt)
	}
}

func TestHydrate_Idempotent(t *testing.T) {
	token := makeToken(t, "user-1", "a@x.com", testNow.Add(time.Hour))
	store := newTestStore(NewMemoryStore(token))

	var wg sync.WaitGroup
	results := make([]Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Hydrate(context.Background())
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r != results[0] {
			t.Errorf("hydrate %d = %+v, want %+v", i, r, results[0])
		}
	}
	if store.Current() != results[0] {
		t.Errorf("Current() = %+v, want %+v", store.Current(), results[0])
	}
}

func TestLogin_Success(t *testing.T) {
	token := makeToken(t, "user-2", "b@x.com", testNow.Add(time.Hour))
	persist := NewMemoryStore("")
	store := newTestStore(persist)

	sess, err := store.Login(context.Background(), &fakeAuth{token: token}, "b@x.com", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.Email != "b@x.com" {
		t.Errorf("Email = %q", sess.Email)
	}
	if got, _ := persist.Load(context.Background()); got != token {
		t.Error("token was not persisted")
	}
	if !store.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after login")
	}
}

func TestLogin_FailureKeepsExistingSession(t *testing.T) {
	old := makeToken(t, "user-1", "a@x.com", testNow.Add(time.Hour))
	persist := NewMemoryStore(old)
	store := newTestStore(persist)
	store.Hydrate(context.Background())

	wantErr := errors.New("Invalid credentials")
	_, err := store.Login(context.Background(), &fakeAuth{err: wantErr}, "a@x.com", "bad")
	if err != wantErr {
		t.Fatalf("Login() error = %v, want the authenticator's error unchanged", err)
	}
	if store.Token() != old {
		t.Error("failed login mutated the session")
	}
	if got, _ := persist.Load(context.Background()); got != old {
		t.Error("failed login mutated persisted token")
	}
}

func TestRegister_ExpiredTokenRejected(t *testing.T) {
	token := makeToken(t, "user-3", "c@x.com", testNow.Add(-time.Minute))
	store := newTestStore(NewMemoryStore(""))

	_, err := store.Register(context.Background(), &fakeAuth{token: token}, "c@x.com", "pw", "C")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Register() error = %v, want ErrTokenExpired", err)
	}
	if store.IsAuthenticated() {
		t.Error("store should stay anonymous")
	}
}

func TestLogout(t *testing.T) {
	token := makeToken(t, "user-1", "a@x.com", testNow.Add(time.Hour))
	persist := NewMemoryStore(token)
	store := newTestStore(persist)
	store.Hydrate(context.Background())

	store.Logout(context.Background())
	store.Logout(context.Background())

	if store.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after logout")
	}
	if got, _ := persist.Load(context.Background()); got != "" {
		t.Error("persisted token not cleared")
	}
}

func TestInvalidate_ClearsExactlyOnce(t *testing.T) {
	token := makeToken(t, "user-1", "a@x.com", testNow.Add(time.Hour))
	persist := NewMemoryStore(token)
	store := newTestStore(persist)
	store.Hydrate(context.Background())

	var fired atomic.Int32
	store.OnInvalidate(func() { fired.Add(1) })

	var cleared atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Invalidate(context.Background(), token) {
				cleared.Add(1)
			}
		}()
	}
	wg.Wait()

	if cleared.Load() != 1 {
		t.Errorf("Invalidate cleared %d times, want 1", cleared.Load())
	}
	if fired.Load() != 1 {
		t.Errorf("OnInvalidate fired %d times, want 1", fired.Load())
	}
	if store.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after forced logout")
	}
}

func TestInvalidate_StaleTokenKeepsNewSession(t *testing.T) {
	old := makeToken(t, "user-1", "a@x.com", testNow.Add(time.Hour))
	fresh := makeToken(t, "user-1", "a@x.com", testNow.Add(2*time.Hour))
	store := newTestStore(NewMemoryStore(""))

	if _, err := store.Adopt(context.Background(), fresh); err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}
	if store.Invalidate(context.Background(), old) {
		t.Error("Invalidate with a superseded token should not clear")
	}
	if store.Token() != fresh {
		t.Error("fresh session was cleared by a stale rejection")
	}
}

func TestKeyringStore(t *testing.T) {
	ctx := context.Background()
	ks := NewKeyringStore(keyring.NewArrayKeyring(nil))

	if tok, err := ks.Load(ctx); err != nil || tok != "" {
		t.Fatalf("Load() on empty keyring = %q, %v", tok, err)
	}
	if err := ks.Save(ctx, "abc"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if tok, _ := ks.Load(ctx); tok != "abc" {
		t.Errorf("Load() = %q, want abc", tok)
	}
	if err := ks.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := ks.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if tok, _ := ks.Load(ctx); tok != "" {
		t.Errorf("Load() after Clear = %q", tok)
	}
}

func TestFileKeyringUsesConfiguredPassword(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "keyring")
	open := func(password string) *KeyringStore {
		t.Helper()
		ring, err := OpenKeyring(KeyringConfig{
			ServiceName:  "mailjob-test",
			Backend:      "file",
			FileDir:      dir,
			FilePassword: password,
		})
		if err != nil {
			t.Fatalf("OpenKeyring() error = %v", err)
		}
		return NewKeyringStore(ring)
	}

	if err := open("correct horse").Save(ctx, "abc"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if tok, err := open("correct horse").Load(ctx); err != nil || tok != "abc" {
		t.Errorf("Load() with the same password = %q, %v", tok, err)
	}
	if tok, err := open("battery staple").Load(ctx); err == nil {
		t.Errorf("Load() with another password = %q, want a decryption error", tok)
	}
	if tok, err := open("").Load(ctx); err == nil {
		t.Errorf("Load() with the default key = %q, want a decryption error", tok)
	}
}

func TestKeyringConfigFilePassword(t *testing.T) {
	if got := (KeyringConfig{ServiceName: "mailjob"}).filePassword(); got != "mailjob-file-key" {
		t.Errorf("default filePassword() = %q", got)
	}
	if got := (KeyringConfig{ServiceName: "mailjob", FilePassword: "s3cret"}).filePassword(); got != "s3cret" {
		t.Errorf("configured filePassword() = %q", got)
	}
}
