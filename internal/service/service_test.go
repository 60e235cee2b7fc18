package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

func newCredentialService(t *testing.T) (CredentialService, repository.CredentialRepository) {
	t.Helper()
	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "postflow.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { repository.Close(db) })
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	cipher, err := utils.NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	repo := repository.NewCredentialRepository(db)
	return NewCredentialService(repo, cipher), repo
}

func ptr(t time.Time) *time.Time { return &t }

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type fakeStrategy struct {
	p     models.Platform
	token string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *fakeStrategy) Platform() models.Platform { return s.p }

func (s *fakeStrategy) Refresh(_ context.Context, cred models.Credential, now time.Time) (models.Credential, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return cred, s.err
	}
	next := cred
	next.AccessToken = s.token
	next.AccessExpiresAt = ptr(now.Add(2 * time.Hour))
	return next, nil
}

type nopAdapter models.Platform

func (a nopAdapter) Platform() models.Platform { return models.Platform(a) }
func (a nopAdapter) Publish(context.Context, models.Credential, platform.Content) (platform.Result, error) {
	return platform.Result{}, nil
}

func registryWith(s *fakeStrategy) *platform.Registry {
	r := platform.NewRegistry()
	r.Register(nopAdapter(s.p), s)
	return r
}

func TestCredentialService_EncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	svc, repo := newCredentialService(t)

	cred := &models.Credential{AccountID: 7, Platform: models.PlatformX, AccessToken: "plain-access", RefreshToken: "plain-refresh"}
	if err := svc.Save(ctx, cred); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if cred.ID == 0 {
		t.Fatal("id not set")
	}

	row, _ := repo.Get(ctx, 7, models.PlatformX)
	if row.AccessToken == "plain-access" || !strings.Contains(row.AccessToken, ":") {
		t.Fatalf("access token stored in clear: %q", row.AccessToken)
	}

	got, err := svc.Get(ctx, 7, models.PlatformX)
	if err != nil || got == nil {
		t.Fatalf("Get: %v %v", got, err)
	}
	if got.AccessToken != "plain-access" || got.RefreshToken != "plain-refresh" {
		t.Fatalf("got=%+v", got)
	}

	missing, err := svc.Get(ctx, 8, models.PlatformX)
	if err != nil || missing != nil {
		t.Fatalf("missing credential: %v %v", missing, err)
	}
}

func TestCredentialService_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	svc, repo := newCredentialService(t)
	_ = svc.Save(ctx, &models.Credential{AccountID: 1, Platform: models.PlatformX, AccessToken: "a"})

	other, _ := utils.NewCipher("another-secret")
	if _, err := NewCredentialService(repo, other).Get(ctx, 1, models.PlatformX); err == nil {
		t.Fatal("decrypting with the wrong key must fail")
	}
}

func TestCredentialService_ListExpiring(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCredentialService(t)
	now := time.Now()

	_ = svc.Save(ctx, &models.Credential{AccountID: 1, Platform: models.PlatformX, AccessToken: "a", AccessExpiresAt: ptr(now.Add(5 * time.Minute))})
	_ = svc.Save(ctx, &models.Credential{AccountID: 2, Platform: models.PlatformX, AccessToken: "b", AccessExpiresAt: ptr(now.Add(5 * time.Hour))})
	_ = svc.Save(ctx, &models.Credential{AccountID: 3, Platform: models.PlatformX, AccessToken: "c", RefreshToken: "r"})

	got, err := svc.ListExpiring(ctx, now.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("ListExpiring: %v", err)
	}
	ids := map[int64]string{}
	for _, c := range got {
		ids[c.AccountID] = c.AccessToken
	}
	if len(ids) != 2 || ids[1] != "a" || ids[3] != "c" {
		t.Fatalf("ids=%v", ids)
	}
}

func TestRefreshService_NeedsRefresh(t *testing.T) {
	s := NewRefreshService(nil, platform.NewRegistry(), lock.NewLocal(), nil, 15*time.Minute)
	now := time.Now()
	tests := []struct {
		name string
		cred models.Credential
		want bool
	}{
		{"far expiry", models.Credential{AccessExpiresAt: ptr(now.Add(time.Hour))}, false},
		{"inside lookahead", models.Credential{AccessExpiresAt: ptr(now.Add(10 * time.Minute))}, true},
		{"already expired", models.Credential{AccessExpiresAt: ptr(now.Add(-time.Minute))}, true},
		{"unknown with refresh token", models.Credential{RefreshToken: "r"}, true},
		{"unknown without refresh token", models.Credential{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.NeedsRefresh(tt.cred, now); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestRefreshService_Ensure(t *testing.T) {
	ctx := context.Background()
	creds, _ := newCredentialService(t)
	strategy := &fakeStrategy{p: models.PlatformX, token: "fresh"}
	s := NewRefreshService(creds, registryWith(strategy), lock.NewLocal(), nil, 15*time.Minute)

	valid := models.Credential{AccountID: 1, Platform: models.PlatformX, AccessToken: "ok", AccessExpiresAt: ptr(time.Now().Add(time.Hour))}
	if got, err := s.Ensure(ctx, valid); err != nil || got.AccessToken != "ok" || strategy.calls.Load() != 0 {
		t.Fatalf("valid credential touched: %v %+v", err, got)
	}

	expiring := models.Credential{AccountID: 1, Platform: models.PlatformX, AccessToken: "old", RefreshToken: "r", AccessExpiresAt: ptr(time.Now().Add(time.Minute))}
	_ = creds.Save(ctx, &expiring)

	got, err := s.Ensure(ctx, expiring)
	if err != nil || got.AccessToken != "fresh" {
		t.Fatalf("Ensure: %v %+v", err, got)
	}
	stored, _ := creds.Get(ctx, 1, models.PlatformX)
	if stored.AccessToken != "fresh" {
		t.Fatalf("stored=%+v", stored)
	}

	// Ensure is idempotent once the credential is fresh.
	if _, err := s.Ensure(ctx, got); err != nil || strategy.calls.Load() != 1 {
		t.Fatalf("second Ensure: %v calls=%d", err, strategy.calls.Load())
	}
}

func TestRefreshService_ConcurrentEnsureRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	creds, _ := newCredentialService(t)
	strategy := &fakeStrategy{p: models.PlatformX, token: "fresh", delay: 20 * time.Millisecond}
	s := NewRefreshService(creds, registryWith(strategy), lock.NewLocal(), nil, 15*time.Minute)

	cred := models.Credential{AccountID: 3, Platform: models.PlatformX, AccessToken: "old", RefreshToken: "r", AccessExpiresAt: ptr(time.Now().Add(time.Minute))}
	_ = creds.Save(ctx, &cred)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Ensure(ctx, cred)
			if err != nil || got.AccessToken != "fresh" {
				t.Errorf("Ensure: %v %+v", err, got)
			}
		}()
	}
	wg.Wait()
	if strategy.calls.Load() != 1 {
		t.Fatalf("strategy ran %d times", strategy.calls.Load())
	}
}

func TestRefreshService_FailureRevokes(t *testing.T) {
	ctx := context.Background()
	creds, _ := newCredentialService(t)
	strategy := &fakeStrategy{p: models.PlatformX, err: errors.New("invalid_grant")}
	notifier := &recordingNotifier{}
	s := NewRefreshService(creds, registryWith(strategy), lock.NewLocal(), notifier, 15*time.Minute)

	cred := models.Credential{AccountID: 4, Platform: models.PlatformX, AccessToken: "old", RefreshToken: "r", AccessExpiresAt: ptr(time.Now().Add(-time.Minute))}
	_ = creds.Save(ctx, &cred)

	_, err := s.Ensure(ctx, cred)
	if !errors.Is(err, platform.ErrCredentialRevoked) {
		t.Fatalf("err=%v", err)
	}
	if stored, _ := creds.Get(ctx, 4, models.PlatformX); stored != nil {
		t.Fatal("revoked credential must be deleted")
	}
	if notifier.count() != 1 || !strings.Contains(notifier.messages[0], "invalid_grant") {
		t.Fatalf("messages=%v", notifier.messages)
	}
}

func TestRefreshService_PersistAndRevoke(t *testing.T) {
	ctx := context.Background()
	creds, _ := newCredentialService(t)
	notifier := &recordingNotifier{}
	s := NewRefreshService(creds, platform.NewRegistry(), lock.NewLocal(), notifier, 0)

	cred := models.Credential{AccountID: 5, Platform: models.PlatformLinkedIn, AccessToken: "t1"}
	if err := s.Persist(ctx, cred); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	cred.AccessToken = "t2"
	_ = s.Persist(ctx, cred)
	if got, _ := creds.Get(ctx, 5, models.PlatformLinkedIn); got.AccessToken != "t2" {
		t.Fatalf("got=%+v", got)
	}

	if err := s.Revoke(ctx, cred, "unauthorized"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if got, _ := creds.Get(ctx, 5, models.PlatformLinkedIn); got != nil || notifier.count() != 1 {
		t.Fatalf("got=%+v notifications=%d", got, notifier.count())
	}
}

func TestRefreshService_Sweep(t *testing.T) {
	ctx := context.Background()
	creds, _ := newCredentialService(t)
	strategy := &fakeStrategy{p: models.PlatformX, token: "fresh"}
	s := NewRefreshService(creds, registryWith(strategy), lock.NewLocal(), nil, 15*time.Minute)
	now := time.Now()

	_ = creds.Save(ctx, &models.Credential{AccountID: 1, Platform: models.PlatformX, AccessToken: "a", RefreshToken: "r", AccessExpiresAt: ptr(now.Add(time.Minute))})
	_ = creds.Save(ctx, &models.Credential{AccountID: 2, Platform: models.PlatformX, AccessToken: "b", RefreshToken: "r", AccessExpiresAt: ptr(now.Add(3 * time.Hour))})
	_ = creds.Save(ctx, &models.Credential{AccountID: 3, Platform: models.PlatformYouTube, AccessToken: "c", RefreshToken: "r"})

	res, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// YouTube has no strategy registered, so it is checked but left alone.
	if res.Checked != 2 || res.Refreshed != 1 || res.Revoked != 0 {
		t.Fatalf("res=%+v", res)
	}
	if got, _ := creds.Get(ctx, 2, models.PlatformX); got.AccessToken != "b" {
		t.Fatal("credential outside the window was refreshed")
	}
}

func TestRefreshService_RefreshStaleRotatesOnce(t *testing.T) {
	ctx := context.Background()
	creds, _ := newCredentialService(t)
	strategy := &fakeStrategy{p: models.PlatformX, token: "fresh", delay: 20 * time.Millisecond}
	s := NewRefreshService(creds, registryWith(strategy), lock.NewLocal(), nil, 15*time.Minute)

	stale := models.Credential{AccountID: 6, Platform: models.PlatformX, AccessToken: "old", RefreshToken: "r", AccessExpiresAt: ptr(time.Now().Add(time.Hour))}
	_ = creds.Save(ctx, &stale)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.RefreshStale(ctx, stale)
			if err != nil || got.AccessToken != "fresh" {
				t.Errorf("RefreshStale: %v %+v", err, got)
			}
		}()
	}
	wg.Wait()
	if strategy.calls.Load() != 1 {
		t.Fatalf("strategy ran %d times", strategy.calls.Load())
	}
	if stored, _ := creds.Get(ctx, 6, models.PlatformX); stored.AccessToken != "fresh" {
		t.Fatalf("stored=%+v", stored)
	}
}

func TestRefreshService_RefreshStaleFailureLeavesCredential(t *testing.T) {
	ctx := context.Background()
	creds, _ := newCredentialService(t)
	strategy := &fakeStrategy{p: models.PlatformX, err: errors.New("invalid_grant")}
	notifier := &recordingNotifier{}
	s := NewRefreshService(creds, registryWith(strategy), lock.NewLocal(), notifier, 15*time.Minute)

	stale := models.Credential{AccountID: 7, Platform: models.PlatformX, AccessToken: "old", RefreshToken: "r"}
	_ = creds.Save(ctx, &stale)

	if _, err := s.RefreshStale(ctx, stale); !errors.Is(err, platform.ErrCredentialRevoked) {
		t.Fatalf("err=%v", err)
	}
	if stored, _ := creds.Get(ctx, 7, models.PlatformX); stored == nil {
		t.Fatal("credential deleted before the caller decided to revoke it")
	}
	if notifier.count() != 0 {
		t.Fatalf("messages=%v", notifier.messages)
	}

	_ = creds.Delete(ctx, 7, models.PlatformX)
	if _, err := s.RefreshStale(ctx, stale); !errors.Is(err, platform.ErrMissingCredential) {
		t.Fatalf("missing credential: %v", err)
	}
}
