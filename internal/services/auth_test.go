package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/casaviva/decora-backend/internal/requestdata"
	"github.com/casaviva/decora-backend/internal/types"
)

type fakeUserRepo struct {
	byEmail map[string]*types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*types.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		f.byEmail[u.Email] = u
	}
	return users, nil
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
	var out []*types.User
	for _, u := range f.byEmail {
		for _, id := range userIDs {
			if u.ID == id {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}

type fakeUserTokenRepo struct {
	byHash map[string]*types.UserToken
}

func newFakeUserTokenRepo() *fakeUserTokenRepo {
	return &fakeUserTokenRepo{byHash: make(map[string]*types.UserToken)}
}

func (f *fakeUserTokenRepo) Create(ctx context.Context, tx *gorm.DB, token *types.UserToken) (*types.UserToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	f.byHash[token.TokenHash] = token
	return token, nil
}

func (f *fakeUserTokenRepo) GetByHash(ctx context.Context, tx *gorm.DB, tokenHash string) (*types.UserToken, error) {
	if t, ok := f.byHash[tokenHash]; ok && !t.Revoked {
		return t, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserTokenRepo) RevokeByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	for _, t := range f.byHash {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (f *fakeUserTokenRepo) DeleteExpired(ctx context.Context, tx *gorm.DB) error {
	return nil
}

// authTestDB exists only so the service's transactions have something to
// run against; the fakes never touch it.
func authTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func newTestAuth(t *testing.T) (AuthService, *fakeUserRepo, *fakeUserTokenRepo) {
	t.Helper()
	users := newFakeUserRepo()
	tokens := newFakeUserTokenRepo()
	svc := NewAuthService(authTestDB(t), testLogger(t), users, tokens, "test-secret", time.Hour, 24*time.Hour)
	return svc, users, tokens
}

func registerTestUser(t *testing.T, svc AuthService, email, password string) {
	t.Helper()
	err := svc.RegisterUser(context.Background(), &types.User{
		Email:     email,
		Password:  password,
		FirstName: "Ana",
		LastName:  "Souza",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
}

func TestRegisterUserHashesPasswordAndNormalizesEmail(t *testing.T) {
	svc, users, _ := newTestAuth(t)
	err := svc.RegisterUser(context.Background(), &types.User{
		Email:     "  Ana@Example.COM ",
		Password:  "correct-horse",
		FirstName: "Ana",
		LastName:  "Souza",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	stored, ok := users.byEmail["ana@example.com"]
	if !ok {
		t.Fatalf("email not normalized: %v", users.byEmail)
	}
	if stored.Password == "correct-horse" {
		t.Fatalf("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("correct-horse")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestRegisterUserValidation(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, &types.User{Email: "not-an-email", Password: "long-enough"}); err == nil {
		t.Fatalf("expected rejection of malformed email")
	}
	if err := svc.RegisterUser(ctx, &types.User{Email: "a@b.com", Password: "short"}); err == nil {
		t.Fatalf("expected rejection of short password")
	}

	registerTestUser(t, svc, "a@b.com", "long-enough")
	if err := svc.RegisterUser(ctx, &types.User{Email: "a@b.com", Password: "long-enough"}); err == nil {
		t.Fatalf("expected rejection of duplicate email")
	}
}

func TestLoginIssuesVerifiableTokenPair(t *testing.T) {
	svc, users, tokens := newTestAuth(t)
	registerTestUser(t, svc, "ana@example.com", "correct-horse")

	access, refresh, err := svc.LoginUser(context.Background(), "Ana@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatalf("empty token pair")
	}

	ctx, err := svc.SetContextFromToken(context.Background(), access)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID != users.byEmail["ana@example.com"].ID {
		t.Fatalf("access token does not resolve to the user: %+v", rd)
	}

	// The refresh token is stored only as a hash.
	if _, ok := tokens.byHash[refresh]; ok {
		t.Fatalf("refresh token stored in plain text")
	}
	if _, ok := tokens.byHash[hashToken(refresh)]; !ok {
		t.Fatalf("hashed refresh token not stored")
	}
}

func TestLoginRejectsWrongCredentialsUniformly(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	registerTestUser(t, svc, "ana@example.com", "correct-horse")

	_, _, wrongPassword := svc.LoginUser(context.Background(), "ana@example.com", "wrong")
	_, _, unknownEmail := svc.LoginUser(context.Background(), "bob@example.com", "correct-horse")
	if wrongPassword == nil || unknownEmail == nil {
		t.Fatalf("expected login failures")
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("credential errors leak which part failed: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	registerTestUser(t, svc, "ana@example.com", "correct-horse")
	_, refresh, err := svc.LoginUser(context.Background(), "ana@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	access2, refresh2, err := svc.RefreshTokens(context.Background(), refresh)
	if err != nil {
		t.Fatalf("RefreshTokens: %v", err)
	}
	if access2 == "" || refresh2 == "" || refresh2 == refresh {
		t.Fatalf("rotation did not issue a fresh pair")
	}

	if _, _, err := svc.RefreshTokens(context.Background(), refresh); err == nil {
		t.Fatalf("old refresh token should be revoked after rotation")
	}
}

func TestSetContextFromTokenRejectsForgedToken(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	other := NewAuthService(authTestDB(t), testLogger(t), newFakeUserRepo(), newFakeUserTokenRepo(),
		"other-secret", time.Hour, 24*time.Hour)

	registerTestUser(t, other, "eve@example.com", "correct-horse")
	forged, _, err := other.LoginUser(context.Background(), "eve@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	if _, err := svc.SetContextFromToken(context.Background(), forged); err == nil {
		t.Fatalf("token signed with another secret should be rejected")
	}
}

func TestLogoutRequiresAuthenticatedContext(t *testing.T) {
	svc, _, tokens := newTestAuth(t)
	if err := svc.LogoutUser(context.Background()); err == nil {
		t.Fatalf("expected error without request data")
	}

	userID := uuid.New()
	tokens.byHash["h"] = &types.UserToken{ID: uuid.New(), UserID: userID, TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}
	ctx := requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: userID})
	if err := svc.LogoutUser(ctx); err != nil {
		t.Fatalf("LogoutUser: %v", err)
	}
	if !tokens.byHash["h"].Revoked {
		t.Fatalf("logout did not revoke the session")
	}
}
