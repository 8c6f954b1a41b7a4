package service

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vchernov/bank-cards/internal/models"
	"github.com/vchernov/bank-cards/internal/token"
)

const minPasswordLength = 8

// AuthService owns the token lifecycle: issuance, rotation and
// revocation of signed session credentials backed by the ledger.
type AuthService struct {
	users  UserStore
	tokens TokenStore
	jwt    *token.Manager
	log    *logrus.Logger
	mailer Notifier
	now    func() time.Time
}

// NewAuthService initializes a new auth service. mailer may be nil.
func NewAuthService(users UserStore, tokens TokenStore, jwt *token.Manager, log *logrus.Logger, mailer Notifier) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		jwt:    jwt,
		log:    log,
		mailer: mailer,
		now:    time.Now,
	}
}

// Register creates a user with a hashed password and the default role,
// then issues and persists a credential pair.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, goerrors.New("username and email are required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if len(password) < minPasswordLength {
		return nil, goerrors.New("password must be at least 8 characters", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if exists, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if exists {
		return nil, goerrors.New("email already exists", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	if exists, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	} else if exists {
		return nil, goerrors.New("username already exists", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password").
			WithCode(goerrors.CodeInternal)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		Roles:        []models.Role{models.RoleUser},
		Active:       true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	access, refresh, rows, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	// No prior sessions exist for a brand-new user, so a plain append
	// suffices here; authenticate and refresh go through rotation.
	if err := s.tokens.SaveTokens(ctx, rows...); err != nil {
		return nil, err
	}

	if s.mailer != nil {
		go s.mailer.SendWelcome(user.Email, user.Username)
	}
	s.log.Infof("User registered: %s", user.Email)
	return &AuthResponse{AccessToken: access, RefreshToken: refresh, User: toUserSummary(user)}, nil
}

// Authenticate verifies credentials, revokes every live token the user
// holds and issues a fresh pair. Each successful login invalidates all
// prior sessions.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthResponse, error) {
	user, err := s.users.UserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, errInvalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials()
	}
	if !user.Active {
		return nil, goerrors.New("user account is blocked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	access, refresh, rows, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RotateTokens(ctx, user.ID, "", rows...); err != nil {
		return nil, err
	}

	s.log.Infof("User logged in: %s", user.Email)
	return &AuthResponse{AccessToken: access, RefreshToken: refresh, User: toUserSummary(user)}, nil
}

// Refresh redeems a refresh credential presented in the Authorization
// header and rotates the pair. The presented token must be signature-
// valid, carry the refresh discriminator, and still be live in the
// ledger; rotation re-checks the row under lock so a raced refresh
// cannot redeem it twice.
func (s *AuthService) Refresh(ctx context.Context, authHeader string) (*AuthResponse, error) {
	raw, err := bearerToken(authHeader)
	if err != nil {
		return nil, err
	}
	claims, err := s.jwt.Parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != token.TypRefresh {
		return nil, goerrors.New("invalid token type for refresh", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	user, err := s.users.UserByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, errInvalidCredentials()
	}
	if !user.Active {
		return nil, goerrors.New("user account is blocked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	stored, err := s.tokens.TokenByValue(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !stored.Live() {
		return nil, goerrors.New("refresh token is not valid or has been revoked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	access, refresh, rows, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RotateTokens(ctx, user.ID, raw, rows...); err != nil {
		return nil, err
	}

	s.log.Infof("Tokens rotated for user: %s", user.Email)
	return &AuthResponse{AccessToken: access, RefreshToken: refresh, User: toUserSummary(user)}, nil
}

// Logout revokes the ledger row of the presented access token.
func (s *AuthService) Logout(ctx context.Context, authHeader string) error {
	raw, err := bearerToken(authHeader)
	if err != nil {
		return err
	}
	if err := s.tokens.RevokeToken(ctx, raw); err != nil {
		return err
	}
	s.log.Info("Session logged out")
	return nil
}

// ValidateAccess checks an access credential for the request authenticator:
// signature, access discriminator, ledger row still live, user active.
// A revoked row rejects the token regardless of its embedded expiry.
func (s *AuthService) ValidateAccess(ctx context.Context, raw string) (*models.User, error) {
	claims, err := s.jwt.Parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != token.TypAccess {
		return nil, goerrors.New("token is not an access token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	stored, err := s.tokens.TokenByValue(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !stored.Live() {
		return nil, goerrors.New("access token has been revoked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	user, err := s.users.UserByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, errInvalidCredentials()
	}
	if !user.Active {
		return nil, goerrors.New("user account is blocked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}
	return user, nil
}

// ExpireTokens materializes the expired flag on ledger rows whose
// embedded expiry has passed. Used by the scheduler.
func (s *AuthService) ExpireTokens(ctx context.Context) (int64, error) {
	return s.tokens.ExpireTokens(ctx, s.now())
}

// issuePair mints an access and a refresh credential for the user and
// builds their ledger rows.
func (s *AuthService) issuePair(user *models.User) (string, string, []*models.Token, error) {
	now := s.now()
	access, accessExp, err := s.jwt.AccessToken(user.Email, now)
	if err != nil {
		return "", "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue access token").
			WithCode(goerrors.CodeInternal)
	}
	refresh, refreshExp, err := s.jwt.RefreshToken(user.Email, now)
	if err != nil {
		return "", "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue refresh token").
			WithCode(goerrors.CodeInternal)
	}
	rows := []*models.Token{
		{UserID: user.ID, Token: access, TokenType: models.TokenTypeAccess, ExpiresAt: accessExp},
		{UserID: user.ID, Token: refresh, TokenType: models.TokenTypeRefresh, ExpiresAt: refreshExp},
	}
	return access, refresh, rows, nil
}

func bearerToken(authHeader string) (string, error) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", goerrors.New("missing or invalid Authorization header", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}
	return strings.TrimPrefix(authHeader, "Bearer "), nil
}

func errInvalidCredentials() error {
	return goerrors.New("invalid credentials", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
}
