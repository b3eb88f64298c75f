package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"

	"github.com/golang-jwt/jwt"
)

// AuthService validates bearer credentials and resolves them to an
// approved, active user.
type AuthService struct {
	secretKey []byte
	issuer    string
	audience  string
	users     driven.UserDirectory
	now       func() time.Time
}

func NewAuthService(secretKey, issuer, audience string, users driven.UserDirectory) *AuthService {
	return &AuthService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		audience:  audience,
		users:     users,
		now:       time.Now,
	}
}

func (a *AuthService) Authenticate(ctx context.Context, tokenString string) (model.Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return model.Identity{}, myerrors.ErrMissingToken
	}

	userID, err := a.parse(tokenString)
	if err != nil {
		return model.Identity{}, err
	}

	user, err := a.users.User(ctx, userID)
	if err != nil {
		return model.Identity{}, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	if !user.IsApproved || !user.IsActive {
		return model.Identity{}, myerrors.ErrUserNotApproved
	}
	if !user.Role.Valid() {
		return model.Identity{}, fmt.Errorf("%w: unknown role %q", myerrors.ErrInvalidToken, user.Role)
	}

	return model.Identity{
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
	}, nil
}

func (a *AuthService) parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return "", myerrors.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", myerrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", myerrors.ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return "", fmt.Errorf("%w: no exp", myerrors.ErrInvalidToken)
	}
	if time.Unix(int64(exp), 0).Before(a.now()) {
		return "", myerrors.ErrTokenExpired
	}

	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", fmt.Errorf("%w: issuer mismatch", myerrors.ErrInvalidToken)
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return "", fmt.Errorf("%w: audience mismatch", myerrors.ErrInvalidToken)
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["id"].(string)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: user_id is required", myerrors.ErrInvalidToken)
	}
	return userID, nil
}

// IssueToken signs a credential for userID. The account system normally
// does this; the service uses it for development tokens and tests.
func (a *AuthService) IssueToken(userID string, role model.Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	if a.audience != "" {
		claims["aud"] = a.audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
