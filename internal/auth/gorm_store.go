package auth

import (
	"context"
	"time"

	"github.com/go-oauth2/oauth2/v4"
	"github.com/go-oauth2/oauth2/v4/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	internalmodels "github.com/marketplacekit/ghl-adapter/internal/models"
)

// refreshTokenLifetime mirrors the manager's default refresh expiry so
// rehydrated tokens keep the same window.
const refreshTokenLifetime = 72 * time.Hour

// GormClientStore resolves external-auth clients from the database.
type GormClientStore struct {
	db *gorm.DB
}

func NewGormClientStore(db *gorm.DB) *GormClientStore {
	return &GormClientStore{db: db}
}

// bcryptClient makes the OAuth2 manager compare posted secrets against the
// stored bcrypt hash instead of doing a plain string comparison.
type bcryptClient struct {
	models.Client
}

func (c *bcryptClient) VerifyPassword(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(secret)) == nil
}

func (s *GormClientStore) GetByID(ctx context.Context, id string) (oauth2.ClientInfo, error) {
	var client internalmodels.OAuthClient
	if err := s.db.Where("id = ?", id).First(&client).Error; err != nil {
		return nil, err
	}

	return &bcryptClient{Client: models.Client{
		ID:     client.ID,
		Secret: client.Secret,
		Domain: client.Domain,
	}}, nil
}

// GormTokenStore persists external-auth codes and token pairs.
type GormTokenStore struct {
	db *gorm.DB
}

func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

func (s *GormTokenStore) Create(ctx context.Context, info oauth2.TokenInfo) error {
	if info.GetCode() != "" {
		code := &internalmodels.OAuthCode{
			Code:        info.GetCode(),
			ClientID:    info.GetClientID(),
			UserID:      info.GetUserID(),
			Scopes:      info.GetScope(),
			RedirectURI: info.GetRedirectURI(),
			ExpiresAt:   info.GetCodeCreateAt().Add(info.GetCodeExpiresIn()),
		}
		return s.db.Create(code).Error
	}

	refreshToken := info.GetRefresh()
	token := &internalmodels.OAuthToken{
		ClientID:     info.GetClientID(),
		UserID:       info.GetUserID(),
		AccessToken:  info.GetAccess(),
		RefreshToken: &refreshToken,
		Scopes:       info.GetScope(),
		ExpiresAt:    time.Now().Add(info.GetAccessExpiresIn()),
	}
	return s.db.Create(token).Error
}

func (s *GormTokenStore) RemoveByAccess(ctx context.Context, access string) error {
	return s.db.Where("access_token = ?", access).Delete(&internalmodels.OAuthToken{}).Error
}

func (s *GormTokenStore) RemoveByRefresh(ctx context.Context, refresh string) error {
	return s.db.Where("refresh_token = ?", refresh).Delete(&internalmodels.OAuthToken{}).Error
}

func (s *GormTokenStore) GetByAccess(ctx context.Context, access string) (oauth2.TokenInfo, error) {
	var token internalmodels.OAuthToken
	if err := s.db.Where("access_token = ?", access).First(&token).Error; err != nil {
		return nil, err
	}
	return tokenInfo(&token), nil
}

func (s *GormTokenStore) GetByRefresh(ctx context.Context, refresh string) (oauth2.TokenInfo, error) {
	var token internalmodels.OAuthToken
	if err := s.db.Where("refresh_token = ?", refresh).First(&token).Error; err != nil {
		return nil, err
	}
	return tokenInfo(&token), nil
}

func (s *GormTokenStore) GetByCode(ctx context.Context, code string) (oauth2.TokenInfo, error) {
	var oauthCode internalmodels.OAuthCode
	if err := s.db.Where("code = ?", code).First(&oauthCode).Error; err != nil {
		return nil, err
	}

	// Check if the code has expired
	if time.Now().After(oauthCode.ExpiresAt) {
		return nil, gorm.ErrRecordNotFound
	}

	// RedirectURI is left empty on purpose: the handler validates the
	// redirect before minting the code, and the platform does not always
	// repeat it on the token request.
	return &models.Token{
		ClientID:      oauthCode.ClientID,
		UserID:        oauthCode.UserID,
		Code:          oauthCode.Code,
		CodeCreateAt:  oauthCode.CreatedAt,
		CodeExpiresIn: oauthCode.ExpiresAt.Sub(oauthCode.CreatedAt),
		Scope:         oauthCode.Scopes,
	}, nil
}

func (s *GormTokenStore) RemoveByCode(ctx context.Context, code string) error {
	return s.db.Where("code = ?", code).Delete(&internalmodels.OAuthCode{}).Error
}

func tokenInfo(token *internalmodels.OAuthToken) oauth2.TokenInfo {
	info := &models.Token{
		ClientID:        token.ClientID,
		UserID:          token.UserID,
		Access:          token.AccessToken,
		AccessCreateAt:  token.CreatedAt,
		AccessExpiresIn: token.ExpiresAt.Sub(token.CreatedAt),
		Scope:           token.Scopes,
	}
	if token.RefreshToken != nil {
		info.Refresh = *token.RefreshToken
		info.RefreshCreateAt = token.CreatedAt
		info.RefreshExpiresIn = refreshTokenLifetime
	}
	return info
}
