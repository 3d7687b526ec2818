// Package authsvc implements the AuthService external interface: issuing
// and verifying the bearer API keys that gate every management endpoint,
// plus the admin bootstrap token. It is grounded on internal/auth/auth.go's
// bcrypt usage, adapted from session/JWT issuance to opaque per-user API
// keys — the single bearer credential the client-facing API contracts
// describe, closer to the teacher's own ApiKey-guard heritage than to its
// JWT middleware.
package authsvc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/web-casa/shuttlectl/internal/apierr"
	"github.com/web-casa/shuttlectl/internal/model"
)

// Service is the gorm+sqlite-backed AuthService.
type Service struct {
	db         *gorm.DB
	adminToken string
}

// Open migrates and returns a Service backed by the sqlite file at path.
// adminToken is the operator-configured bootstrap credential that is
// always treated as an admin, independent of the User table (so the very
// first user can be created without one already existing).
func Open(path, adminToken string) (*Service, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.ProjectGrant{}); err != nil {
		return nil, err
	}
	return &Service{db: db, adminToken: adminToken}, nil
}

// CreateUser creates username with a freshly generated API key, returning
// the key in plaintext exactly once — only its bcrypt hash is persisted.
func (s *Service) CreateUser(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apierr.BadRequest("username required")
	}
	if username == "admin" {
		return "", apierr.Conflict("username is reserved")
	}

	key := genKey()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	u := model.User{Username: username, APIKeyHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return "", apierr.Conflict("user already exists")
	}
	return key, nil
}

// Authenticate resolves a bearer token to a username, accepting either the
// configured admin token (mapped to the reserved "admin" identity with
// implicit access to every project) or a user's API key.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apierr.Unauthorized("missing credentials")
	}
	if s.adminToken != "" && token == s.adminToken {
		return "admin", nil
	}

	var users []model.User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return "", err
	}
	for _, u := range users {
		if bcrypt.CompareHashAndPassword([]byte(u.APIKeyHash), []byte(token)) == nil {
			return u.Username, nil
		}
	}
	return "", apierr.Unauthorized("invalid credentials")
}

// Authorize reports whether username may act on project: the admin
// identity may act on anything, everyone else needs an explicit grant.
func (s *Service) Authorize(ctx context.Context, username, project string) error {
	if username == "admin" {
		return nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.ProjectGrant{}).
		Where("username = ? AND project = ?", username, project).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apierr.Unauthorized("not authorized for project")
	}
	return nil
}

// Grant records that username may act on project. It also implicitly
// creates the grant the first time a user deploys a new project name.
func (s *Service) Grant(ctx context.Context, username, project string) error {
	g := model.ProjectGrant{Username: username, Project: project}
	return s.db.WithContext(ctx).
		Where(g).
		FirstOrCreate(&g).Error
}

func genKey() string {
	b := make([]byte, 24)
	rand.Read(b)
	return hex.EncodeToString(b)
}
