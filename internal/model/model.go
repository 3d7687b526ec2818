// Package model holds the gorm-mapped records backing the AuthService: who
// holds which API key, and which projects they may act on. Everything the
// host panel modeled beyond that (Host/Upstream/Route/CustomHeader/
// AccessRule and the rest of its reverse-proxy configuration schema) has no
// equivalent here — routing state lives in-memory in internal/router, not
// in the database.
package model

import "time"

// User is one bearer-API-key holder.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"uniqueIndex;not null;size:64" json:"username"`
	APIKeyHash string    `gorm:"not null" json:"-"` // bcrypt hash, never exposed in JSON
	CreatedAt  time.Time `json:"created_at"`
}

// ProjectGrant records that Username may deploy to and manage Project.
type ProjectGrant struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"index:idx_user_project,unique;size:64" json:"username"`
	Project  string `gorm:"index:idx_user_project,unique;size:64" json:"project"`
}
