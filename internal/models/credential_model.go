package models

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Credential holds the OAuth tokens for one (account, platform) pair. Rows on
// disk carry ciphertext in the token columns; values handed out by the
// credential service carry plaintext.
type Credential struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	AccountID       int64      `gorm:"column:account_id;not null;uniqueIndex:idx_credentials_account_platform" json:"account_id"`
	Platform        Platform   `gorm:"column:platform;type:varchar(32);not null;uniqueIndex:idx_credentials_account_platform" json:"platform"`
	RemoteUserID    string     `gorm:"column:remote_user_id" json:"remote_user_id"`
	AccessToken     string     `gorm:"column:access_token;type:text" json:"-"`
	RefreshToken    string     `gorm:"column:refresh_token;type:text" json:"-"`
	AccessExpiresAt *time.Time `gorm:"column:access_expires_at;index" json:"access_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Credential) TableName() string { return "credentials" }

// Usable reports whether the credential can be used for publishing.
func (c *Credential) Usable() bool {
	return c != nil && c.AccessToken != ""
}

func (c *Credential) Expired(now time.Time) bool {
	return c.AccessExpiresAt != nil && !now.Before(*c.AccessExpiresAt)
}

// Key identifies the credential slot independent of its row id.
func (c *Credential) Key() CredentialKey {
	return CredentialKey{AccountID: c.AccountID, Platform: c.Platform}
}

// MarshalZerologObject logs the credential without its tokens.
func (c *Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("account_id", c.AccountID).
		Str("platform", string(c.Platform)).
		Str("remote_user_id", c.RemoteUserID).
		Bool("has_refresh_token", c.RefreshToken != "")
	if c.AccessExpiresAt != nil {
		e.Time("access_expires_at", *c.AccessExpiresAt)
	}
}

type CredentialKey struct {
	AccountID int64
	Platform  Platform
}

func (k CredentialKey) String() string {
	return "credential:" + string(k.Platform) + ":" + strconv.FormatInt(k.AccountID, 10)
}
