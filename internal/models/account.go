package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"phishguard/internal/docstore"
)

const AccountsCollection = "accounts"

// Account is a registered email/password identity.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a Account) ToDocument() map[string]any {
	return map[string]any{
		"uid":          a.ID,
		"email":        a.Email,
		"displayName":  a.DisplayName,
		"passwordHash": a.PasswordHash,
		"createdAt":    docstore.ServerTimestamp,
	}
}

// AccountFromDocument reads an account keyed by its lowercased email.
func AccountFromDocument(doc docstore.Document) Account {
	d := doc.Data
	return Account{
		ID:           stringField(d, "uid", ""),
		Email:        stringField(d, "email", doc.ID),
		DisplayName:  stringField(d, "displayName", ""),
		PasswordHash: stringField(d, "passwordHash", ""),
		CreatedAt:    timeField(d, "createdAt", doc.CreatedAt),
	}
}

// Claims defines the structure of the JWT claims.
type Claims struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	Anonymous   bool   `json:"anonymous,omitempty"`
	jwt.RegisteredClaims
}
