package entity

import (
	"time"
)

type Wallet struct {
	ID             string             `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	Address        string             `bson:"address" json:"address"`
	DerivationPath string             `bson:"derivation_path" json:"derivation_path"`
	Envelope       CredentialEnvelope `bson:"envelope" json:"-"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	DeletedAt      *time.Time         `bson:"deleted_at,omitempty" json:"-"`
}
