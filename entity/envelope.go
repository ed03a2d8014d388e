package entity

// CredentialEnvelope is the at-rest form of a wallet signing key.
// Ciphertext and AuthTag are the two halves of an AES-256-GCM seal.
type CredentialEnvelope struct {
	KDF        string `bson:"kdf" json:"kdf"`
	Iterations int    `bson:"iterations" json:"iterations"`
	Salt       []byte `bson:"salt" json:"-"`
	IV         []byte `bson:"iv" json:"-"`
	AuthTag    []byte `bson:"auth_tag" json:"-"`
	Ciphertext []byte `bson:"ciphertext" json:"-"`
}
