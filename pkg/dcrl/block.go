package dcrl

// CertificateRevocation states that Certificate is no longer valid.
// AuthorityCertificateHash names the authority that issued the revocation.
type CertificateRevocation struct {
	Certificate              Certificate `json:"certificate"`
	AuthorityCertificateHash []byte      `json:"authority_certificate_hash,omitempty"`
	Timestamp                int64       `json:"timestamp"`
}

// Block is a single chain entry. MerkleRoot always equals the merkle root of
// Revocations; blocks are built through chain.NewBlock.
type Block struct {
	Certificate   Certificate             `json:"certificate"`
	Height        int64                   `json:"height"`
	PreviousBlock []byte                  `json:"previous_block"`
	Timestamp     int64                   `json:"timestamp"`
	MerkleRoot    []byte                  `json:"merkle_root"`
	Revocations   []CertificateRevocation `json:"revocations"`
}
