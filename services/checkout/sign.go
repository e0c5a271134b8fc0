package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer authenticates the invoice id carried in payment-intent metadata.
// Webhook settlement only trusts intents whose metadata carries a valid
// signature, so a tampered or foreign intent can never settle an invoice.
type Signer struct {
	Secret []byte
}

// Sign returns the hex HMAC-SHA256 of the invoice id.
func (s *Signer) Sign(invoiceID string) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(invoiceID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature for the invoice id.
func (s *Signer) Verify(invoiceID, sig string) bool {
	return hmac.Equal([]byte(s.Sign(invoiceID)), []byte(sig))
}
