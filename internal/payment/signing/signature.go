package signing

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"

	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/domain"
)

// Signer computes and checks the gateway's keyed parameter digest. The
// passphrase is the merchant's shared secret; when unset it is omitted
// from the digest input entirely, not appended as an empty parameter.
type Signer struct {
	passphrase string
}

func NewSigner(passphrase string) *Signer {
	return &Signer{passphrase: passphrase}
}

// Sign returns the lowercase hex MD5 of the canonical encoding of params,
// with the passphrase suffixed per the gateway convention when configured.
func (s *Signer) Sign(params map[string]string) string {
	input := Canonical(params)
	if s.passphrase != "" {
		input += "&passphrase=" + escape(s.passphrase)
	}
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest over the exact received field set minus the
// signature field itself and compares it to the claimed value. Extra
// gateway-added fields participate; a field-set mismatch is a failed
// verification, never a crash.
func (s *Signer) Verify(params map[string]string, claimed string) bool {
	if claimed == "" {
		return false
	}
	rest := make(map[string]string, len(params))
	for k, v := range params {
		if k == domain.FieldSignature {
			continue
		}
		rest[k] = v
	}
	want := s.Sign(rest)
	return subtle.ConstantTimeCompare([]byte(want), []byte(claimed)) == 1
}
