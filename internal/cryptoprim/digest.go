package cryptoprim

import "crypto/sha1"

// SHA1Size is the digest size used for subkey derivation (spec §3/§4.2).
const SHA1Size = sha1.Size

// SHA1Sum computes a plain (non-HMAC) SHA-1 digest, used only for deriving
// the two process-wide subkeys from the shared key file.
func SHA1Sum(data ...[]byte) []byte {
	h := sha1.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
