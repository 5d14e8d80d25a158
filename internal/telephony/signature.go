package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// ValidateSignature implements the provider's request-signature scheme: the
// full request URL with every form parameter's key and value appended in
// sorted-key order, HMAC-SHA1'd with the account auth token and
// base64-encoded, compared against the signature header. Skipped entirely
// by the caller when no auth token is configured for the call.
func ValidateSignature(authToken, fullURL string, form url.Values, signature string) bool {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte(fullURL)
	for _, k := range keys {
		buf = append(buf, k...)
		buf = append(buf, form.Get(k)...)
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write(buf)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
