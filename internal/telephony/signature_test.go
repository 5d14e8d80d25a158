package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"testing"
)

func TestValidateSignatureAcceptsCorrectlyComputedSignature(t *testing.T) {
	authToken := "secret-token"
	fullURL := "https://gateway.example.com/voice/incoming"
	form := url.Values{"CallSid": {"CA123"}, "From": {"+15550001111"}, "To": {"+15559998888"}}

	buf := []byte(fullURL)
	for _, k := range []string{"CallSid", "From", "To"} {
		buf = append(buf, k...)
		buf = append(buf, form.Get(k)...)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write(buf)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !ValidateSignature(authToken, fullURL, form, sig) {
		t.Fatal("expected matching signature to validate")
	}
}

func TestValidateSignatureRejectsTamperedForm(t *testing.T) {
	authToken := "secret-token"
	fullURL := "https://gateway.example.com/voice/incoming"
	form := url.Values{"CallSid": {"CA123"}}

	buf := []byte(fullURL)
	buf = append(buf, "CallSid"...)
	buf = append(buf, "CA123"...)
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write(buf)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	tampered := url.Values{"CallSid": {"CA999"}}
	if ValidateSignature(authToken, fullURL, tampered, sig) {
		t.Fatal("expected tampered form to fail validation")
	}
}

func TestValidateSignatureRejectsWrongToken(t *testing.T) {
	fullURL := "https://gateway.example.com/voice/incoming"
	form := url.Values{"CallSid": {"CA123"}}

	mac := hmac.New(sha1.New, []byte("right-token"))
	mac.Write(append([]byte(fullURL), []byte("CallSidCA123")...))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if ValidateSignature("wrong-token", fullURL, form, sig) {
		t.Fatal("expected wrong auth token to fail validation")
	}
}
