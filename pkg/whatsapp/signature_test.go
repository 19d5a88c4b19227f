package whatsapp

import "testing"

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)

	header := ComputeSignature(secret, body)
	if !VerifySignature(secret, body, header) {
		t.Fatal("signature computed from the same secret and body should verify")
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"entry":[]}`)
	header := ComputeSignature(secret, body)

	cases := []struct {
		name   string
		secret string
		body   []byte
		header string
	}{
		{"wrong secret", "other-secret", body, header},
		{"tampered body", secret, []byte(`{"entry":[{}]}`), header},
		{"missing header", secret, body, ""},
		{"missing secret", "", body, header},
		{"missing prefix", secret, body, header[len("sha256="):]},
		{"not hex", secret, body, "sha256=zzzz"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(tc.secret, tc.body, tc.header) {
				t.Fatal("VerifySignature should reject")
			}
		})
	}
}

func TestVerifyChallenge(t *testing.T) {
	if !VerifyChallenge("subscribe", "token-123", "token-123") {
		t.Fatal("matching subscribe challenge should pass")
	}
	if VerifyChallenge("unsubscribe", "token-123", "token-123") {
		t.Fatal("non-subscribe mode should fail")
	}
	if VerifyChallenge("subscribe", "wrong", "token-123") {
		t.Fatal("wrong token should fail")
	}
	if VerifyChallenge("subscribe", "", "") {
		t.Fatal("unconfigured verify token should fail")
	}
}
