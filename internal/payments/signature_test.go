package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureRoundTrip(t *testing.T) {
	params := map[string]string{
		"transaction_id": "PAY-o1-card-1700000000-abc123",
		"status":         "success",
		"amount":         "150000",
	}
	sig := Sign(params, "secret")
	assert.True(t, VerifySignature(params, sig, "secret"))
}

func TestSignatureOrderIndependent(t *testing.T) {
	a := map[string]string{"b": "2", "a": "1", "c": "3"}
	b := map[string]string{"c": "3", "a": "1", "b": "2"}
	assert.Equal(t, Sign(a, "s"), Sign(b, "s"))
}

func TestSignatureIgnoresEmbeddedSignatureField(t *testing.T) {
	params := map[string]string{"status": "success"}
	sig := Sign(params, "secret")
	params["signature"] = sig
	assert.True(t, VerifySignature(params, sig, "secret"))
}

func TestSignatureMismatch(t *testing.T) {
	params := map[string]string{"status": "success"}
	sig := Sign(params, "secret")

	assert.False(t, VerifySignature(params, sig, "other-secret"))

	params["status"] = "failed"
	assert.False(t, VerifySignature(params, sig, "secret"), "tampered params must not verify")
}
