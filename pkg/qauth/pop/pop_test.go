package pop

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func TestRecord_CreateEncodeDecodeRoundTrip(t *testing.T) {
	_, priv := testClient(t)
	now := uint64(time.Now().UnixMilli())

	rec, err := Create(priv, now, "POST", "/api/resource", []byte("body"), []byte("token-bytes"))
	require.NoError(t, err)

	encoded := rec.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, rec.TimestampMs, decoded.TimestampMs)
	assert.Equal(t, rec.Nonce, decoded.Nonce)
	assert.Equal(t, rec.Method, decoded.Method)
	assert.Equal(t, rec.URI, decoded.URI)
	assert.Equal(t, rec.BodyHash, decoded.BodyHash)
	assert.Equal(t, rec.TokenHash, decoded.TokenHash)
	assert.Equal(t, rec.Signature, decoded.Signature)
}

func TestRecord_EncodeStringDecodeStringRoundTrip(t *testing.T) {
	_, priv := testClient(t)
	now := uint64(time.Now().UnixMilli())

	rec, err := Create(priv, now, "GET", "/api/resource", nil, []byte("token-bytes"))
	require.NoError(t, err)

	s := rec.EncodeString()
	decoded, err := DecodeString(s)
	require.NoError(t, err)
	assert.Equal(t, rec.Method, decoded.Method)
	assert.Equal(t, [32]byte{}, decoded.BodyHash, "nil body must hash to the zero value")
}

func TestValidator_AcceptsFreshValidProof(t *testing.T) {
	pub, priv := testClient(t)
	now := time.Now()

	rec, err := Create(priv, uint64(now.UnixMilli()), "POST", "/v1/do", []byte("payload"), []byte("tok"))
	require.NoError(t, err)

	v := NewValidator(pub, DefaultMaxAge)
	err = v.Validate(rec, "POST", "/v1/do", []byte("payload"), []byte("tok"), now)
	assert.NoError(t, err)
}

func TestValidator_RejectsExpiredProof(t *testing.T) {
	pub, priv := testClient(t)
	past := time.Now().Add(-10 * time.Minute)

	rec, err := Create(priv, uint64(past.UnixMilli()), "POST", "/v1/do", nil, []byte("tok"))
	require.NoError(t, err)

	v := NewValidator(pub, DefaultMaxAge)
	err = v.Validate(rec, "POST", "/v1/do", nil, []byte("tok"), time.Now())
	assert.Error(t, err)
}

func TestValidator_RejectsFutureProof(t *testing.T) {
	pub, priv := testClient(t)
	future := time.Now().Add(10 * time.Minute)

	rec, err := Create(priv, uint64(future.UnixMilli()), "POST", "/v1/do", nil, []byte("tok"))
	require.NoError(t, err)

	v := NewValidator(pub, DefaultMaxAge)
	err = v.Validate(rec, "POST", "/v1/do", nil, []byte("tok"), time.Now())
	assert.Error(t, err)
}

func TestValidator_RejectsReplayedNonce(t *testing.T) {
	pub, priv := testClient(t)
	now := time.Now()

	rec, err := Create(priv, uint64(now.UnixMilli()), "POST", "/v1/do", nil, []byte("tok"))
	require.NoError(t, err)

	v := NewValidator(pub, DefaultMaxAge)
	require.NoError(t, v.Validate(rec, "POST", "/v1/do", nil, []byte("tok"), now))
	err = v.Validate(rec, "POST", "/v1/do", nil, []byte("tok"), now)
	assert.Error(t, err, "replaying the same nonce inside the window must be rejected")
}

func TestValidator_RejectsTamperedFields(t *testing.T) {
	pub, priv := testClient(t)
	now := time.Now()

	cases := map[string]func(*Record){
		"method": func(r *Record) { r.Method = "DELETE" },
		"uri":    func(r *Record) { r.URI = "/v1/other" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := Create(priv, uint64(now.UnixMilli()), "POST", "/v1/do", []byte("body"), []byte("tok"))
			require.NoError(t, err)
			mutate(rec)

			v := NewValidator(pub, DefaultMaxAge)
			err = v.Validate(rec, "POST", "/v1/do", []byte("body"), []byte("tok"), now)
			assert.Error(t, err)
		})
	}

	t.Run("observed body differs", func(t *testing.T) {
		rec, err := Create(priv, uint64(now.UnixMilli()), "POST", "/v1/do", []byte("body"), []byte("tok"))
		require.NoError(t, err)

		v := NewValidator(pub, DefaultMaxAge)
		err = v.Validate(rec, "POST", "/v1/do", []byte("different body"), []byte("tok"), now)
		assert.Error(t, err)
	})

	t.Run("observed token differs", func(t *testing.T) {
		rec, err := Create(priv, uint64(now.UnixMilli()), "POST", "/v1/do", []byte("body"), []byte("tok"))
		require.NoError(t, err)

		v := NewValidator(pub, DefaultMaxAge)
		err = v.Validate(rec, "POST", "/v1/do", []byte("body"), []byte("different-tok"), now)
		assert.Error(t, err)
	})

	t.Run("tampered signature", func(t *testing.T) {
		rec, err := Create(priv, uint64(now.UnixMilli()), "POST", "/v1/do", []byte("body"), []byte("tok"))
		require.NoError(t, err)
		rec.Signature[0] ^= 0xFF

		v := NewValidator(pub, DefaultMaxAge)
		err = v.Validate(rec, "POST", "/v1/do", []byte("body"), []byte("tok"), now)
		assert.Error(t, err)
	})
}

func TestValidator_WrongKeyRejected(t *testing.T) {
	_, priv := testClient(t)
	otherPub, _ := testClient(t)
	now := time.Now()

	rec, err := Create(priv, uint64(now.UnixMilli()), "POST", "/v1/do", nil, []byte("tok"))
	require.NoError(t, err)

	v := NewValidator(otherPub, DefaultMaxAge)
	err = v.Validate(rec, "POST", "/v1/do", nil, []byte("tok"), now)
	assert.Error(t, err)
}
