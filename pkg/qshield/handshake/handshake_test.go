package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qsign "github.com/qauthteam/qshield/pkg/qshield/sign"
)

func runHandshake(t *testing.T) (client, server interface {
	SessionID() [32]byte
}) {
	t.Helper()

	clientIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)
	serverIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)

	cs, hello, err := NewClient(clientIdentity)
	require.NoError(t, err)

	ss := NewServer(serverIdentity)
	serverHello, err := ss.ReceiveClientHello(hello)
	require.NoError(t, err)

	clientFinished, err := cs.ReceiveServerHello(serverHello)
	require.NoError(t, err)

	serverFinished, serverSession, err := ss.ReceiveClientFinished(clientFinished)
	require.NoError(t, err)

	clientSession, err := cs.ReceiveServerFinished(serverFinished)
	require.NoError(t, err)

	return clientSession, serverSession
}

func TestHandshake_CompletesWithMatchingSessionID(t *testing.T) {
	clientSession, serverSession := runHandshake(t)
	assert.Equal(t, serverSession.SessionID(), clientSession.SessionID())
}

func TestHandshake_TamperedServerHelloSignatureFails(t *testing.T) {
	clientIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)
	serverIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)

	cs, hello, err := NewClient(clientIdentity)
	require.NoError(t, err)

	ss := NewServer(serverIdentity)
	serverHello, err := ss.ReceiveClientHello(hello)
	require.NoError(t, err)

	serverHello.Sig.Lattice[0] ^= 0xFF

	_, err = cs.ReceiveServerHello(serverHello)
	assert.Error(t, err)
	assert.Equal(t, StateFailed, cs.state)
}

func TestHandshake_ForgedClientFinishedRejected(t *testing.T) {
	clientIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)
	serverIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)
	impostorIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)

	cs, hello, err := NewClient(clientIdentity)
	require.NoError(t, err)

	ss := NewServer(serverIdentity)
	serverHello, err := ss.ReceiveClientHello(hello)
	require.NoError(t, err)

	cf, err := cs.ReceiveServerHello(serverHello)
	require.NoError(t, err)

	// Forge a ClientFinished signed by a different identity than the
	// one announced in ClientHello; the server must reject it.
	forged := *cf
	forgedSig, err := qsign.Sign(impostorIdentity.Secret, []byte("wrong transcript"), nil)
	require.NoError(t, err)
	forged.Sig = forgedSig

	_, _, err = ss.ReceiveClientFinished(&forged)
	assert.Error(t, err)
	assert.Equal(t, StateFailed, ss.state)
}

func TestHandshake_OutOfOrderFlightRejected(t *testing.T) {
	clientIdentity, err := qsign.GenerateKeyPair()
	require.NoError(t, err)
	cs, _, err := NewClient(clientIdentity)
	require.NoError(t, err)

	// Calling ReceiveServerFinished before ReceiveServerHello violates
	// the fixed flight order and must fail terminally.
	_, err = cs.ReceiveServerFinished(&ServerFinished{Ciphertext: []byte("bogus")})
	assert.Error(t, err)
	assert.Equal(t, StateFailed, cs.state)
}
