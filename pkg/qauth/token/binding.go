package token

import "github.com/qauthteam/qshield/pkg/qshield/primitives"

// BindingSize is the fixed on-wire size of a Binding: three
// 32-byte hashes concatenated.
const BindingSize = 32 * 3

// Binding pins a token to a client key, a device key, and a salted IP.
// Each field is 32 zero bytes when that half of the binding is
// disabled.
type Binding struct {
	DeviceKeyHash [32]byte
	ClientKeyHash [32]byte
	IPHash        [32]byte
}

// ComputeClientKeyHash hashes a client public key for binding.
func ComputeClientKeyHash(pub []byte) [32]byte { return primitives.Hash256(pub) }

// ComputeDeviceKeyHash hashes a device public key for binding.
func ComputeDeviceKeyHash(pub []byte) [32]byte { return primitives.Hash256(pub) }

// ComputeIPHash hashes a salted client IP for binding. Pass a
// nil salt and empty ip to obtain the disabled (all-zero) value.
func ComputeIPHash(salt, ip []byte) [32]byte {
	if len(ip) == 0 {
		return [32]byte{}
	}
	return primitives.Hash256(salt, ip)
}

func (b Binding) Encode() []byte {
	out := make([]byte, 0, BindingSize)
	out = append(out, b.DeviceKeyHash[:]...)
	out = append(out, b.ClientKeyHash[:]...)
	out = append(out, b.IPHash[:]...)
	return out
}

func DecodeBinding(buf []byte) Binding {
	var b Binding
	copy(b.DeviceKeyHash[:], buf[0:32])
	copy(b.ClientKeyHash[:], buf[32:64])
	copy(b.IPHash[:], buf[64:96])
	return b
}
