package approval

import (
	"encoding/hex"
)

// Identifier is a 32-byte opaque identity. It is used for relay block
// hashes, candidate hashes and peer identities alike; the network layer
// hands peers to this subsystem as identifiers, never as connection
// handles.
type Identifier [32]byte

// ZeroID is the lowest value in the Identifier space.
var ZeroID = Identifier{}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// HexStringToIdentifier converts a hex string to an Identifier. Returns
// an error if the hex string is not 64 characters of valid hex.
func HexStringToIdentifier(s string) (Identifier, error) {
	var id Identifier
	_, err := hex.Decode(id[:], []byte(s))
	return id, err
}
