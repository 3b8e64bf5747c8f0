package accessory

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Canonical ordering keeps identical contexts byte-identical, and nil
	// slices stay nil so a decoded device equals the one that was stored.
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// EncodeContext serializes a context blob.
func EncodeContext(c Context) ([]byte, error) {
	data, err := encMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrContextCodec, err)
	}
	return data, nil
}

// DecodeContext parses a context blob produced by EncodeContext.
func DecodeContext(data []byte) (Context, error) {
	var c Context
	if err := decMode.Unmarshal(data, &c); err != nil {
		return Context{}, fmt.Errorf("%w: decode: %w", ErrContextCodec, err)
	}
	return c, nil
}
