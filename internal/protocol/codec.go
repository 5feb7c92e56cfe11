package protocol

import (
	"github.com/fxamacker/cbor/v2"
)

// ContentTypeCBOR selects the CBOR encoding of data exports.
const ContentTypeCBOR = "application/cbor"

// cborEnc uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// export always yields identical bytes. Enum types that implement
// encoding.TextMarshaler encode as their names.
var cborEnc cbor.EncMode

var cborDec cbor.DecMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	cborEnc, err = opts.EncMode()
	if err != nil {
		panic("protocol: cbor encoder: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{TextUnmarshaler: cbor.TextUnmarshalerTextString}.DecMode()
	if err != nil {
		panic("protocol: cbor decoder: " + err.Error())
	}
}

func MarshalCBOR(v any) ([]byte, error) { return cborEnc.Marshal(v) }

func UnmarshalCBOR(data []byte, v any) error { return cborDec.Unmarshal(data, v) }
