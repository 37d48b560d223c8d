package commandset

// LOAD KEY P1 values for the three key-loading shapes.
const (
	loadKeyP1EC      = 0x01
	loadKeyP1ECChain = 0x02
	loadKeyP1Seed    = 0x03
)

// LOAD KEY TLV tags.
const (
	tlvOuter = 0xA1
	tlvPub   = 0x80
	tlvPriv  = 0x81
	tlvChain = 0x82
)

// stripLeadingZero removes a single leading 0x00 byte, the sign byte
// big.Int.Bytes() leaves on a private scalar whose top bit is set.
func stripLeadingZero(b []byte) []byte {
	if len(b) > 0 && b[0] == 0x00 {
		return b[1:]
	}
	return b
}

// buildSeedLoadKeyData builds the seed-form LOAD KEY payload: priv
// (leading 0x00 stripped) concatenated with chainCode.
func buildSeedLoadKeyData(priv, chainCode []byte) []byte {
	priv = stripLeadingZero(priv)
	out := make([]byte, 0, len(priv)+len(chainCode))
	out = append(out, priv...)
	out = append(out, chainCode...)
	return out
}

// buildECLoadKeyData builds the TLV-form LOAD KEY payload. pub and
// chainCode may each be nil. Returns the encoded data and the P1 value
// (0x02 if chainCode is present, else 0x01).
func buildECLoadKeyData(pub, priv, chainCode []byte) ([]byte, byte) {
	priv = stripLeadingZero(priv)

	var inner []byte
	if pub != nil {
		inner = append(inner, tlvField(tlvPub, pub)...)
	}
	inner = append(inner, tlvField(tlvPriv, priv)...)

	p1 := byte(loadKeyP1EC)
	if chainCode != nil {
		inner = append(inner, tlvField(tlvChain, chainCode)...)
		p1 = loadKeyP1ECChain
	}

	out := make([]byte, 0, len(inner)+4)
	out = append(out, tlvOuter)
	out = append(out, tlvLength(len(inner))...)
	out = append(out, inner...)
	return out, p1
}

func tlvField(tag byte, value []byte) []byte {
	out := make([]byte, 0, 2+len(value))
	out = append(out, tag, byte(len(value)))
	out = append(out, value...)
	return out
}

// tlvLength encodes a TLV length: a single byte if under 128, otherwise
// the extended form 0x81 followed by one length byte.
func tlvLength(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	return []byte{0x81, byte(n)}
}
