package commandset

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

// GenerateMnemonicPhrase calls GENERATE MNEMONIC and maps the card's raw
// big-endian uint16 BIP39 wordlist indices onto the standard English
// wordlist, entirely host-side — the card only ever produces indices, it
// never sees or returns words.
func (cs *CommandSet) GenerateMnemonicPhrase(ctx context.Context, checksumLength byte) ([]string, error) {
	resp, err := cs.GenerateMnemonic(ctx, checksumLength)
	if err != nil {
		return nil, err
	}
	if !resp.IsOK() {
		return nil, errors.Errorf("commandset: generate mnemonic: sw=0x%04x", resp.SW())
	}
	if len(resp.Data)%2 != 0 {
		return nil, errors.Errorf("commandset: generate mnemonic: response length %d is not a multiple of 2", len(resp.Data))
	}

	wordlist := bip39.GetWordList()
	words := make([]string, len(resp.Data)/2)
	for i := range words {
		idx := binary.BigEndian.Uint16(resp.Data[2*i : 2*i+2])
		if int(idx) >= len(wordlist) {
			return nil, errors.Errorf("commandset: generate mnemonic: word index %d out of range", idx)
		}
		words[i] = wordlist[idx]
	}
	return words, nil
}
