// Command hwallet-demo exercises the secure channel and command set against
// an in-process simulated card, end to end: SELECT, pairing, opening the
// channel, and a protected command. It is a demonstration of the library's
// call sequence, not a general-purpose wallet CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/status-im/hardwallet-lite-sdk/commandset"
	"github.com/status-im/hardwallet-lite-sdk/primitives"
	"github.com/status-im/hardwallet-lite-sdk/securechannel"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	prim := primitives.NewDefault()

	card, cardPubKey, err := newSimulatedCard(prim, logger)
	if err != nil {
		logger.Error("start simulated card", "err", err)
		os.Exit(1)
	}

	session := securechannel.NewSession(prim, securechannel.WithLogger(logger))
	defer session.Close()
	cs := commandset.New(session, card, commandset.WithLogger(logger))
	ctx := context.Background()

	if err := session.IngestCardPublicKey(cardPubKey); err != nil {
		logger.Error("ingest card public key", "err", err)
		os.Exit(1)
	}

	pairingSecret := securechannel.DerivePairingSecret(prim, "WalletAppletTest")
	if err := session.AutoPair(ctx, card, pairingSecret); err != nil {
		logger.Error("pair", "err", err)
		os.Exit(1)
	}
	fmt.Printf("paired: index=%d\n", session.PairingIndex())

	if err := session.AutoOpenSecureChannel(ctx, card); err != nil {
		logger.Error("open secure channel", "err", err)
		os.Exit(1)
	}
	fmt.Println("secure channel open")

	resp, err := cs.VerifyPin(ctx, "123456")
	if err != nil {
		logger.Error("verify pin", "err", err)
		os.Exit(1)
	}
	fmt.Printf("verify pin: sw=0x%04x\n", resp.SW())
}
