package engine

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// BuildTransfer constructs and signs a single-instruction native
// transfer of exactly lamports from the signer to dest.
func BuildTransfer(blockhash solana.Hash, signer solana.PrivateKey, dest solana.PublicKey, lamports uint64) (*solana.Transaction, error) {
	ix := system.NewTransferInstruction(lamports, signer.PublicKey(), dest).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("build transfer transaction: %w", err)
	}
	if err := signWith(tx, signer); err != nil {
		return nil, err
	}
	return tx, nil
}

// BuildFeeTransfer constructs and signs the fee-settlement transaction.
// With a referrer present it batches both transfer instructions so the
// split lands atomically; otherwise the platform takes the whole fee in
// a single instruction.
func BuildFeeTransfer(blockhash solana.Hash, signer solana.PrivateKey, platform solana.PublicKey, referrer *solana.PublicKey, split FeeSplit) (*solana.Transaction, error) {
	instructions := []solana.Instruction{
		system.NewTransferInstruction(split.PlatformLamports, signer.PublicKey(), platform).Build(),
	}
	if referrer != nil && split.ReferrerLamports > 0 {
		instructions = append(instructions,
			system.NewTransferInstruction(split.ReferrerLamports, signer.PublicKey(), *referrer).Build())
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("build fee transaction: %w", err)
	}
	if err := signWith(tx, signer); err != nil {
		return nil, err
	}
	return tx, nil
}

// SignSwap decodes a serialized swap transaction from the quoting
// service, stamps it with a fresh blockhash, and signs it in place.
// Decoding happens per attempt so each retry starts from the pristine
// quoted bytes.
func SignSwap(raw []byte, blockhash solana.Hash, signer solana.PrivateKey) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	tx.Message.RecentBlockhash = blockhash
	if err := signWith(tx, signer); err != nil {
		return nil, err
	}
	return tx, nil
}

func signWith(tx *solana.Transaction, signer solana.PrivateKey) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}
