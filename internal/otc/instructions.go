// ==============================================
// File: internal/otc/instructions.go
// ==============================================
package otc

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// SPL Token instruction codes shared by both program variants.
const tokenInstructionTransfer = 3

// buildTokenTransferInstruction moves raw token units between holding
// accounts. The program ID must be the variant that actually owns the
// source account; account order is fixed by the token program.
func buildTokenTransferInstruction(
	tokenProgram solana.PublicKey,
	source, destination, authority solana.PublicKey,
	rawAmount uint64,
) solana.Instruction {
	data := make([]byte, 9)
	data[0] = tokenInstructionTransfer
	binary.LittleEndian.PutUint64(data[1:], rawAmount)

	return solana.NewInstruction(
		tokenProgram,
		[]*solana.AccountMeta{
			solana.Meta(source).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(authority).SIGNER(),
		},
		data,
	)
}

// buildCreateHoldingAccountInstruction creates the owner's associated
// token account if it does not exist yet (create_idempotent). The rent
// payer bears the one-time cost.
func buildCreateHoldingAccountInstruction(
	payer, owner, mint, holdingAccount, tokenProgram solana.PublicKey,
) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		[]*solana.AccountMeta{
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(holdingAccount).WRITE(),
			solana.Meta(owner),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(tokenProgram),
		},
		[]byte{1}, // 1 = create_idempotent
	)
}
