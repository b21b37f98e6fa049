package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// 4-byte method selectors for the ERC-20 tokens, the price oracle, and the
// lending vault. Computed once from the canonical signatures.
var (
	selBalanceOf        = selector("balanceOf(address)")
	selAllowance        = selector("allowance(address,address)")
	selApprove          = selector("approve(address,uint256)")
	selPriceOf          = selector("priceOf(address)")
	selPositions        = selector("positions(address)")
	selDepositAndBorrow = selector("depositAndBorrow(uint256,uint256)")
	selRepay            = selector("repay(uint256)")
	selRepayAndWithdraw = selector("repayAndWithdraw(uint256,uint256)")
	selClosePosition    = selector("closePosition()")
)

func selector(signature string) []byte {
	return ethcrypto.Keccak256([]byte(signature))[:4]
}

// packCall concatenates a selector with 32-byte-aligned argument words.
func packCall(sel []byte, words ...[]byte) []byte {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, sel...)
	for _, w := range words {
		data = append(data, w...)
	}
	return data
}

// addrWord left-pads an address to a 32-byte ABI word.
func addrWord(addr string) []byte {
	return common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)
}

// amountWord encodes a uint256 amount as a 32-byte ABI word.
func amountWord(amount *big.Int) []byte {
	if amount == nil {
		amount = new(big.Int)
	}
	return common.LeftPadBytes(amount.Bytes(), 32)
}

// word extracts the i-th 32-byte word of a call result as an unsigned
// integer; missing words decode as zero.
func word(out []byte, i int) *big.Int {
	start := i * 32
	if len(out) < start+32 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(out[start : start+32])
}
