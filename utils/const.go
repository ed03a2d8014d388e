package utils

/*
BIP-44 path: m / purpose' / coin_type' / account' / change / address_index

	44'  purpose, BIP-44
	60'  coin type, Ethereum; the share ledger is EVM compatible
	0'   account
	0    external chain
	N    address index

Each wallet holds exactly one key at index 0.
*/
const (
	ETH_DERIVATION_PATH_PREFIX = "m/44'/60'/0'/0/"
	WALLET_DERIVATION_PATH     = ETH_DERIVATION_PATH_PREFIX + "0"
)

const (
	// LedgerDecimals is the number of minor-unit digits of the ledger's native coin.
	LedgerDecimals = 18

	BasisPointsDenominator = 10_000
)
