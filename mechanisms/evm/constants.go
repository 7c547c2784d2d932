package evm

// NetworkPrefix is the CAIP-2 namespace used by every supported network
// identifier ("eip155:<chainId>").
const NetworkPrefix = "eip155:"

// EIP-712 type identifiers for the EIP-3009 authorization message.
const (
	EIP712DomainType              = "EIP712Domain"
	TransferWithAuthorizationType = "TransferWithAuthorization"
)

// Transaction outcome labels reported by TransactionStatus.
const (
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
	TxStatusPending = "pending"
)

// EIP3009ABI is the fragment of the ERC-20 ABI the settler needs:
// transferWithAuthorization to move funds and authorizationState to probe
// nonce consumption.
const EIP3009ABI = `[
  {
    "name": "transferWithAuthorization",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "from", "type": "address"},
      {"name": "to", "type": "address"},
      {"name": "value", "type": "uint256"},
      {"name": "validAfter", "type": "uint256"},
      {"name": "validBefore", "type": "uint256"},
      {"name": "nonce", "type": "bytes32"},
      {"name": "v", "type": "uint8"},
      {"name": "r", "type": "bytes32"},
      {"name": "s", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "name": "authorizationState",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      {"name": "authorizer", "type": "address"},
      {"name": "nonce", "type": "bytes32"}
    ],
    "outputs": [
      {"name": "", "type": "bool"}
    ]
  }
]`
