package state

import (
	"encoding/hex"
	"strconv"
)

var (
	ordersContractKeyBytes = []byte("orders/contract")
	orderKeyPrefix         = "orders/order/"
	orderDetailsKeyPrefix  = "orders/details/"
	accountNonceKeyPrefix  = "accounts/nonce/"
	tokenAddressKeyPrefix  = "tokens/address/"
)

// OrdersContractKey locates the singleton holding owner, counter and asset.
func OrdersContractKey() []byte {
	return append([]byte(nil), ordersContractKeyBytes...)
}

// OrderKey locates the financial record of an order.
func OrderKey(id uint64) []byte {
	return []byte(orderKeyPrefix + strconv.FormatUint(id, 10))
}

// OrderDetailsKey locates the line items of an order.
func OrderDetailsKey(id uint64) []byte {
	return []byte(orderDetailsKeyPrefix + strconv.FormatUint(id, 10))
}

// AccountNonceKey locates the last consumed authorization nonce of addr.
func AccountNonceKey(addr []byte) []byte {
	return []byte(accountNonceKeyPrefix + hex.EncodeToString(addr))
}

// TokenAddressKey locates the symbol registered for an asset address.
func TokenAddressKey(addr []byte) []byte {
	return []byte(tokenAddressKeyPrefix + hex.EncodeToString(addr))
}
