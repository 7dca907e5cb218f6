package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Native token placeholders used by aggregators.
const (
	NativeTokenZero = "0x0000000000000000000000000000000000000000"
	NativeTokenEeee = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
)

// LooksLikeEvmAddress reports whether the value is meant as a hex address.
func LooksLikeEvmAddress(address string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(address)), "0x")
}

// IsEvmAddress checks a 0x-prefixed 20-byte hex address.
func IsEvmAddress(address string) bool {
	address = strings.TrimSpace(address)
	return LooksLikeEvmAddress(address) && common.IsHexAddress(address)
}

// IsNativeToken reports whether the address is one of the native token placeholders.
func IsNativeToken(address string) bool {
	switch NormalizeToken(address) {
	case NativeTokenZero, NativeTokenEeee:
		return true
	}
	return false
}

// NormalizeToken lower-cases EVM addresses. Non-EVM identifiers (SPL mints, denoms) are case-sensitive and only trimmed.
func NormalizeToken(address string) string {
	address = strings.TrimSpace(address)
	if IsEvmAddress(address) {
		return strings.ToLower(address)
	}
	return address
}

// ChecksumAddress returns the EIP-55 form of an EVM address, or the input unchanged.
func ChecksumAddress(address string) string {
	if !IsEvmAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}

// NormalizeAddressForChain lower-cases EVM addresses on EVM chains and leaves other chains' formats alone.
func NormalizeAddressForChain(address, chain string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if GlobalChainRegistry.IsEVMCompatible(chain) && IsEvmAddress(address) {
		return strings.ToLower(address)
	}
	return address
}
