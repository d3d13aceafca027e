// Package validation holds the wallet, contract and transaction hash rules
// shared by request binding and the services.
package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var txHashPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

var validate = validator.New()

// IsWalletAddress reports whether s is a 0x-prefixed 40 hex digit address
func IsWalletAddress(s string) bool {
	return validate.Var(s, "required,eth_addr") == nil
}

// IsTransactionHash reports whether s is a 0x-prefixed 64 hex digit hash
func IsTransactionHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// NormalizeAddress lowercases a valid address; callers must validate first
func NormalizeAddress(s string) string {
	return strings.ToLower(common.HexToAddress(s).Hex())
}

// ChecksumAddress returns the EIP-55 form used in human-facing text
func ChecksumAddress(s string) string {
	return common.HexToAddress(s).Hex()
}

// NormalizeTransactionHash lowercases a valid transaction hash
func NormalizeTransactionHash(s string) string {
	return strings.ToLower(common.HexToHash(s).Hex())
}

// RegisterBindings adds the custom tags to gin's validator engine and makes
// field errors report the request name (json, uri or form tag) of a field.
func RegisterBindings() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(requestName)
	return v.RegisterValidation("txhash", func(fl validator.FieldLevel) bool {
		return IsTransactionHash(fl.Field().String())
	})
}

func requestName(field reflect.StructField) string {
	for _, key := range []string{"json", "uri", "form"} {
		name := strings.SplitN(field.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return field.Name
}
