// Package payu строит параметры формы PayU и проверяет подпись колбэка.
package payu

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UDFCount число пользовательских полей udf1..udf10
const UDFCount = 10

// RequestFields поля, входящие в подпись запроса
type RequestFields struct {
	Key         string
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	UDF         [UDFCount]string
}

// RequestHash sha512(key|txnid|amount|productinfo|firstname|email|udf1..udf10|salt)
func RequestHash(f RequestFields, salt string) string {
	parts := make([]string, 0, 7+UDFCount)
	parts = append(parts, f.Key, f.TxnID, f.Amount, f.ProductInfo, f.FirstName, f.Email)
	parts = append(parts, f.UDF[:]...)
	parts = append(parts, salt)
	return sha512Hex(strings.Join(parts, "|"))
}

// ResponseFields поля, входящие в обратную подпись колбэка
type ResponseFields struct {
	Status      string
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	UDF         [UDFCount]string
}

// ResponseHash sha512(salt|status|udf10..udf1|email|firstname|productinfo|amount|txnid|key)
func ResponseHash(f ResponseFields, key, salt string) string {
	parts := make([]string, 0, 8+UDFCount)
	parts = append(parts, salt, f.Status)
	for i := UDFCount - 1; i >= 0; i-- {
		parts = append(parts, f.UDF[i])
	}
	parts = append(parts, f.Email, f.FirstName, f.ProductInfo, f.Amount, f.TxnID, key)
	return sha512Hex(strings.Join(parts, "|"))
}

// HashEqual сравнение в постоянном времени, регистр полученного хеша не важен
func HashEqual(expected, provided string) bool {
	provided = strings.ToLower(strings.TrimSpace(provided))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

// FormatAmount сумма с ровно двумя знаками
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// NormalizeAmount приводит сумму из колбэка к двум знакам
func NormalizeAmount(raw string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return FormatAmount(d), nil
}

// NewTxnID tx_<unix millis>_<0..999999>
func NewTxnID(now time.Time, n int) string {
	return fmt.Sprintf("tx_%d_%d", now.UnixMilli(), n%1000000)
}

func randomTxnID(now time.Time) string {
	return NewTxnID(now, rand.Intn(1000000))
}
