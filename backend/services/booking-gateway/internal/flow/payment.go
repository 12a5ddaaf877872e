package flow

import (
	"fmt"
	"strings"
)

// PaymentMethod is how a booking is charged.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
)

// MinCardDigits is the shortest card number accepted by Pay.
const MinCardDigits = 16

// ParsePaymentMethod accepts the card methods offered to users; empty means credit card.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.TrimSpace(s)) {
	case "":
		return PaymentCreditCard, nil
	case PaymentCreditCard:
		return PaymentCreditCard, nil
	case PaymentDebitCard:
		return PaymentDebitCard, nil
	default:
		return "", fmt.Errorf("flow: unknown payment method %q", s)
	}
}

// PaymentDraft is the card form. It only lives for the duration of a Pay call.
type PaymentDraft struct {
	Method     PaymentMethod
	CardNumber string
	Expiry     string
	CVC        string
	HolderName string
}

// Validate checks that every field is filled and the card number carries enough digits.
func (d PaymentDraft) Validate() error {
	if blank(d.CardNumber) || blank(d.Expiry) || blank(d.CVC) || blank(d.HolderName) {
		return &ValidationError{Message: MsgMissingPayment}
	}
	if len(d.digits()) < MinCardDigits {
		return &ValidationError{Field: "cardNumber", Message: MsgInvalidCardNumber}
	}
	if _, err := ParsePaymentMethod(string(d.Method)); err != nil {
		return &ValidationError{Field: "method", Message: err.Error()}
	}
	return nil
}

// Last4 returns the trailing four digits of the card number.
func (d PaymentDraft) Last4() string {
	digits := d.digits()
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

func (d PaymentDraft) digits() string {
	return onlyDigits(strings.Join(strings.Fields(d.CardNumber), ""))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCardNumber keeps the first 16 digits and groups them in blocks of four.
func FormatCardNumber(value string) string {
	digits := onlyDigits(value)
	if len(digits) < 4 {
		return digits
	}
	if len(digits) > 16 {
		digits = digits[:16]
	}
	parts := make([]string, 0, 4)
	for i := 0; i < len(digits); i += 4 {
		parts = append(parts, digits[i:min(i+4, len(digits))])
	}
	formatted := strings.Join(parts, " ")
	if len(formatted) > 19 {
		formatted = formatted[:19]
	}
	return formatted
}

// FormatExpiry turns "1227" into "12/27".
func FormatExpiry(value string) string {
	digits := onlyDigits(value)
	if len(digits) < 2 {
		return digits
	}
	return digits[:2] + "/" + digits[2:min(4, len(digits))]
}

// FormatCVC keeps at most three digits.
func FormatCVC(value string) string {
	digits := onlyDigits(value)
	if len(digits) > 3 {
		return digits[:3]
	}
	return digits
}
