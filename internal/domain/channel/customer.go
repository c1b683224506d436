package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// Marketplaces mask personal data after a retention period by replacing it
// with asterisks. Masked values must never reach partner matching, so the
// helpers here cleanse them before the pipeline sees anything.

// IsMasked returns true for strings consisting entirely of '*'.
func IsMasked(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '*' {
			return false
		}
	}
	return true
}

// CleanMasked returns the trimmed value, or empty if the value is masked.
func CleanMasked(s string) string {
	s = strings.TrimSpace(s)
	if IsMasked(s) {
		return ""
	}
	return s
}

// CustomerName assembles a customer name from order fields: the recipient's
// real name is preferred over the buyer username; when both are masked or
// empty a channel placeholder is derived from the phone's last digits.
func CustomerName(code Code, recipientName, buyerUsername, phone string) string {
	if name := CleanMasked(recipientName); name != "" {
		return name
	}
	if name := CleanMasked(buyerUsername); name != "" {
		return name
	}
	return placeholderName(code, phone)
}

// placeholderName builds "Shopee Customer 5678" style names.
func placeholderName(code Code, phone string) string {
	digits := lastDigits(CleanMasked(phone), 4)
	if digits == "" {
		return fmt.Sprintf("%s Customer", code.DisplayName())
	}
	return fmt.Sprintf("%s Customer %s", code.DisplayName(), digits)
}

// lastDigits returns the last n digit characters of s.
func lastDigits(s string, n int) string {
	var digits []rune
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}

// formatID renders a remote numeric ID for binding caches.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// formatParentVariant renders a "parent:variant" pair for variation
// products.
func formatParentVariant(parentID, variantID int64) string {
	return fmt.Sprintf("%d:%d", parentID, variantID)
}

// FormatExternalID renders a remote ID in binding cache form, pairing the
// parent when one exists.
func FormatExternalID(parentID, variantID int64) string {
	if variantID == 0 {
		return ""
	}
	if parentID != 0 {
		return formatParentVariant(parentID, variantID)
	}
	return formatID(variantID)
}

// SplitParentVariant parses a cached external product ID into its parent
// and variant parts. A plain ID returns (0, id, true).
func SplitParentVariant(external string) (parentID, variantID int64, ok bool) {
	if external == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(external, ":", 2)
	if len(parts) == 2 {
		p, errP := strconv.ParseInt(parts[0], 10, 64)
		v, errV := strconv.ParseInt(parts[1], 10, 64)
		if errP != nil || errV != nil {
			return 0, 0, false
		}
		return p, v, true
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return 0, v, true
}
