package channel

// Code identifies an external commerce platform.
type Code string

const (
	// CodeShopee represents the Shopee open platform (v2 API)
	CodeShopee Code = "shopee"
	// CodeLazada represents the Lazada open platform
	CodeLazada Code = "lazada"
	// CodeTikTok represents TikTok Shop
	CodeTikTok Code = "tiktok"
	// CodeWooCommerce represents a WooCommerce store (REST v3)
	CodeWooCommerce Code = "woocommerce"
	// CodeZortout represents the Zortout inventory master
	CodeZortout Code = "zortout"
)

// IsValid returns true if the code is a known channel.
func (c Code) IsValid() bool {
	switch c {
	case CodeShopee, CodeLazada, CodeTikTok, CodeWooCommerce, CodeZortout:
		return true
	}
	return false
}

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the channel.
func (c Code) DisplayName() string {
	switch c {
	case CodeShopee:
		return "Shopee"
	case CodeLazada:
		return "Lazada"
	case CodeTikTok:
		return "TikTok Shop"
	case CodeWooCommerce:
		return "WooCommerce"
	case CodeZortout:
		return "Zortout"
	default:
		return string(c)
	}
}

// UsesOAuth returns true if the channel authenticates through an OAuth
// consent flow. API-key channels (WooCommerce, Zortout) return false and
// their adapters fail AuthorizeURL with ErrAuthNotApplicable.
func (c Code) UsesOAuth() bool {
	switch c {
	case CodeShopee, CodeLazada, CodeTikTok:
		return true
	}
	return false
}

// SupportsOrderPull returns true if orders can be pulled from the channel.
// Zortout is an inventory master, not an order source.
func (c Code) SupportsOrderPull() bool {
	return c != CodeZortout
}

// AutoProvisionsShop returns true for channels where exactly one shop is
// created per account instead of being discovered remotely.
func (c Code) AutoProvisionsShop() bool {
	return c == CodeWooCommerce || c == CodeZortout
}
