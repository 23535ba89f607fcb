package shopify

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderID = "shopify"

	AccessTokenHeader = "X-Shopify-Access-Token"

	defaultAPIVersion   = "2024-07"
	defaultDomainSuffix = ".myshopify.com"
	adminGraphQLPath    = "/admin/api/%s/graphql.json"
)

// AdminGraphQLEndpoint returns the Admin GraphQL URL for a shop domain.
func AdminGraphQLEndpoint(shop string, apiVersion string) (string, error) {
	domain, err := NormalizeShopDomain(shop)
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(apiVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	return "https://" + domain + fmt.Sprintf(adminGraphQLPath, url.PathEscape(version)), nil
}

// NormalizeShopDomain lower-cases the shop, strips a scheme and appends the
// myshopify suffix when the value is a bare handle.
func NormalizeShopDomain(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "", fmt.Errorf("providers/shopify: shop_domain is required")
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("providers/shopify: parse shop_domain: %w", err)
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("providers/shopify: invalid shop_domain")
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += defaultDomainSuffix
	}
	if !strings.HasSuffix(trimmed, defaultDomainSuffix) {
		return "", fmt.Errorf("providers/shopify: shop_domain must end with %q", defaultDomainSuffix)
	}
	return trimmed, nil
}
