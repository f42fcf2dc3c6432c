package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	paywallkit "github.com/paywallkit/paywallkit-go"
)

// paywallByIdentifier builds the GET request for one paywall definition.
//
// The query string participates in server-side cache eviction, so its exact
// byte order is part of the contract: pk always comes first, and locale is
// appended only when the configured locale set contains the full locale or,
// failing that, its shortened form.
func paywallByIdentifier(config *APIConfig, identifier, locale string) RequestData {
	query := "pk=" + url.QueryEscape(config.APIKey)
	if resolved, ok := resolveLocale(config.Locales, locale); ok {
		query += "&locale=" + url.QueryEscape(resolved)
	}
	return RequestData{
		Method:   http.MethodGet,
		Host:     hostOf(config),
		Path:     versionOf(config) + "paywall/" + url.PathEscape(identifier),
		RawQuery: query,
		Retries:  getRetries,
	}
}

// paywallByEvent builds the POST request resolving a paywall from a
// triggering event.
func paywallByEvent(config *APIConfig, event *paywallkit.EventData) (RequestData, error) {
	body, err := json.Marshal(map[string]interface{}{
		"event_name": event.Name,
		"event_id":   event.ID,
		"parameters": event.Parameters,
		"created_at": event.CreatedAt,
	})
	if err != nil {
		return RequestData{}, paywallkit.NewNetworkError(paywallkit.ErrCodeUnknown, "failed to encode event", err)
	}
	return RequestData{
		Method:   http.MethodPost,
		Host:     hostOf(config),
		Path:     versionOf(config) + "paywall",
		RawQuery: "pk=" + url.QueryEscape(config.APIKey),
		Body:     body,
		Retries:  postRetries,
	}, nil
}

// redeemEndpoint builds the non-idempotent redeem call; it carries no retry
// budget.
func redeemEndpoint(config *APIConfig, code string) (RequestData, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return RequestData{}, paywallkit.NewNetworkError(paywallkit.ErrCodeUnknown, "failed to encode redeem request", err)
	}
	return RequestData{
		Method:  http.MethodPost,
		Host:    hostOf(config),
		Path:    versionOf(config) + "redeem",
		Body:    body,
		Retries: zeroRetries,
	}, nil
}

// resolveLocale returns the locale to forward, preferring the full locale
// over its shortened form, or false when neither is configured.
func resolveLocale(configured []string, locale string) (string, bool) {
	if locale == "" {
		return "", false
	}
	short := strings.Split(locale, "_")[0]
	var shortOK bool
	for _, candidate := range configured {
		if candidate == locale {
			return locale, true
		}
		if candidate == short {
			shortOK = true
		}
	}
	if shortOK {
		return short, true
	}
	return "", false
}

func hostOf(config *APIConfig) string {
	if config.Host != "" {
		return config.Host
	}
	return DefaultHost
}

func versionOf(config *APIConfig) string {
	if config.Version != "" {
		return config.Version
	}
	return DefaultVersion
}
