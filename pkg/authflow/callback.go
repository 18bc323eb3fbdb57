package authflow

import (
	"net/url"
	"strings"
)

// errorKeys are checked in order; providers and backends disagree on naming.
var errorKeys = []string{"errorCode", "error_code", "error"}

// CallbackParams returns the merged query and fragment parameters of rawURL.
// Fragment values take precedence over query values.
func CallbackParams(rawURL string) (url.Values, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	// u.Query() drops malformed pairs, which could hide an error code.
	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, err
	}

	fragment := strings.TrimLeft(u.EscapedFragment(), "?#")
	if fragment != "" {
		fragmentParams, err := url.ParseQuery(fragment)
		if err != nil {
			return nil, err
		}
		for k, v := range fragmentParams {
			params[k] = v
		}
	}
	return params, nil
}

// ParseCallbackURL extracts token material from a callback deep link.
//
// A provider error code yields a *CallbackError and no tokens. A URL with
// neither an access token nor an error code yields (nil, nil): the browser
// was closed before the flow completed.
func ParseCallbackURL(rawURL string) (*ExtractedTokens, error) {
	params, err := CallbackParams(rawURL)
	if err != nil {
		return nil, &CallbackError{Code: "invalid_callback_url", Description: err.Error()}
	}

	for _, key := range errorKeys {
		if code := params.Get(key); code != "" {
			return nil, &CallbackError{
				Code:        code,
				Description: params.Get("error_description"),
			}
		}
	}

	accessToken := params.Get("access_token")
	if accessToken == "" {
		return nil, nil
	}

	return &ExtractedTokens{
		AccessToken:  accessToken,
		RefreshToken: params.Get("refresh_token"),
	}, nil
}
