package providers

// DefaultConfigs holds default configurations for supported providers.
var DefaultConfigs = map[string]*ProviderConfig{
	"google": {
		Name:             "google",
		Type:             "google",
		AuthURL:          "https://accounts.google.com/o/oauth2/auth",
		TokenURL:         "https://oauth2.googleapis.com/token",
		UserInfoURL:      "https://openidconnect.googleapis.com/v1/userinfo",
		WellKnownJwksURL: "https://www.googleapis.com/oauth2/v3/certs",
		Scopes:           []string{"openid", "profile", "email"},
		AdditionalParams: map[string]string{"access_type": "offline", "prompt": "consent"},
	},
}
