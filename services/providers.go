package services

import (
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/kmantas/sesame/core"
)

// Built-in provider configs. Providers are data plus a parse strategy for
// the user-info response shape; nothing here subclasses anything.

// GoogleProvider returns a ready provider config for Google sign-in.
func GoogleProvider(clientID, clientSecret, redirectURL string) core.ProviderConfig {
	return core.ProviderConfig{
		Name:         "google",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		AuthURL:      google.Endpoint.AuthURL,
		TokenURL:     google.Endpoint.TokenURL,
		UserInfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
		UsePKCE:      true,
		ParseProfile: ParseGoogleProfile,
	}
}

// GitHubProvider returns a ready provider config for GitHub sign-in.
func GitHubProvider(clientID, clientSecret, redirectURL string) core.ProviderConfig {
	return core.ProviderConfig{
		Name:         "github",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"read:user", "user:email"},
		AuthURL:      github.Endpoint.AuthURL,
		TokenURL:     github.Endpoint.TokenURL,
		UserInfoURL:  "https://api.github.com/user",
		ParseProfile: ParseGitHubProfile,
	}
}

func ParseGoogleProfile(body []byte) (*core.RemoteProfile, error) {
	var raw struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse google profile: %w", err)
	}

	username := raw.Email
	if username == "" {
		username = raw.Name
	}

	return &core.RemoteProfile{
		ProviderUserID: raw.ID,
		Username:       username,
		Attributes: map[string]any{
			"email":   raw.Email,
			"name":    raw.Name,
			"picture": raw.Picture,
		},
	}, nil
}

func ParseGitHubProfile(body []byte) (*core.RemoteProfile, error) {
	// GitHub's numeric id would decode as float64 through map[string]any;
	// a typed struct keeps it exact.
	var raw struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse github profile: %w", err)
	}

	return &core.RemoteProfile{
		ProviderUserID: strconv.FormatInt(raw.ID, 10),
		Username:       raw.Login,
		Attributes: map[string]any{
			"email":  raw.Email,
			"name":   raw.Name,
			"avatar": raw.AvatarURL,
		},
	}, nil
}
