package services

import (
	"testing"
)

func TestParseGoogleProfile(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantID       string
		wantUsername string
		wantErr      bool
	}{
		{
			name:         "full profile",
			body:         `{"id":"g-123","email":"alice@gmail.com","name":"Alice","picture":"https://p/a.png"}`,
			wantID:       "g-123",
			wantUsername: "alice@gmail.com",
		},
		{
			name:         "no email falls back to name",
			body:         `{"id":"g-123","name":"Alice"}`,
			wantID:       "g-123",
			wantUsername: "Alice",
		},
		{name: "malformed body", body: `{"id":`, wantErr: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			profile, err := ParseGoogleProfile([]byte(test.body))
			if (err != nil) != test.wantErr {
				t.Fatalf("ParseGoogleProfile() error = %v, wantErr %v", err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			if profile.ProviderUserID != test.wantID {
				t.Errorf("ProviderUserID = %q, want %q", profile.ProviderUserID, test.wantID)
			}
			if profile.Username != test.wantUsername {
				t.Errorf("Username = %q, want %q", profile.Username, test.wantUsername)
			}
		})
	}
}

func TestParseGitHubProfile(t *testing.T) {
	// Large numeric ids must survive parsing exactly, not as float64.
	profile, err := ParseGitHubProfile([]byte(`{"id":9007199254740993,"login":"alice","name":"Alice","email":"a@b.c","avatar_url":"https://a/b.png"}`))
	if err != nil {
		t.Fatalf("ParseGitHubProfile() error = %v", err)
	}
	if profile.ProviderUserID != "9007199254740993" {
		t.Errorf("ProviderUserID = %q, precision lost", profile.ProviderUserID)
	}
	if profile.Username != "alice" {
		t.Errorf("Username = %q", profile.Username)
	}
	if profile.Attributes["avatar"] != "https://a/b.png" {
		t.Errorf("avatar = %v", profile.Attributes["avatar"])
	}

	if _, err := ParseGitHubProfile([]byte(`not json`)); err == nil {
		t.Error("malformed body should fail to parse")
	}
}

func TestBuiltinProvidersComplete(t *testing.T) {
	for _, p := range []struct {
		name   string
		config func() bool
	}{
		{name: "google", config: func() bool {
			return GoogleProvider("id", "secret", "http://cb").Complete()
		}},
		{name: "github", config: func() bool {
			return GitHubProvider("id", "secret", "http://cb").Complete()
		}},
	} {
		if !p.config() {
			t.Errorf("%s provider config incomplete", p.name)
		}
	}
}
