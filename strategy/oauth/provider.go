package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Profile is the provider identity handed to the verify callback.
type Profile struct {
	Provider    string
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
}

// ProfileFunc loads the signed-in identity with an authorized client.
type ProfileFunc func(ctx context.Context, client *http.Client) (Profile, error)

// Provider describes one OAuth2 identity provider.
type Provider struct {
	Name    string
	Config  *oauth2.Config
	Profile ProfileFunc
}

// Endpoints overrides provider URLs, mostly for tests.
type Endpoints struct {
	Auth     string
	Token    string
	UserInfo string
	// Emails is GitHub's /user/emails endpoint.
	Emails string
}

const (
	googleUserInfo = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUser     = "https://api.github.com/user"
	githubEmails   = "https://api.github.com/user/emails"
)

// Google returns the Google provider with openid, email and profile scopes.
func Google(clientID, clientSecret, redirectURL string, override *Endpoints) Provider {
	ep := endpoints.Google
	userInfo := googleUserInfo
	if override != nil {
		ep = oauth2.Endpoint{AuthURL: override.Auth, TokenURL: override.Token}
		userInfo = override.UserInfo
	}
	return Provider{
		Name: "google",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     ep,
			Scopes:       []string{"openid", "email", "profile"},
		},
		Profile: func(ctx context.Context, client *http.Client) (Profile, error) {
			var body struct {
				Sub     string `json:"sub"`
				Email   string `json:"email"`
				Name    string `json:"name"`
				Picture string `json:"picture"`
			}
			if err := getJSON(ctx, client, userInfo, &body); err != nil {
				return Profile{}, err
			}
			return Profile{
				Provider:    "google",
				ID:          body.Sub,
				Email:       body.Email,
				DisplayName: body.Name,
				AvatarURL:   body.Picture,
			}, nil
		},
	}
}

// GitHub returns the GitHub provider. When the public profile hides the
// email, the primary verified address from /user/emails is used.
func GitHub(clientID, clientSecret, redirectURL string, override *Endpoints) Provider {
	ep := endpoints.GitHub
	userURL, emailsURL := githubUser, githubEmails
	if override != nil {
		ep = oauth2.Endpoint{AuthURL: override.Auth, TokenURL: override.Token}
		userURL, emailsURL = override.UserInfo, override.Emails
	}
	return Provider{
		Name: "github",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     ep,
			Scopes:       []string{"read:user", "user:email"},
		},
		Profile: func(ctx context.Context, client *http.Client) (Profile, error) {
			var user struct {
				ID        int64  `json:"id"`
				Login     string `json:"login"`
				Name      string `json:"name"`
				Email     string `json:"email"`
				AvatarURL string `json:"avatar_url"`
			}
			if err := getJSON(ctx, client, userURL, &user); err != nil {
				return Profile{}, err
			}
			p := Profile{
				Provider:    "github",
				ID:          strconv.FormatInt(user.ID, 10),
				Email:       user.Email,
				DisplayName: user.Name,
				AvatarURL:   user.AvatarURL,
			}
			if p.DisplayName == "" {
				p.DisplayName = user.Login
			}
			if p.Email != "" {
				return p, nil
			}

			var emails []struct {
				Email    string `json:"email"`
				Primary  bool   `json:"primary"`
				Verified bool   `json:"verified"`
			}
			if err := getJSON(ctx, client, emailsURL, &emails); err != nil {
				return Profile{}, err
			}
			for _, e := range emails {
				if e.Primary && e.Verified {
					p.Email = e.Email
					break
				}
			}
			if p.Email == "" && len(emails) > 0 {
				p.Email = emails[0].Email
			}
			return p, nil
		},
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("user info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("user info request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user info status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	return nil
}
