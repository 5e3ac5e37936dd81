package kvauth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrEthical07/kvauth/authn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var usernameUnsafe = regexp.MustCompile(`[^0-9a-z]`)

// Identity is what a strategy learned about the person signing in.
type Identity struct {
	Email             string
	DisplayName       string
	AvatarURL         string
	Provider          string
	ProviderAccountID string
}

// ResolveUser finds or creates the user behind ident and returns its id.
//
// Existing users must be active. Providers other than totp refresh the
// stored display name and avatar, and a provider seen for the first time
// is linked. New users get a username derived from the email local part,
// suffixed with part of the new id when the name is taken.
func ResolveUser(ctx context.Context, dir UserDirectory, ident Identity, logger *zap.Logger) (string, error) {
	return resolveUser(ctx, dir, ident, logger, uuid.NewString)
}

func resolveUser(ctx context.Context, dir UserDirectory, ident Identity, logger *zap.Logger, newID func() string) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ident.Email == "" {
		return "", fmt.Errorf("%w for %s authentication", authn.ErrEmailRequired, ident.Provider)
	}

	email := strings.ToLower(ident.Email)
	username := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		username = email[:at]
	}
	username = usernameUnsafe.ReplaceAllString(username, "_")
	displayName := ident.DisplayName
	if displayName == "" {
		displayName = username
	}

	existing, err := dir.FindUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		if !existing.Active() {
			return "", ErrUserInactive
		}
		if ident.Provider != "totp" {
			if err := dir.UpdateProfile(ctx, existing.ID, displayName, ident.AvatarURL); err != nil {
				return "", fmt.Errorf("update profile: %w", err)
			}
		}
		linked, err := dir.HasProvider(ctx, existing.ID, ident.Provider)
		if err != nil {
			return "", fmt.Errorf("check provider: %w", err)
		}
		if !linked {
			accountID := ident.ProviderAccountID
			if accountID == "" {
				accountID = existing.ID
			}
			if err := dir.LinkProvider(ctx, existing.ID, ident.Provider, accountID); err != nil {
				return "", fmt.Errorf("link provider: %w", err)
			}
		}
		return existing.ID, nil
	}

	id := newID()
	taken, err := dir.UsernameTaken(ctx, username)
	if err != nil {
		return "", fmt.Errorf("check username: %w", err)
	}
	if taken {
		suffix := id
		if len(suffix) > 6 {
			suffix = suffix[:6]
		}
		username = username + "_" + suffix
	}
	accountID := ident.ProviderAccountID
	if accountID == "" {
		accountID = id
	}

	created, err := dir.CreateUser(ctx, NewUser{
		ID:                id,
		Email:             email,
		Username:          username,
		DisplayName:       displayName,
		AvatarURL:         ident.AvatarURL,
		Provider:          ident.Provider,
		ProviderAccountID: accountID,
	})
	if err != nil {
		logger.Error("user create failed",
			zap.String("event", "auth_user_create_error"),
			zap.String("provider", ident.Provider),
			zap.Error(err),
		)
		return "", ErrLoginFailed
	}
	return created, nil
}
