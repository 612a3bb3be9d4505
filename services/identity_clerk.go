package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

// ClerkIdentity is the Clerk-backed IdentityProvider. clerk.SetKey must have
// been called.
type ClerkIdentity struct{}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func (ClerkIdentity) CreateUser(ctx context.Context, in NewIdentity) (string, error) {
	first, last := splitName(in.FullName)
	params := &user.CreateParams{
		EmailAddresses: &[]string{in.Email},
		Password:       clerk.String(in.Password),
		FirstName:      clerk.String(first),
	}
	if last != "" {
		params.LastName = clerk.String(last)
	}
	if in.Phone != "" {
		params.PhoneNumbers = &[]string{in.Phone}
	}

	u, err := user.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("clerk create user: %w", err)
	}
	return u.ID, nil
}

func (ClerkIdentity) DeleteUser(ctx context.Context, subject string) error {
	if _, err := user.Delete(ctx, subject); err != nil {
		return fmt.Errorf("clerk delete user: %w", err)
	}
	return nil
}

func (ClerkIdentity) VerifySession(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims.Subject, nil
}
