package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/api/idtoken"

	"zhsystem/internal/model"
)

type validateFunc func(ctx context.Context, token string, audience string) (*idtoken.Payload, error)

// GoogleVerifier validates Google ID tokens against the configured client id.
type GoogleVerifier struct {
	clientID string
	validate validateFunc
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

// Verify returns model.ErrIdentityRejected for any token Google does not vouch for.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (model.FederatedIdentity, error) {
	if strings.TrimSpace(v.clientID) == "" || strings.TrimSpace(token) == "" {
		return model.FederatedIdentity{}, model.ErrIdentityRejected
	}

	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.FederatedIdentity{}, ctxErr
		}
		return model.FederatedIdentity{}, errors.Join(model.ErrIdentityRejected, err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" || !emailVerified(payload.Claims) {
		return model.FederatedIdentity{}, model.ErrIdentityRejected
	}
	name, _ := payload.Claims["name"].(string)

	return model.FederatedIdentity{Subject: payload.Subject, Email: email, Name: name}, nil
}

// emailVerified treats a missing email_verified claim as verified. Some
// issuers encode the claim as a string.
func emailVerified(claims map[string]any) bool {
	switch v := claims["email_verified"].(type) {
	case bool:
		return v
	case string:
		return !strings.EqualFold(v, "false")
	default:
		return true
	}
}
