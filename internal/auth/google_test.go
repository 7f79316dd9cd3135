package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"zhsystem/internal/model"
)

func TestGoogleVerifier_Verify(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		validate validateFunc
		wantErr  error
		want     model.FederatedIdentity
	}{
		{
			name:     "valid token",
			clientID: "client-1",
			validate: func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
				if token != "tok" || audience != "client-1" {
					return nil, errors.New("unexpected call")
				}
				return &idtoken.Payload{Subject: "g-1", Claims: map[string]any{"email": "a@b.com", "name": "Alice"}}, nil
			},
			want: model.FederatedIdentity{Subject: "g-1", Email: "a@b.com", Name: "Alice"},
		},
		{
			name:     "rejected by google",
			clientID: "client-1",
			validate: func(context.Context, string, string) (*idtoken.Payload, error) {
				return nil, errors.New("idtoken: audience provided does not match aud claim")
			},
			wantErr: model.ErrIdentityRejected,
		},
		{
			name:     "no email claim",
			clientID: "client-1",
			validate: func(context.Context, string, string) (*idtoken.Payload, error) {
				return &idtoken.Payload{Subject: "g-1", Claims: map[string]any{}}, nil
			},
			wantErr: model.ErrIdentityRejected,
		},
		{
			name:     "email not verified by google",
			clientID: "client-1",
			validate: func(context.Context, string, string) (*idtoken.Payload, error) {
				return &idtoken.Payload{Subject: "g-1", Claims: map[string]any{"email": "a@b.com", "email_verified": false}}, nil
			},
			wantErr: model.ErrIdentityRejected,
		},
		{
			name:     "email_verified as string",
			clientID: "client-1",
			validate: func(context.Context, string, string) (*idtoken.Payload, error) {
				return &idtoken.Payload{Subject: "g-1", Claims: map[string]any{"email": "a@b.com", "email_verified": "false"}}, nil
			},
			wantErr: model.ErrIdentityRejected,
		},
		{
			name:     "verified email",
			clientID: "client-1",
			validate: func(context.Context, string, string) (*idtoken.Payload, error) {
				return &idtoken.Payload{Subject: "g-2", Claims: map[string]any{"email": "c@d.com", "email_verified": true}}, nil
			},
			want: model.FederatedIdentity{Subject: "g-2", Email: "c@d.com"},
		},
		{
			name:    "client id not configured",
			wantErr: model.ErrIdentityRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &GoogleVerifier{clientID: tt.clientID, validate: tt.validate}
			got, err := v.Verify(context.Background(), "tok")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
