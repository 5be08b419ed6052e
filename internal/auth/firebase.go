package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

const defaultVerifyTimeout = 5 * time.Second

// IDTokenVerifier is the slice of the Firebase Admin auth client used here.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier verifies Firebase ID tokens issued to signed-in customers.
type FirebaseVerifier struct {
	Client  IDTokenVerifier
	Timeout time.Duration
}

// NewFirebaseVerifier initialises the Admin SDK for the project.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*FirebaseVerifier, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("firebase project id is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return &FirebaseVerifier{Client: client, Timeout: defaultVerifyTimeout}, nil
}

// Verify implements Verifier.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (common.Identity, error) {
	if v == nil || v.Client == nil {
		return common.Identity{}, errors.New("firebase verifier not initialised")
	}
	if strings.TrimSpace(token) == "" {
		return common.Identity{}, unauthorized(errNoToken)
	}
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}
	decoded, err := v.Client.VerifyIDToken(ctx, token)
	if err != nil {
		return common.Identity{}, unauthorized(err)
	}
	return identityFromToken(decoded), nil
}

func identityFromToken(tok *firebaseauth.Token) common.Identity {
	id := common.Identity{UserID: tok.UID}
	if email, ok := tok.Claims["email"].(string); ok {
		id.Email = strings.TrimSpace(email)
	}
	if verified, ok := tok.Claims["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	return id
}
