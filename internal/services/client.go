package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/store"
)

// ClientService owns the client registry: registration, authentication,
// and deactivation. Clients are immutable after registration except for
// the active flag.
type ClientService struct {
	store *store.Store
}

func NewClientService(s *store.Store) *ClientService {
	return &ClientService{store: s}
}

// RegisterInput holds the client metadata accepted at registration.
type RegisterInput struct {
	Name          string
	Description   string
	RedirectURIs  []string
	GrantTypes    string // space-separated
	ResponseTypes string // space-separated
	Scopes        string // space-separated
	AuthMethod    string
}

// Register creates a new client. Returns the client and, for confidential
// clients, the plaintext secret — shown exactly once, only its bcrypt hash
// is stored.
func (s *ClientService) Register(
	ctx context.Context,
	input RegisterInput,
) (*models.Client, string, error) {
	if input.Name == "" {
		return nil, "", fmt.Errorf("%w: client name is required", ErrInvalidRequest)
	}
	if len(input.RedirectURIs) == 0 {
		return nil, "", fmt.Errorf("%w: redirect_uris must not be empty", ErrInvalidRequest)
	}

	authMethod := input.AuthMethod
	if authMethod == "" {
		authMethod = models.AuthMethodSecretBasic
	}
	switch authMethod {
	case models.AuthMethodSecretBasic, models.AuthMethodSecretPost, models.AuthMethodNone:
	default:
		return nil, "", fmt.Errorf("%w: unknown auth method %q", ErrInvalidRequest, authMethod)
	}

	grantTypes := input.GrantTypes
	if grantTypes == "" {
		grantTypes = "authorization_code"
	}
	responseTypes := input.ResponseTypes
	if responseTypes == "" {
		responseTypes = "code"
	}

	client := &models.Client{
		ClientID:      uuid.New().String(),
		ClientName:    input.Name,
		Description:   input.Description,
		RedirectURIs:  input.RedirectURIs,
		GrantTypes:    grantTypes,
		ResponseTypes: responseTypes,
		Scopes:        input.Scopes,
		AuthMethod:    authMethod,
		IsActive:      true,
	}

	var plainSecret string
	if authMethod != models.AuthMethodNone {
		secret, err := client.GenerateClientSecret(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate client secret: %w", err)
		}
		plainSecret = secret
	}

	if err := s.store.CreateClient(client); err != nil {
		return nil, "", fmt.Errorf("failed to create client: %w", err)
	}

	log.Printf("[Client] Registered client %s (%s)", client.ClientID, client.ClientName)
	return client, plainSecret, nil
}

// Authenticate resolves and authenticates a client for the token endpoint.
// Public clients (auth method "none") pass without a secret; confidential
// clients require a bcrypt match. Unknown or inactive clients and bad
// secrets all collapse to ErrInvalidClient.
func (s *ClientService) Authenticate(clientID, clientSecret string) (*models.Client, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !client.IsActive {
		return nil, ErrInvalidClient
	}

	if client.IsPublic() {
		return client, nil
	}
	if !client.ValidateClientSecret([]byte(clientSecret)) {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// Get returns an active client by id.
func (s *ClientService) Get(clientID string) (*models.Client, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !client.IsActive {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// Deactivate flips the client's active flag. Clients are never deleted.
func (s *ClientService) Deactivate(clientID string) error {
	if err := s.store.SetClientActive(clientID, false); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrInvalidClient
		}
		return err
	}
	log.Printf("[Client] Deactivated client %s", clientID)
	return nil
}
