// Package secrets keeps the bank token in AWS Secrets Manager instead of the
// local dataset.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// API is the subset of the Secrets Manager client used here.
type API interface {
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	UpdateSecret(ctx context.Context, in *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

type storedToken struct {
	Token    string `json:"token"`
	StoredAt int64  `json:"storedAt"`
}

// SecretsManagerStore implements port.TokenStore.
type SecretsManagerStore struct {
	client API
	now    func() time.Time
}

// NewSecretsManagerStore loads the default AWS configuration (env, shared
// config, SSO) and creates a store.
func NewSecretsManagerStore(ctx context.Context) (*SecretsManagerStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSecretsManagerStoreWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

// NewSecretsManagerStoreWithClient creates a store over an existing client.
func NewSecretsManagerStoreWithClient(client API) *SecretsManagerStore {
	return &SecretsManagerStore{client: client, now: time.Now}
}

// StoreToken creates the secret, or updates it when it already exists.
func (s *SecretsManagerStore) StoreToken(ctx context.Context, name, token string) error {
	payload, err := json.Marshal(storedToken{Token: token, StoredAt: s.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	_, err = s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(payload)),
		Description:  aws.String("Monobank personal API token for monosync"),
	})
	if err == nil {
		return nil
	}

	var exists *types.ResourceExistsException
	if !errors.As(err, &exists) {
		return fmt.Errorf("failed to create secret: %w", err)
	}

	_, err = s.client.UpdateSecret(ctx, &secretsmanager.UpdateSecretInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}
	return nil
}

// RetrieveToken returns the stored token. A missing secret yields "".
func (s *SecretsManagerStore) RetrieveToken(ctx context.Context, name string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get secret value: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret string is nil")
	}

	raw := strings.TrimSpace(*result.SecretString)
	var stored storedToken
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		// Plain-text secrets created by hand.
		return raw, nil
	}
	return strings.TrimSpace(stored.Token), nil
}

// DeleteToken removes the secret without a recovery window.
func (s *SecretsManagerStore) DeleteToken(ctx context.Context, name string) error {
	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}
