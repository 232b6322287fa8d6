package config

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretPrefix marks a config value that must be fetched from Secret Manager,
// e.g. DODO_PAYMENTS_WEBHOOK_KEY=sm://dodo-webhook-key.
const SecretPrefix = "sm://"

// SecretAccessor reads the latest version of a named secret.
type SecretAccessor interface {
	Access(ctx context.Context, name string) (string, error)
}

type secretManagerAccessor struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerAccessor creates a SecretAccessor backed by GCP Secret Manager.
func NewSecretManagerAccessor(ctx context.Context, projectID string) (SecretAccessor, func() error, error) {
	if projectID == "" {
		return nil, nil, fmt.Errorf("GCP project ID is required to resolve secrets")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &secretManagerAccessor{client: client, projectID: projectID}, client.Close, nil
}

func (a *secretManagerAccessor) Access(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", a.projectID, name)
	result, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version %s: %w", name, err)
	}
	return string(result.Payload.Data), nil
}

// secretFields lists the settings that may hold a Secret Manager reference.
func (c *Config) secretFields() map[string]*string {
	return map[string]*string{
		"DB_CONNECTION_STRING":       &c.DBConnectionString,
		"SUPABASE_JWT_SECRET":        &c.JWTSecret,
		"DODO_API_KEY_TEST":          &c.DodoAPIKeyTest,
		"DODO_API_KEY_LIVE":          &c.DodoAPIKeyLive,
		"DODO_PAYMENTS_WEBHOOK_KEY":  &c.DodoWebhookKey,
		"CRON_SECRET":                &c.CronSecret,
		"WEBHOOK_ARCHIVE_SECRET_KEY": &c.ArchiveSecretKey,
	}
}

// HasSecretRefs reports whether any setting points at Secret Manager.
func (c *Config) HasSecretRefs() bool {
	for _, v := range c.secretFields() {
		if strings.HasPrefix(*v, SecretPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every sm:// reference with the secret's value.
func (c *Config) ResolveSecrets(ctx context.Context, accessor SecretAccessor) error {
	for env, v := range c.secretFields() {
		if !strings.HasPrefix(*v, SecretPrefix) {
			continue
		}
		name := strings.TrimPrefix(*v, SecretPrefix)
		if name == "" {
			return fmt.Errorf("%s: empty secret reference", env)
		}
		val, err := accessor.Access(ctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*v = strings.TrimSpace(val)
	}
	return nil
}

// ResolveFromSecretManager resolves every sm:// reference through GCP Secret
// Manager. It is a no-op when no setting uses one.
func (c *Config) ResolveFromSecretManager(ctx context.Context) error {
	if !c.HasSecretRefs() {
		return nil
	}
	accessor, closeClient, err := NewSecretManagerAccessor(ctx, c.GCPProjectID)
	if err != nil {
		return err
	}
	defer closeClient()
	return c.ResolveSecrets(ctx, accessor)
}
