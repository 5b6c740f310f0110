package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopbridge/shopbridge/internal/config"
)

// RunConfigGet prints the stored value for key.
func (a *App) RunConfigGet(ctx context.Context, key string) error {
	if key == config.KeyAccessToken {
		return errors.New("the access token is stored sealed and cannot be printed")
	}

	value, err := a.Config.Get(ctx, key)
	if err != nil {
		if errors.Is(err, config.ErrKeyNotFound) {
			return fmt.Errorf("key %q is not set", key)
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	fmt.Println(value)
	return nil
}

// RunConfigSet stores value under key.
func (a *App) RunConfigSet(ctx context.Context, key, value string) error {
	if key == config.KeyAccessToken {
		return errors.New("use 'config set-token' to store the access token")
	}

	if err := a.Config.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	fmt.Printf("%s stored\n", key)
	return nil
}

// RunConfigSetToken prompts for the access token without echo, seals it and
// stores it.
func (a *App) RunConfigSetToken(ctx context.Context) error {
	token, err := readSecret("Access token: ")
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.New("token cannot be empty")
	}

	sealed, err := a.Sealer.Seal(token)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}
	if err := a.Config.Set(ctx, config.KeyAccessToken, sealed); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Println("Access token stored")
	return nil
}

// RunConfigTest verifies the stored credentials against the remote platform.
func (a *App) RunConfigTest(ctx context.Context) error {
	client, err := a.newClient(ctx)
	if err != nil {
		return err
	}

	shop, err := client.GetShop(ctx)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	fmt.Printf("Connected to %s (%s)\n", shop.Name, shop.Domain)
	if shop.Currency != "" {
		fmt.Printf("Currency: %s\n", shop.Currency)
	}
	return nil
}
