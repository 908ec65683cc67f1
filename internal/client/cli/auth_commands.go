package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	password, err := c.io.ReadPassword("Password (min 8 chars): ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	confirm, err := c.io.ReadPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}

	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	result, err := c.authService.Register(ctx, username, password)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", result.UserID)
	c.io.Println()
	c.io.Println("Please run 'dentkeeper login' to start using the service.")

	return nil
}

func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	auth, err := c.authService.Login(ctx, username, password)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Username: %s\n", auth.Username)
	c.io.Printf("Token expires: %s\n", time.Unix(auth.ExpiresAt, 0).Format(time.RFC3339))

	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	if err := c.authService.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	c.io.Println("✓ Logout successful!")
	c.io.Println("Your local session has been deleted.")

	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	auth, err := c.authService.Restore(ctx)
	if err != nil {
		c.io.Println("Session: not authenticated")
		c.io.Println()
		c.io.Println("Run 'dentkeeper login' to authenticate.")
		return nil
	}

	expiresAt := time.Unix(auth.ExpiresAt, 0)
	c.io.Println("Session: authenticated")
	c.io.Printf("Username: %s\n", auth.Username)
	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))

	c.io.Println()
	if c.monitor.CheckNow(ctx) {
		c.io.Println("Server: online")
	} else {
		c.io.Println("Server: offline (working from local cache)")
	}

	pending, err := c.syncService.PendingCount(ctx)
	if err != nil {
		c.io.Printf("Warning: failed to get pending sync count: %v\n", err)
		return nil
	}

	if pending > 0 {
		c.io.Printf("Pending sync: %d mutation(s) queued\n", pending)
		c.io.Println("Run 'dentkeeper sync' to synchronize with server.")
	} else {
		c.io.Println("✓ All data synchronized with server")
	}

	return nil
}
