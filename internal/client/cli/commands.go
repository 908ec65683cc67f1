package cli

import (
	"context"
	"fmt"
)

// Run выполняет команду CLI
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "sync":
		return c.runSync(ctx)
	case "list":
		return c.runList(ctx, args)
	case "add":
		return c.runAdd(ctx, args)
	case "update":
		return c.runUpdate(ctx, args)
	case "delete":
		return c.runDelete(ctx, args)
	case "watch":
		return c.runWatch(ctx)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// requireAuth восстанавливает сессию перед командами, которым нужен сервер
func (c *Cli) requireAuth(ctx context.Context) error {
	if _, err := c.authService.Restore(ctx); err != nil {
		return fmt.Errorf("please run 'dentkeeper login' first: %w", err)
	}
	return nil
}
