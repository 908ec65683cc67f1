package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runSync(ctx context.Context) error {
	if err := c.requireAuth(ctx); err != nil {
		return err
	}

	if !c.monitor.CheckNow(ctx) {
		return fmt.Errorf("server is unreachable, try again later")
	}

	c.io.Println("Synchronizing...")

	result, err := c.syncService.ForceSync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if result == nil {
		c.io.Println("Sync is already running, nothing to do.")
		return nil
	}

	c.io.Println()
	c.io.Println("✓ Sync completed")
	c.io.Printf("Pulled:  %d record(s)\n", result.Pulled)
	c.io.Printf("Pushed:  %d mutation(s)\n", result.Pushed)
	if result.Failed > 0 {
		c.io.Printf("Failed:  %d (will retry on next sync)\n", result.Failed)
	}
	if result.Dropped > 0 {
		c.io.Printf("Dropped: %d (rejected by server, see logs)\n", result.Dropped)
	}

	return nil
}

// runWatch держит клиент в foreground: монитор связи пробует сервер,
// воркер сливает очередь, восстановление связи запускает полный sync.
func (c *Cli) runWatch(ctx context.Context) error {
	if err := c.requireAuth(ctx); err != nil {
		return err
	}

	c.monitor.Subscribe(func(ctx context.Context) {
		c.io.Println("Connection restored, synchronizing...")
		if _, err := c.syncService.ForceSync(ctx); err != nil {
			c.io.Printf("Sync failed: %v\n", err)
		}
	})
	c.monitor.OnRefresh(func(ctx context.Context) {
		_, _ = c.syncService.ForceSync(ctx)
	})

	c.monitor.Start(ctx)
	defer c.monitor.Stop()

	c.worker.Start(ctx)
	defer c.worker.Stop()

	if c.monitor.Online() {
		c.io.Println("Server: online")
		if _, err := c.syncService.ForceSync(ctx); err != nil {
			c.io.Printf("Initial sync failed: %v\n", err)
		}
	} else {
		c.io.Println("Server: offline (working from local cache)")
	}

	c.io.Println("Watching for changes, press Ctrl+C to stop.")

	<-ctx.Done()
	c.io.Println()
	c.io.Println("Shutting down...")

	return nil
}
