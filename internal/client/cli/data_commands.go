package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/dentkeeper/internal/validation"
)

func (c *Cli) runList(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dentkeeper list <collection>")
	}
	collection := args[0]
	if err := validation.ValidateCollection(collection); err != nil {
		return err
	}
	if err := c.requireAuth(ctx); err != nil {
		return err
	}

	c.monitor.CheckNow(ctx)

	rows, err := c.dataService.Select(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", collection, err)
	}

	if len(rows) == 0 {
		c.io.Printf("No records in %s\n", collection)
		return nil
	}

	c.io.Printf("=== %s (%d) ===\n", collection, len(rows))
	for _, rec := range rows {
		c.io.Println()
		c.printRecord(rec)
	}

	return nil
}

func (c *Cli) runAdd(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: dentkeeper add <collection> field=value ...")
	}
	collection := args[0]
	if err := validation.ValidateCollection(collection); err != nil {
		return err
	}
	if err := c.requireAuth(ctx); err != nil {
		return err
	}

	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}

	c.monitor.CheckNow(ctx)

	rec, err := c.dataService.Insert(ctx, collection, fields)
	if err != nil {
		return fmt.Errorf("failed to add record: %w", err)
	}

	c.io.Println("✓ Record created")
	c.printRecord(rec)
	if rec.Dirty() {
		c.io.Println()
		c.io.Println("Server is unreachable, the record will be synchronized later.")
	}

	return nil
}

func (c *Cli) runUpdate(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: dentkeeper update <collection> <column> <value> field=value ...")
	}
	collection, column, value := args[0], args[1], args[2]
	if err := validation.ValidateCollection(collection); err != nil {
		return err
	}
	if err := c.requireAuth(ctx); err != nil {
		return err
	}

	patch, err := parseFields(args[3:])
	if err != nil {
		return err
	}

	c.monitor.CheckNow(ctx)

	rec, err := c.dataService.Update(ctx, collection, patch, column, value)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	c.io.Println("✓ Record updated")
	c.printRecord(rec)
	if rec.Dirty() {
		c.io.Println()
		c.io.Println("Server is unreachable, the change will be synchronized later.")
	}

	return nil
}

func (c *Cli) runDelete(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: dentkeeper delete <collection> <column> <value>")
	}
	collection, column, value := args[0], args[1], args[2]
	if err := validation.ValidateCollection(collection); err != nil {
		return err
	}
	if err := c.requireAuth(ctx); err != nil {
		return err
	}

	c.monitor.CheckNow(ctx)

	if err := c.dataService.Delete(ctx, collection, column, value); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	c.io.Println("✓ Record deleted")

	return nil
}
