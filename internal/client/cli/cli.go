// Package cli реализует команды терминального клиента DentKeeper
package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/auth"
	"github.com/iudanet/dentkeeper/internal/client/connectivity"
	"github.com/iudanet/dentkeeper/internal/client/data"
	"github.com/iudanet/dentkeeper/internal/client/iocli"
	"github.com/iudanet/dentkeeper/internal/client/sync"
	"github.com/iudanet/dentkeeper/internal/client/worker"
	"github.com/iudanet/dentkeeper/internal/models"
)

type Cli struct {
	io          iocli.IO
	apiClient   api.ClientAPI
	authService auth.Service
	dataService data.Service
	syncService sync.Service
	monitor     *connectivity.Monitor
	worker      *worker.Worker
}

func New(io iocli.IO, apiClient api.ClientAPI, authService auth.Service, dataService data.Service, syncService sync.Service, monitor *connectivity.Monitor, syncWorker *worker.Worker) *Cli {
	return &Cli{
		io:          io,
		apiClient:   apiClient,
		authService: authService,
		dataService: dataService,
		syncService: syncService,
		monitor:     monitor,
		worker:      syncWorker,
	}
}

func PrintUsage() {
	fmt.Println("DentKeeper Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dentkeeper [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version            Show version information")
	fmt.Println("  --server URL         Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH            Path to local database (default: dentkeeper-client.db)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  register                                 Register new staff account")
	fmt.Println("  login                                    Login to server")
	fmt.Println("  logout                                   Delete local session")
	fmt.Println("  status                                   Show session and sync status")
	fmt.Println("  sync                                     Synchronize local data with server")
	fmt.Println("  list <collection>                        List records of a collection")
	fmt.Println("  add <collection> field=value ...         Create a record")
	fmt.Println("  update <collection> <column> <value> field=value ...")
	fmt.Println("                                           Patch matching records")
	fmt.Println("  delete <collection> <column> <value>     Delete matching records")
	fmt.Println("  watch                                    Run in foreground with background sync")
	fmt.Println()
	fmt.Printf("Collections: %s\n", strings.Join(models.Collections(), ", "))
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  dentkeeper register")
	fmt.Println("  dentkeeper login")
	fmt.Println("  dentkeeper list patients")
	fmt.Println("  dentkeeper add patients full_name='Анна Иванова' phone=+79000000000")
	fmt.Println("  dentkeeper update appointments id a1b2c3 status=confirmed")
	fmt.Println("  dentkeeper delete invoices id a1b2c3")
	fmt.Println("  dentkeeper --server https://clinic.example.com watch")
}

// parseFields разбирает аргументы вида field=value в map.
// Значения остаются строками: типизация полей — забота сервера и UI.
func parseFields(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one field=value argument is required")
	}

	fields := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q, expected field=value", arg)
		}
		fields[name] = value
	}
	return fields, nil
}

// printRecord печатает запись в виде отсортированных пар ключ-значение
func (c *Cli) printRecord(rec *models.Record) {
	c.io.Printf("  id: %s\n", rec.ID)

	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c.io.Printf("  %s: %v\n", name, rec.Fields[name])
	}

	if rec.Dirty() {
		c.io.Printf("  (pending sync: %s)\n", rec.Action)
	}
}
