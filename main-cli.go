//go:build !windows || dev

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/integrations"
)

const help = "Commands: start | stop | reload | status | check | reconcile | token <subject> [role] | paths | quit"

func main() {
	a, err := newApp(true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}
	log := a.log

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.startHTTP()

	if a.cfg.AutoStart {
		if err := a.syncer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("auto start failed")
		} else {
			log.Info().Str("version", ver).Msg("syncer running")
		}
	}

	// stdin loop; a closed stdin (service mode) waits for a signal instead
	fmt.Println("stockhub", ver)
	fmt.Println(help)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			a.close()
			return
		case l, ok := <-lines:
			if !ok {
				<-ctx.Done()
				a.close()
				return
			}
			line = l
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "start":
			if err := a.syncer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("start failed")
				fmt.Println("start failed:", err)
				continue
			}
			fmt.Println("started")
		case "stop":
			a.syncer.Stop()
			fmt.Println("stopped")
		case "reload":
			if err := a.reload(ctx); err != nil {
				log.Error().Err(err).Msg("reload failed")
				fmt.Println("reload failed:", err)
				continue
			}
			fmt.Println("config reloaded")
		case "status":
			st := a.syncer.Status()
			state := "STOPPED"
			if st.Running {
				state = "RUNNING"
			}
			fmt.Printf("status: %s, integrations: %v (registered: %v)\n", state, st.Integrations, integrations.Names())
			fmt.Printf("heartbeats: %d, low stock levels: %d, pending shop sync: %d, stream subscribers: %d\n",
				st.Heartbeats, st.LowStock, st.PendingSync, a.hub.Subscribers())
		case "check":
			v, err := a.ledger.CheckInvariants(ctx)
			if err != nil {
				fmt.Println("check failed:", err)
				continue
			}
			if len(v) == 0 {
				fmt.Println("ledger consistent")
				continue
			}
			for _, x := range v {
				fmt.Printf("  item %s level %s: %s\n", x.InventoryItemID, x.StockLevelID, x.Problem)
			}
		case "reconcile":
			n, err := a.ledger.ReconcileItemSummaries(ctx)
			if err != nil {
				fmt.Println("reconcile failed:", err)
				continue
			}
			fmt.Println("item summaries updated:", n)
		case "token":
			if len(fields) < 2 {
				fmt.Println("usage: token <subject> [admin|staff|viewer]")
				continue
			}
			role := auth.RoleStaff
			if len(fields) > 2 {
				role = auth.Role(strings.ToLower(fields[2]))
			}
			tok, err := a.issueToken(fields[1], role, 24*time.Hour)
			if err != nil {
				fmt.Println("token failed:", err)
				continue
			}
			fmt.Println(tok)
		case "paths":
			fmt.Println("logs:  ", a.logPath)
			fmt.Println("config:", a.cfgPath)
			fmt.Println("db:    ", a.dbh.Path)
		case "quit", "exit":
			cancel()
			a.close()
			time.Sleep(50 * time.Millisecond)
			return
		default:
			fmt.Println("unknown command.", help)
		}
	}
}
