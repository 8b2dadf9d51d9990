package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/conduit/internal/agent"
	"github.com/rahul/conduit/internal/gateway"
	"github.com/rahul/conduit/internal/observability"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat gateways and the task scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dashboard := observability.IsTerminal()
	if dashboard {
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
	} else {
		observability.PrintBanner()
	}

	// Route all log output through the terminal lock so it never interrupts
	// the dashboard's cursor save/restore sequence.
	logOut := observability.NewTermWriter()
	log.SetOutput(logOut)

	router := gateway.NewRouter()
	a, err := newApp(cfg, logOut, router)
	if err != nil {
		return err
	}
	defer a.Close()

	brain, err := a.assistant()
	if err != nil {
		return err
	}

	if tg, ok := cfg.Gateway("telegram"); ok {
		g, err := gateway.NewTelegramGateway(tg.Token, brain)
		if err != nil {
			return err
		}
		router.Add(g)
	}
	if dc, ok := cfg.Gateway("discord"); ok {
		g, err := gateway.NewDiscordGateway(dc.Token, brain)
		if err != nil {
			return err
		}
		router.Add(g)
	}
	if len(router.Prefixes()) == 0 {
		return errors.New("no gateway is enabled; configure telegram or discord")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(ctx)
	})

	if cfg.Scheduler.Enabled {
		sched, err := agent.NewScheduler(a.store, router, cfg.Scheduler.OverdueCron, cfg.Scheduler.DigestChat)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return sched.Start(ctx)
		})
	}

	g.Go(func() error {
		heartbeat := time.NewTicker(30 * time.Second)
		defer heartbeat.Stop()
		status := time.NewTicker(time.Second)
		defer status.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-heartbeat.C:
				observability.Heartbeat()
				a.logger.LogHeartbeat()
			case <-status.C:
				if dashboard {
					observability.PrintLiveStatus()
				}
			}
		}
	})

	log.Printf("Conduit is listening on %v", router.Prefixes())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	log.Println("Conduit stopped.")
	return nil
}
