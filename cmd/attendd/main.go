package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/norm/attend-daemon/internal/config"
	"github.com/norm/attend-daemon/internal/ledger"
	logpkg "github.com/norm/attend-daemon/internal/log"
	"github.com/norm/attend-daemon/internal/phase"
	"github.com/norm/attend-daemon/internal/recognize"
	"github.com/norm/attend-daemon/internal/roster"
	"github.com/norm/attend-daemon/internal/session"
	"github.com/norm/attend-daemon/internal/timetable"
	"github.com/norm/attend-daemon/internal/trigger"
	"github.com/norm/attend-daemon/internal/watch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "attendd",
		Short:         "Timetable-driven attendance capture daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config TOML path")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newTodayCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the attendance daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := cfgpkg.Load(*configPath)
			if err != nil {
				return err
			}
			return runDaemon(cfg)
		},
	}
}

func runDaemon(cfg *cfgpkg.Config) error {
	logger := logpkg.NewEventLog(cfg.LogDir)

	dir, err := roster.LoadFile(cfg.RosterPath)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	log.Printf("roster loaded: %d identities", dir.Len())

	sched := trigger.New(trigger.Options{
		Ledger: ledger.NewStore(cfg.AttendanceDir),
		Factory: func() (recognize.Source, error) {
			return recognize.NewFeedSource(cfg.FeedPath, cfg.FeedPoll())
		},
		Directory: dir,
		Logger:    logger,
		Session: session.Config{
			MaxDistance: cfg.MaxDistance,
			MinPresent:  cfg.MinPresent(),
		},
		PullTimeout:   cfg.PullTimeout(),
		BoundaryGrace: cfg.BoundaryGrace(),
	})

	if err := sched.LoadSchedule(cfg.TimetablePath); err != nil {
		return fmt.Errorf("load timetable: %w", err)
	}
	log.Printf("timetable loaded: %s", sched.Status(time.Now()))

	reload := func() {
		_ = logger.Log(logpkg.NewEvent(logpkg.EventTypeTimetableChanged, "").WithDetail(cfg.TimetablePath))
		if err := sched.LoadSchedule(cfg.TimetablePath); err != nil {
			log.Printf("warning: timetable reload failed, previous schedule stays active: %v", err)
			return
		}
		log.Printf("timetable reloaded: %s", sched.Status(time.Now()))
	}
	watcher, err := watch.New(cfg.TimetablePath, reload)
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	go func() {
		if err := watcher.Start(ctx); err != nil {
			log.Printf("watcher: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			sched.Stop(time.Now())
			return nil
		case ev := <-sched.Events():
			printEvent(ev)
		}
	}
}

func printEvent(ev session.Event) {
	switch ev.Type {
	case session.EventStarted:
		log.Printf("session %q: recording started", ev.Label)
	case session.EventPresenceConfirmed:
		log.Printf("session %q: %s (%s) present since %s",
			ev.Label, ev.DisplayName, ev.Identity, ev.FirstSeenAt.Format("15:04:05"))
	case session.EventEnded:
		verb := "completed"
		if ev.Cancelled {
			verb = "cancelled"
		}
		log.Printf("session %q: %s, %d identities recorded", ev.Label, verb, len(ev.Durations))
		for identity, secs := range ev.Durations {
			log.Printf("  %s: %ds", identity, secs)
		}
	}
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [timetable.csv]",
		Short: "Check a timetable CSV without loading it into a daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := timetablePath(*configPath, args)
			if err != nil {
				return err
			}
			tt, err := timetable.LoadFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: ok, %d session windows\n", path, tt.Len())
			return nil
		},
	}
}

func newTodayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "today [timetable.csv]",
		Short: "Show today's session windows and the current phase",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := timetablePath(*configPath, args)
			if err != nil {
				return err
			}
			tt, err := timetable.LoadFile(path)
			if err != nil {
				return err
			}

			now := time.Now()
			windows := tt.Sessions(timetable.DayIndex(now.Weekday()))
			if len(windows) == 0 {
				fmt.Println("no sessions scheduled today")
			}
			for _, w := range windows {
				line := fmt.Sprintf("%s-%s  %s", w.Start, w.End, w.Name)
				if w.HasBreak {
					line += fmt.Sprintf("  (break %s-%s)", w.BreakStart, w.BreakEnd)
				}
				fmt.Println(line)
			}
			fmt.Printf("now: %s\n", phase.Current(tt, now).Status())
			return nil
		},
	}
}

func timetablePath(configPath string, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return "", err
	}
	return cfg.TimetablePath, nil
}
