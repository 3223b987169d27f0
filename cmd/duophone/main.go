package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/duophone/duophone/internal/audio"
	"github.com/duophone/duophone/internal/config"
	"github.com/duophone/duophone/internal/sip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting duophone",
		"registrar", cfg.RegistrarServer(),
		"local_sip_port", cfg.LocalSIPPort,
		"rtp_port_range", fmt.Sprintf("%d-%d", cfg.RTPPortMin, cfg.RTPPortMax),
	)

	if err := audio.Init(); err != nil {
		slog.Error("failed to initialize audio subsystem", "error", err)
		os.Exit(1)
	}
	defer audio.Terminate()

	ua, err := sip.New(cfg)
	if err != nil {
		slog.Error("failed to build user agent", "error", err)
		os.Exit(1)
	}
	if err := ua.Init(); err != nil {
		slog.Error("failed to initialize sip transport", "error", err)
		os.Exit(1)
	}

	go logEvents(ua)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go runREPL(ua, cfg, done)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case <-done:
		slog.Info("stdin closed, shutting down")
	}

	if ua.Registered() {
		if err := ua.Unregister(cfg.RegistrarServer(), cfg.AccountUser, cfg.AccountPass); err != nil {
			slog.Warn("unregister on shutdown failed", "error", err)
		}
	}
	slog.Info("duophone stopped")
}

// logEvents prints every event from the UserAgent's boundary stream.
func logEvents(ua *sip.UserAgent) {
	for ev := range ua.Events() {
		switch ev.Kind {
		case sip.EventInitialized:
			slog.Info("event: initialized")
		case sip.EventRegistrationState:
			slog.Info("event: registration_state", "registered", ev.Registered)
		case sip.EventCallState:
			slog.Info("event: call_state", "state", ev.CallState)
		case sip.EventError:
			slog.Error("event: error", "error", ev.Err)
		}
	}
}

// runREPL drives the line-oriented CLI standing in for the GUI collaborator:
// register, call <number>, hangup, unregister, quit.
func runREPL(ua *sip.UserAgent, cfg *config.Config, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("duophone ready. commands: register, call <number>, hangup, unregister, quit")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "register":
			if err := ua.Register(cfg.RegistrarServer(), cfg.AccountUser, cfg.AccountPass); err != nil {
				fmt.Printf("register failed: %v\n", err)
			}
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <number>")
				continue
			}
			if err := ua.MakeCall(fields[1]); err != nil {
				fmt.Printf("call failed: %v\n", err)
			}
		case "hangup":
			if err := ua.HangupCall(); err != nil {
				fmt.Printf("hangup failed: %v\n", err)
			}
		case "unregister":
			if err := ua.Unregister(cfg.RegistrarServer(), cfg.AccountUser, cfg.AccountPass); err != nil {
				fmt.Printf("unregister failed: %v\n", err)
			}
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}
