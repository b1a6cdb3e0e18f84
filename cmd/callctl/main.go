// Command callctl drives the call-support handshake from a terminal: a member
// requests a call from a trainer and waits, a trainer answers incoming calls.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tariel-x/callsupport/internal/callflow"
	"github.com/tariel-x/callsupport/internal/callsupport"
	"github.com/tariel-x/callsupport/internal/config"
	"github.com/tariel-x/callsupport/internal/models"
	"github.com/tariel-x/callsupport/internal/notify"
)

const usage = `usage: callctl <command> [flags]

commands:
  register --name NAME [--role member|trainer]   create a user and print its credentials
  call --trainer ID                              request a call and wait for the trainer
  answer [--auto accept|reject]                  wait for incoming calls and answer them

environment:
  CALLSUPPORT_URL       server base URL (default http://localhost:8080)
  CALLSUPPORT_TOKEN     bearer token
  CALLSUPPORT_USER_ID   id of the token's user
  CALLSUPPORT_NAME      display name to log in with when no token is set
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.LoadClient()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "register":
		err = runRegister(ctx, cfg, os.Args[2:])
	case "call":
		err = runCall(ctx, cfg, logger, os.Args[2:])
	case "answer":
		err = runAnswer(ctx, cfg, logger, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runRegister(ctx context.Context, cfg *config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", cfg.DisplayName, "display name")
	role := fs.String("role", string(models.RoleMember), "member or trainer")
	_ = fs.Parse(args)

	if *name == "" {
		return errors.New("--name is required")
	}
	s, err := callsupport.Register(ctx, cfg.ServerURL, *name, models.UserRole(*role))
	if err != nil {
		return err
	}
	fmt.Printf("export CALLSUPPORT_TOKEN=%s\nexport CALLSUPPORT_USER_ID=%s\n", s.Token, s.User.ID)
	return nil
}

// session resolves the credentials of the current user, logging in by
// display name when no token is configured.
func session(ctx context.Context, cfg *config.ClientConfig) (token, userID string, err error) {
	if err := cfg.Validate(); err != nil {
		return "", "", err
	}
	if cfg.Token != "" && cfg.UserID != "" {
		return cfg.Token, cfg.UserID, nil
	}
	s, err := callsupport.Login(ctx, cfg.ServerURL, cfg.DisplayName)
	if err != nil {
		return "", "", fmt.Errorf("login as %q: %w", cfg.DisplayName, err)
	}
	return s.Token, s.User.ID, nil
}

func openChannel(ctx context.Context, cfg *config.ClientConfig, token string, logger *slog.Logger) (*notify.WSChannel, error) {
	ch, err := notify.NewWSChannel(cfg.ServerURL, token, logger)
	if err != nil {
		return nil, err
	}
	if err := ch.Open(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

// stdoutToaster prints toasts for a terminal user.
type stdoutToaster struct{}

func (stdoutToaster) Toast(kind callflow.ToastKind, message string) {
	fmt.Printf("[%s] %s\n", kind, message)
}

func runCall(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	trainerID := fs.String("trainer", "", "trainer user id")
	_ = fs.Parse(args)

	token, userID, err := session(ctx, cfg)
	if err != nil {
		return err
	}

	ch, err := openChannel(ctx, cfg, token, logger)
	if err != nil {
		return err
	}
	defer ch.Close()

	client := callsupport.New(cfg.ServerURL, callsupport.BearerToken(token), callsupport.WithLogger(logger))

	closed := make(chan callflow.CloseReason, 1)
	popup := callflow.NewPopup(userID, client, ch,
		callflow.WithPopupToaster(stdoutToaster{}),
		callflow.WithPopupLogger(logger),
		callflow.WithOnClose(func(roomID string, reason callflow.CloseReason) {
			closed <- reason
		}),
	)
	defer popup.Close()

	accepted := ch.Subscribe(4)
	defer accepted.Close()

	room, err := callflow.Dial(ctx, client, popup, *trainerID)
	if err != nil {
		return err
	}
	fmt.Printf("Waiting for the trainer to answer (room %s). Press Ctrl+C to cancel.\n", room.ID)

	for {
		select {
		case reason := <-closed:
			if reason == callflow.CloseRejected {
				fmt.Println("The trainer declined the call.")
			} else {
				fmt.Println("Call request cancelled.")
			}
			return nil
		case ev := <-accepted.Events():
			if ev.Type == models.EventCallAccepted && ev.RoomID == room.ID {
				popup.Hide()
				fmt.Println("The trainer accepted the call.")
				return nil
			}
		case <-ch.Done():
			return errors.New("notification channel closed by the server")
		case <-ctx.Done():
			cancelled, err := cancelWaiting(popup)
			if err != nil {
				return fmt.Errorf("cancel call: %w", err)
			}
			if !cancelled {
				return nil
			}
			fmt.Println("Call request cancelled.")
			return nil
		}
	}
}

// cancelWaiting cancels the popup's room on the caller's behalf. It reports
// false when the popup has already let go of its room, e.g. after a
// call-rejected event, without calling the service.
func cancelWaiting(popup *callflow.Popup) (bool, error) {
	if popup.RoomID() == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := popup.Cancel(ctx); err != nil {
		if errors.Is(err, callflow.ErrMissingRoom) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func runAnswer(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("answer", flag.ExitOnError)
	auto := fs.String("auto", "", "answer every call automatically: accept or reject")
	_ = fs.Parse(args)

	switch *auto {
	case "", "accept", "reject":
	default:
		return fmt.Errorf("--auto must be accept or reject, got %q", *auto)
	}

	token, userID, err := session(ctx, cfg)
	if err != nil {
		return err
	}

	ch, err := openChannel(ctx, cfg, token, logger)
	if err != nil {
		return err
	}
	defer ch.Close()

	client := callsupport.New(cfg.ServerURL, callsupport.BearerToken(token), callsupport.WithLogger(logger))

	invitations := make(chan *callflow.IncomingCall, 1)
	ringer := callflow.NewRinger(userID, client, ch, func(screen *callflow.IncomingCall) {
		invitations <- screen
	}, callflow.WithRingerToaster(stdoutToaster{}), callflow.WithRingerLogger(logger))
	ringer.Start(ctx)
	defer ringer.Stop()

	answers := readLines(os.Stdin)
	fmt.Println("Waiting for incoming calls. Press Ctrl+C to stop.")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return errors.New("notification channel closed by the server")
		case screen := <-invitations:
			if err := answer(ctx, screen, *auto, answers); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("answer failed", "room_id", screen.Invitation().RoomID, "error", err)
			}
			ringer.Release(screen)
		}
	}
}

// answer prompts for an accept/reject decision until the screen resolves.
func answer(ctx context.Context, screen *callflow.IncomingCall, auto string, answers <-chan string) error {
	inv := screen.Invitation()
	fmt.Printf("Incoming call from %s (room %s)\n", inv.CallerName, inv.RoomID)

	for {
		prompt := screen.Prompt()
		if prompt == nil {
			return nil
		}

		choice := auto
		if choice == "" {
			fmt.Print("[a]ccept or [r]eject? ")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok := <-answers:
				if !ok {
					return errors.New("stdin closed")
				}
				choice = line
			}
		}

		var err error
		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "a", "accept":
			if err = prompt.OnAccept(ctx); err == nil {
				fmt.Println("Call accepted.")
				return nil
			}
		case "r", "reject":
			if err = prompt.OnReject(ctx); err == nil {
				fmt.Println("Call rejected.")
				return nil
			}
		default:
			continue
		}
		if auto != "" {
			return err
		}
	}
}

func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}
