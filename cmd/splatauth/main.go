// splatauth keeps a SplatNet 3 token set fresh: it logs in to a Nintendo
// Account once and then mints gtokens and bullet tokens on demand.
//
//	splatauth login              log in and store the session token
//	splatauth token <kind>       print a valid token, regenerating as needed
//	splatauth status             show what is stored and when it expires
//	splatauth env                print SN3S_* export lines
//	splatauth watch              print token events from a shared redis store
//	splatauth refresh            keep the derived tokens fresh until interrupted
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/aussiebroadwan/splatauth/internal/app"
	"github.com/aussiebroadwan/splatauth/internal/events"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
)

var commands = []string{"login", "token", "status", "env", "watch", "refresh"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("splatauth", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	cfg.BindFlags(flagSet)
	force := flagSet.Bool("force", false, "regenerate the token even if it is still valid")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage(stderr, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return fmt.Errorf("no command given")
	}

	command := rest[0]
	var kind tokens.Kind
	switch command {
	case "token":
		if len(rest) != 2 {
			return fmt.Errorf("usage: splatauth token <session|gtoken|bullet>")
		}
		if kind, err = tokens.ParseKind(rest[1]); err != nil {
			return err
		}
	case "login", "status", "env", "watch", "refresh":
	default:
		return fmt.Errorf("unknown command %q (one of %s)", command, strings.Join(commands, ", "))
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	switch command {
	case "login":
		t, err := application.Login(ctx, func(ctx context.Context, loginURL string) (string, error) {
			return readRedirect(stdin, stderr, loginURL)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Logged in, session token %s stored.\n", t.Fingerprint())

	case "token":
		t, err := application.Token(ctx, kind, *force)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, t.Value())

	case "status":
		now := time.Now()
		return app.WriteStatus(stdout, application.Status(now), now)

	case "env":
		return application.Env(ctx, stdout)

	case "watch":
		enc := json.NewEncoder(stdout)
		err := application.Watch(ctx, func(ev events.TokenRefreshed) {
			_ = enc.Encode(ev)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	case "refresh":
		return application.Run(ctx)
	}
	return nil
}

// readRedirect shows the login URL and reads the pasted redirect URI. On a
// terminal the input is hidden; the URI carries a single-use credential.
func readRedirect(stdin *os.File, prompt io.Writer, loginURL string) (string, error) {
	fmt.Fprintf(prompt, "Open this URL and log in:\n\n%s\n\n", loginURL)
	fmt.Fprintln(prompt, `Right-click "Select this account", copy the link and paste it here.`)
	fmt.Fprint(prompt, "Redirect URI: ")

	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		line, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(line)), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "usage: splatauth [flags] <%s>\n\n", strings.Join(commands, "|"))
	fmt.Fprintln(w, "  login          log in to a Nintendo Account and store the session token")
	fmt.Fprintln(w, "  token <kind>   print a valid session, gtoken or bullet token")
	fmt.Fprintln(w, "  status         show stored tokens and their expiry")
	fmt.Fprintln(w, "  env            print SN3S_* export lines")
	fmt.Fprintln(w, "  watch          print token events published through the redis store")
	fmt.Fprintln(w, "  refresh        regenerate tokens before they expire until interrupted")
	fmt.Fprintln(w, "\nflags:")
	fmt.Fprint(w, flagSet.FlagUsages())
}
