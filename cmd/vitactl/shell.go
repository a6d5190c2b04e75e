package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/vitadrop/vitaauth/client"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// api is the part of *client.Client the shell drives.
type api interface {
	Login(ctx context.Context, email, password string) (*client.User, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*client.User, error)
	Session(ctx context.Context) (*client.Session, error)
	Refresh(ctx context.Context) (string, error)
	Coordinator() *client.Coordinator
}

type shell struct {
	api api

	mu  sync.Mutex
	out io.Writer
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

const help = `commands:
  login <email>   log in, the password is read without echo
  profile         show your profile
  session         show the verified session
  refresh         force a token refresh
  burst <n>       run n concurrent profile calls
  logout          end the session
  exit | quit     leave
`

// run reads commands until EOF, exit, or ctx is done. Each command gets its
// own timeout.
func (s *shell) run(ctx context.Context, scanner *bufio.Scanner, timeout time.Duration) {
	for {
		s.printf("vita> ")
		if ctx.Err() != nil || !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return
		}

		cmdCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := s.exec(cmdCtx, fields[0], fields[1:]); err != nil {
			s.printf("error: %s\n", describe(err))
		}
		cancel()
	}
}

func (s *shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		s.printf("%s", help)
		return nil
	case "login":
		return s.login(ctx, args)
	case "profile":
		u, err := s.api.Profile(ctx)
		if err != nil {
			return err
		}
		s.printUser(u)
		return nil
	case "session":
		sess, err := s.api.Session(ctx)
		if err != nil {
			return err
		}
		s.printf("user %s role %s status %s\n", sess.UserID, sess.Role, sess.Status)
		return nil
	case "refresh":
		if _, err := s.api.Refresh(ctx); err != nil {
			return err
		}
		s.printf("token refreshed\n")
		return nil
	case "burst":
		return s.burst(ctx, args)
	case "logout":
		if err := s.api.Logout(ctx); err != nil {
			return err
		}
		s.printf("logged out\n")
		return nil
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (s *shell) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: login <email>")
	}
	s.printf("password: ")
	pw, err := readPassword()
	s.printf("\n")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	u, err := s.api.Login(ctx, args[0], string(pw))
	clear(pw)
	if err != nil {
		return err
	}
	s.printf("logged in as %s (%s)\n", u.FullName, u.Role)
	return nil
}

// burst fires n profile calls at once. With an expired access token they
// all share one refresh.
func (s *shell) burst(ctx context.Context, args []string) error {
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("burst: %q is not a positive count", args[0])
		}
		n = v
	}

	before := s.api.Coordinator().Refreshes()
	start := time.Now()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
		first  error
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.api.Profile(ctx); err != nil {
				mu.Lock()
				failed++
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.printf("%d calls in %s: %d ok, %d failed, %d refresh(es)\n",
		n, time.Since(start).Round(time.Millisecond), n-failed, failed,
		s.api.Coordinator().Refreshes()-before)
	if first != nil {
		return first
	}
	return nil
}

func (s *shell) printUser(u *client.User) {
	s.printf("%s <%s>\n  id %s\n  role %s, status %s\n", u.FullName, u.Email, u.ID, u.Role, u.Status)
	if u.BloodGroup != "" {
		s.printf("  blood group %s\n", u.BloodGroup)
	}
}

func describe(err error) string {
	if errors.Is(err, client.ErrLoginRequired) {
		return "session expired, please log in again"
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return apiErr.Error()
	}
	return err.Error()
}
