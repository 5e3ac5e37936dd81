// Command kvauth-sessions inspects and benchmarks the session store.
//
//	kvauth-sessions list <user-id>
//	kvauth-sessions revoke <user-id> <session-id>
//	kvauth-sessions revoke-all <user-id> [-keep <session-id>]
//	kvauth-sessions bench [-users 1000 -per-user 5 -ops 100000]
//
// The Redis address comes from -redis-addr or KVAUTH_REDIS_ADDR. bench
// falls back to an in-process miniredis when neither is set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MrEthical07/kvauth/kv"
	"github.com/MrEthical07/kvauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const usage = `usage:
  kvauth-sessions list <user-id>
  kvauth-sessions revoke <user-id> <session-id>
  kvauth-sessions revoke-all [-keep <session-id>] <user-id>
  kvauth-sessions bench [flags]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "list", "revoke", "revoke-all":
		err = runAdmin(context.Background(), os.Stdout, cmd, args)
	case "bench":
		err = runBench(args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAdmin(ctx context.Context, out io.Writer, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	redisAddr := fs.String("redis-addr", "", "redis address; if empty, KVAUTH_REDIS_ADDR env is used")
	keep := fs.String("keep", "", "session id to keep (revoke-all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("KVAUTH_REDIS_ADDR")
	}
	if addr == "" {
		return errors.New("a redis address is required")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	return admin(ctx, out, session.NewStore(kv.NewRedis(client), 0), cmd, fs.Args(), *keep)
}

func admin(ctx context.Context, out io.Writer, store *session.Store, cmd string, args []string, keep string) error {
	switch {
	case cmd == "list" && len(args) == 1:
		sessions, err := store.ListByUser(ctx, args[0])
		if err != nil {
			return err
		}
		printSessions(out, sessions)
		return nil
	case cmd == "revoke" && len(args) == 2:
		existing, err := store.Get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("session %s not found", args[1])
		}
		if err := store.Delete(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "revoked %s\n", args[1])
		return nil
	case cmd == "revoke-all" && len(args) == 1:
		var err error
		if keep != "" {
			err = store.DeleteOthersByUser(ctx, args[0], keep)
		} else {
			err = store.DeleteAllByUser(ctx, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "revoked sessions of %s\n", args[0])
		return nil
	}
	return errors.New(usage)
}

func printSessions(out io.Writer, sessions []session.Session) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCREATED\tEXPIRES\tIP\tCOUNTRY\tUSER AGENT")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID,
			s.CreatedTime().UTC().Format(time.RFC3339),
			s.ExpiresTime().UTC().Format(time.RFC3339),
			s.IPAddress,
			s.Country,
			s.UserAgent,
		)
	}
	_ = tw.Flush()
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("KVAUTH_REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}
