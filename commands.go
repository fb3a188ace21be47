package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/urfave/cli"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/etcdsession/pkg/config"
	"github.com/khenidak/etcdsession/pkg/session"
	"github.com/khenidak/etcdsession/pkg/types"
)

// connects a session for a client command. The returned context is
// canceled on SIGINT/SIGTERM.
func connect(c *config.Config) (*session.Session, context.Context, error) {
	if err := c.InitRuntime(); err != nil {
		return nil, nil, err
	}

	s, err := session.New(c)
	if err != nil {
		return nil, nil, err
	}

	if err := s.Connect(c.Runtime.Context); err != nil {
		return nil, nil, err
	}
	return s, c.Runtime.Context, nil
}

func requireArgs(cliContext *cli.Context, n int, usage string) error {
	if cliContext.NArg() != n {
		return fmt.Errorf("usage: %s %s", cliContext.Command.Name, usage)
	}
	return nil
}

func getCommand(c *config.Config) cli.Command {
	return cli.Command{
		Name:  "get",
		Usage: "prints the value of a key",
		Action: func(cliContext *cli.Context) error {
			if err := requireArgs(cliContext, 1, "KEY"); err != nil {
				return err
			}
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Close()

			kv, err := s.Get(ctx, cliContext.Args().Get(0))
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", kv.Value)
			klogv2.V(4).Infof("%s version:%v mod-revision:%v", kv.Key, kv.Version, kv.ModRevision)
			return nil
		},
	}
}

func putCommand(c *config.Config) cli.Command {
	ephemeral := false
	return cli.Command{
		Name:  "put",
		Usage: "writes a key",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:        "ephemeral",
				Usage:       "bind the key to the session lease. it goes away when the command exits and the lease lapses",
				Destination: &ephemeral,
			},
		},
		Action: func(cliContext *cli.Context) error {
			if err := requireArgs(cliContext, 2, "KEY VALUE"); err != nil {
				return err
			}
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Disconnect()

			return s.Put(ctx, cliContext.Args().Get(0), []byte(cliContext.Args().Get(1)), ephemeral)
		},
	}
}

func deleteCommand(c *config.Config) cli.Command {
	revision := int64(0)
	return cli.Command{
		Name:  "delete",
		Usage: "deletes a key",
		Flags: []cli.Flag{
			cli.Int64Flag{
				Name:        "revision",
				Usage:       "delete only at this revision (not supported, reserved)",
				Destination: &revision,
			},
		},
		Action: func(cliContext *cli.Context) error {
			if err := requireArgs(cliContext, 1, "KEY"); err != nil {
				return err
			}
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Close()

			return s.DeleteRevision(ctx, cliContext.Args().Get(0), revision)
		},
	}
}

func listCommand(c *config.Config) cli.Command {
	return cli.Command{
		Name:  "list",
		Usage: "lists every key under a prefix",
		Action: func(cliContext *cli.Context) error {
			if err := requireArgs(cliContext, 1, "PREFIX"); err != nil {
				return err
			}
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Close()

			kvs, err := s.List(ctx, cliContext.Args().Get(0))
			if err != nil {
				return err
			}
			for _, kv := range kvs {
				fmt.Printf("%s\t%s\t(%s, version %v)\n", kv.Key, kv.Value, humanize.Bytes(uint64(len(kv.Value))), kv.Version)
			}
			return nil
		},
	}
}

func watchCommand(c *config.Config) cli.Command {
	count := 0
	return cli.Command{
		Name:  "watch",
		Usage: "prints changes under a prefix until interrupted",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:        "count",
				Usage:       "stop after this many events. 0 means never",
				Destination: &count,
			},
		},
		Action: func(cliContext *cli.Context) error {
			if err := requireArgs(cliContext, 1, "PREFIX"); err != nil {
				return err
			}
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Close()
			keepAlive := s.StartKeepAlive(ctx)

			seen := 0
			err = s.Watch(ctx, cliContext.Args().Get(0), func(events []types.Event) bool {
				for _, e := range events {
					fmt.Printf("%s %s %s\n", e.Type, e.Key, e.Value)
				}
				seen = seen + len(events)
				return count > 0 && seen >= count
			})
			if err == context.Canceled {
				return nil
			}
			if err != nil {
				return err
			}
			return drainKeepAlive(keepAlive)
		},
	}
}

func lockCommand(c *config.Config) cli.Command {
	timeout := 10 * time.Second
	hold := time.Duration(0)
	return cli.Command{
		Name:  "lock",
		Usage: "acquires a lock, holds it then releases it",
		Flags: []cli.Flag{
			cli.DurationFlag{
				Name:        "timeout",
				Value:       timeout,
				Destination: &timeout,
			},
			cli.DurationFlag{
				Name:        "hold",
				Usage:       "how long to hold the lock. 0 holds until interrupted",
				Destination: &hold,
			},
		},
		Action: func(cliContext *cli.Context) error {
			if err := requireArgs(cliContext, 1, "NAME"); err != nil {
				return err
			}
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Close()
			keepAlive := s.StartKeepAlive(ctx)

			name := cliContext.Args().Get(0)
			start := time.Now()
			if err := s.Lock(ctx, name, timeout); err != nil {
				return err
			}
			fmt.Printf("acquired %s after %v\n", name, time.Since(start).Round(time.Millisecond))

			holdCtx := ctx
			if hold > 0 {
				var cancel context.CancelFunc
				holdCtx, cancel = context.WithTimeout(ctx, hold)
				defer cancel()
			}
			select {
			case <-holdCtx.Done():
			case err := <-keepAlive:
				// lease is gone, so is the lock
				return err
			}

			return s.Unlock(context.Background(), name)
		},
	}
}

func keepAliveCommand(c *config.Config) cli.Command {
	once := false
	return cli.Command{
		Name:  "keepalive",
		Usage: "grants a lease and keeps it alive until interrupted",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:        "once",
				Usage:       "perform a single renewal and exit",
				Destination: &once,
			},
		},
		Action: func(cliContext *cli.Context) error {
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Close()

			leaseID := s.LeaseID()
			fmt.Printf("lease %x granted, expires %s\n", leaseID, humanize.Time(s.Deadline()))
			if once {
				if err := s.KeepAlive(ctx, false); err != nil {
					return err
				}
				fmt.Printf("lease %x renewed\n", leaseID)
				return nil
			}

			err = s.KeepAlive(ctx, true)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func registerCommand(c *config.Config) cli.Command {
	value := ""
	return cli.Command{
		Name:  "register",
		Usage: "registers this process as PREFIX/<uuid> until interrupted",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:        "value",
				Usage:       "value stored in the member key",
				Destination: &value,
			},
		},
		Action: func(cliContext *cli.Context) error {
			if err := requireArgs(cliContext, 1, "PREFIX"); err != nil {
				return err
			}
			s, ctx, err := connect(c)
			if err != nil {
				return err
			}
			defer s.Close()

			id := uuid.New().String()
			key := strings.TrimSuffix(cliContext.Args().Get(0), "/") + "/" + id
			if err := s.Put(ctx, key, []byte(value), true); err != nil {
				return err
			}
			fmt.Printf("registered %s with lease %x\n", key, s.LeaseID())

			err = s.KeepAlive(ctx, true)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func drainKeepAlive(keepAlive <-chan error) error {
	select {
	case err := <-keepAlive:
		if err == context.Canceled {
			return nil
		}
		return err
	default:
		return nil
	}
}
