package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luca-patrignani/popcore/ballot"
	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/keystore"
	"github.com/luca-patrignani/popcore/network"
	"github.com/luca-patrignani/popcore/session"
	"github.com/luca-patrignani/popcore/storage"
)

func newKeygenCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create an identity key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := keystore.Generate(flags.keyFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keys.PublicKey().String())
			return nil
		},
	}
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <parts...>",
		Short: "Print the protocol hash of the given parts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts := make([]any, len(args))
			for i, a := range args {
				parts[i] = a
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.Hash(parts...).String())
			return nil
		},
	}
}

func newElectionKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "election-keys",
		Short: "Print a fresh election key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := ballot.GenerateKeyPair()
			secret, err := key.MarshalBinary()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "public: %s\nsecret: %s\n", key.PublicKey(), identity.Base64URLData(secret))
			return nil
		},
	}
}

type connectFlags struct {
	server string
}

func (c *connectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.server, "server", "localhost:9000", "server address, ws:// or wss:// url or host:port")
}

// connect loads the identity and opens an engine on the server.
func connect(ctx context.Context, flags *rootFlags, server string, opts ...session.Option) (*session.Engine, error) {
	keys := keystore.MustLoad(flags.keyFile)
	url, err := serverURL(server)
	if err != nil {
		return nil, err
	}
	logger := newLogger(flags.debug)
	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + url + " ...")
	conn, err := network.Dial(ctx, url, network.WithLogger(logger))
	if err != nil {
		spinner.Fail()
		return nil, err
	}
	spinner.Success()
	opts = append([]session.Option{
		session.WithLogger(logger),
		session.WithRequestTimeout(flags.timeout),
	}, opts...)
	engine, err := session.New(keys, conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return engine, nil
}

func newCreateLaoCmd(flags *rootFlags) *cobra.Command {
	var (
		conn      connectFlags
		name      string
		witnesses []string
	)
	cmd := &cobra.Command{
		Use:   "create-lao",
		Short: "Create a LAO organized by the local identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var keys []identity.PublicKey
			for _, w := range witnesses {
				k, err := identity.ParsePublicKey(w)
				if err != nil {
					return fmt.Errorf("invalid witness %q: %w", w, err)
				}
				keys = append(keys, k)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			engine, err := connect(ctx, flags, conn.server)
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(ctx)
			runCtx, cancel := context.WithCancel(ctx)
			g.Go(func() error { return ignoreDisconnect(engine.Run(runCtx)) })
			g.Go(func() error {
				defer cancel()
				id, err := engine.CreateLAO(ctx, name, keys)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id.String())
				return nil
			})
			return g.Wait()
		},
	}
	conn.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "LAO name")
	cmd.Flags().StringSliceVar(&witnesses, "witness", nil, "witness public key, repeatable")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var (
		conn         connectFlags
		laoID        string
		dataDir      string
		metricsAddr  string
		electionKeys []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a LAO and render its state on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ring, err := parseElectionKeys(electionKeys)
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			opts := []session.Option{
				session.WithRegisterer(reg),
				session.WithElectionKeys(ring),
			}
			if dataDir != "" {
				store, err := storage.NewFileStore(dataDir)
				if err != nil {
					return err
				}
				opts = append(opts, session.WithStore(store))
			}

			printBanner()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			engine, err := connect(ctx, flags, conn.server, opts...)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			g.Go(func() error {
				// the connection is gone, stop serving too
				defer cancel()
				return ignoreDisconnect(engine.Run(ctx))
			})
			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: newRouter(reg, engine)}
				g.Go(func() error {
					pterm.Info.Printfln("Serving metrics on %s", metricsAddr)
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					return srv.Shutdown(context.Background())
				})
			}
			g.Go(func() error {
				if err := engine.Join(ctx, laoID); err != nil {
					return err
				}
				updates, cancel := engine.Watch(laoID)
				defer cancel()
				for {
					select {
					case s, ok := <-updates:
						if !ok {
							return nil
						}
						printState(s)
					case <-ctx.Done():
						return nil
					}
				}
			})
			return g.Wait()
		},
	}
	conn.register(cmd)
	cmd.Flags().StringVar(&laoID, "lao", "", "id of the LAO to follow")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for LAO snapshots, none if empty")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /laos/{id} on this address")
	cmd.Flags().StringSliceVar(&electionKeys, "election-key", nil, "<election id>:<secret> to tally a secret ballot, repeatable")
	_ = cmd.MarkFlagRequired("lao")
	return cmd
}

func parseElectionKeys(values []string) (*domain.KeyRing, error) {
	ring := domain.NewKeyRing()
	for _, v := range values {
		electionID, secret, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("election key %q is not <election id>:<secret>", v)
		}
		id, err := identity.DecodeBase64URL(electionID)
		if err != nil {
			return nil, fmt.Errorf("invalid election id %q: %w", electionID, err)
		}
		raw, err := identity.DecodeBase64URL(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid election secret: %w", err)
		}
		key, err := ballot.UnmarshalKeyPair(raw)
		if err != nil {
			return nil, err
		}
		ring.Add(id, key)
	}
	return ring, nil
}

func ignoreDisconnect(err error) error {
	if errors.Is(err, session.ErrDisconnected) {
		pterm.Warning.Println("Server closed the connection")
		return nil
	}
	return err
}
