// Command litesync is the CLI front end for Core A (the bidirectional
// replicator) and Core B (the Fleece/SQL query bridge): it serves a
// websocket endpoint peers can replicate against, drives an outbound
// replication session against a remote peer, and inspects/resets local
// checkpoints. Command tree grounded on
// theanswer42-bt-go/cmd/bt/main.go's var-based cobra.Command layout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/codetrek/litesync/internal/blobstore"
	"github.com/codetrek/litesync/internal/config"
	"github.com/codetrek/litesync/internal/query"
	"github.com/codetrek/litesync/internal/replicator"
	"github.com/codetrek/litesync/internal/revstore"
	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "litesync",
	Short: "Embedded document replicator and Fleece/SQL query bridge",
}

func openStore(cfg config.Config) (*revstore.Store, error) {
	return revstore.Open(cfg.Storage.DatabasePath)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept inbound replication connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logrus.WithField("component", "cmd/serve")

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		blobs := blobstore.New()
		reg := query.NewRegistry(nil, nil)
		if err := reg.RegisterAll(); err != nil {
			log.WithError(err).Warn("query function registration reported an error")
		}

		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.HandleFunc("/_replicate", func(w http.ResponseWriter, r *http.Request) {
			conn, err := transport.Accept(w, r)
			if err != nil {
				log.WithError(err).Warn("upgrade failed")
				return
			}
			remote := r.RemoteAddr
			opts := model.Options{Push: model.ModeContinuous, Pull: model.ModeContinuous}.WithDefaults()
			repl := replicator.New(store, blobs, conn, remote, opts)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := repl.Start(ctx); err != nil {
				log.WithError(err).Warn("replicator failed to start")
				conn.Close()
				return
			}
			<-conn.Done()
			repl.Stop()
		})

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.WithField("addr", addr).Info("listening")

		srv := &http.Server{Addr: addr, Handler: mux}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-sigCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync ADDR",
	Short: "Replicate against a remote litesync peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logrus.WithField("component", "cmd/sync")

		continuous, _ := cmd.Flags().GetBool("continuous")
		pushOnly, _ := cmd.Flags().GetBool("push-only")
		pullOnly, _ := cmd.Flags().GetBool("pull-only")

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()
		blobs := blobstore.New()

		mode := model.ModeOneShot
		if continuous {
			mode = model.ModeContinuous
		}
		opts := model.Options{
			InsertBatchHighWater: cfg.Replication.InsertBatchHighWater,
			InsertBatchInterval:  cfg.Replication.InsertBatchIntervalMS,
			PushBatchSize:        cfg.Replication.ChangesBatchSize,
			ProtocolVersion:      fmt.Sprintf("litesync/%d", cfg.Replication.ProtocolVersion),
		}
		if !pullOnly {
			opts.Push = mode
		}
		if !pushOnly {
			opts.Pull = mode
		}
		opts = opts.WithDefaults()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		// Transient transport failures (spec §7) reconnect with exponential,
		// jittered backoff instead of giving up after one dropped
		// connection; anything else (or an interrupt) ends the command.
		attempt := 0
		for {
			ctx, cancel := context.WithCancel(context.Background())
			conn, err := transport.Dial(ctx, args[0], nil)
			if err != nil {
				cancel()
				return fmt.Errorf("dialing %s: %w", args[0], err)
			}

			repl := replicator.New(store, blobs, conn, args[0], opts)
			if err := repl.Start(ctx); err != nil {
				conn.Close()
				cancel()
				return fmt.Errorf("starting replicator: %w", err)
			}

			interrupted := false
			select {
			case <-conn.Done():
			case <-sigCh:
				interrupted = true
			}
			repl.Stop()
			conn.Close()
			cancel()

			status := repl.Status()
			log.WithFields(logrus.Fields{
				"push":      status.Push.String(),
				"pull":      status.Pull.String(),
				"pushed":    status.Progress.DocsPushed,
				"pulled":    status.Progress.DocsPulled,
				"conflicts": status.Progress.Conflicts,
			}).Info("sync stopped")

			if interrupted || status.Err == nil {
				return nil
			}
			if replicator.Classify(status.Err).Fatal() {
				return status.Err
			}

			delay := replicator.Backoff(attempt)
			attempt++
			log.WithError(status.Err).WithField("retryIn", delay).Warn("transient error, reconnecting")
			select {
			case <-time.After(delay):
			case <-sigCh:
				return nil
			}
		}
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset local replication checkpoints",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show REMOTE",
	Short: "Print the checkpoint for a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		uuid, err := store.LocalUUID(context.Background())
		if err != nil {
			return err
		}
		key := model.CheckpointKey(uuid, args[0], nil, fmt.Sprintf("litesync/%d", cfg.Replication.ProtocolVersion))
		data, err := store.GetCheckpoint(context.Background(), key)
		if err != nil {
			return err
		}
		cp, err := model.DecodeCheckpoint(data)
		if err != nil {
			return err
		}
		fmt.Printf("key:         %s\n", key)
		fmt.Printf("lastPushed:  %d\n", cp.LastPushed)
		fmt.Printf("pullCursor:  %q\n", cp.PullCursor)
		return nil
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset REMOTE",
	Short: "Reset the checkpoint for a remote, forcing a full resync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		uuid, err := store.LocalUUID(context.Background())
		if err != nil {
			return err
		}
		key := model.CheckpointKey(uuid, args[0], nil, fmt.Sprintf("litesync/%d", cfg.Replication.ProtocolVersion))
		if err := store.SetCheckpoint(context.Background(), key, model.Checkpoint{}.Encode()); err != nil {
			return err
		}
		fmt.Printf("checkpoint %s reset\n", key)
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("continuous", false, "keep replicating instead of stopping after catching up")
	syncCmd.Flags().Bool("push-only", false, "only push local changes to the remote")
	syncCmd.Flags().Bool("pull-only", false, "only pull remote changes into the local store")

	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkpointCmd)
}
