// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/decred/berryscan/berryscand/fetcher"
	"github.com/decred/berryscan/berryscand/history"
	"github.com/decred/berryscan/berryscand/scanner"
	"github.com/robfig/cron"
)

// shutdownTimeout bounds the graceful shutdown of the status server.
const shutdownTimeout = 5 * time.Second

// progressLine formats p for the periodic progress report.
func progressLine(p scanner.Progress, genesis uint64) string {
	var pct float64
	if p.FinalHeight > genesis {
		done := p.LastScannedHeight - genesis
		if p.LastScannedHeight < genesis {
			done = 0
		}
		pct = 100 * float64(done) / float64(p.FinalHeight-genesis)
	}
	var last uint64
	if p.LastBoard != nil {
		last = p.LastBoard.BlockHeight
	}
	return fmt.Sprintf("Scanned %v of %v (%.2f%%): %v boards, last change "+
		"at %v, %v probes, %v skips, %v fetches, %v unavailable",
		p.LastScannedHeight, p.FinalHeight, pct, p.Boards, last,
		p.JumpProbes, p.JumpSkips, p.LinearFetches, p.Unavailable)
}

// loadHistory resumes from the newest checkpoint or seeds a new history with
// the board at the genesis height.  A nil history without error means ctx was
// cancelled while seeding.
func loadHistory(ctx context.Context, store *history.Store, r *fetcher.Retrier, genesis uint64) (*history.History, error) {
	h, err := store.LoadLatest()
	if err != nil {
		return nil, err
	}
	if h != nil {
		return h, nil
	}

	log.Infof("No history in %v, fetching genesis board at %v",
		store.Root(), genesis)
	seed, ok := r.Fetch(ctx, genesis)
	if !ok {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("genesis board at %v is unavailable",
			genesis)
	}
	return history.New(seed), nil
}

func _main() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	loadedCfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version : %v", version())
	log.Infof("Home dir: %v", loadedCfg.HomeDir)
	log.Infof("Endpoint: %v", loadedCfg.RPCURL)
	log.Infof("Account : %v", loadedCfg.Account)

	// Setup OS signals.  The scan observes ctx and stops at the next
	// fetch boundary.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Infof("Terminating with %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	store, err := history.NewStore(filepath.Join(loadedCfg.DataDir,
		defaultHistoryDirname))
	if err != nil {
		return err
	}

	client, err := fetcher.New(loadedCfg.RPCURL, loadedCfg.Account,
		loadedCfg.KeyPrefix, loadedCfg.RequestTimeout)
	if err != nil {
		return err
	}
	var f fetcher.Fetcher = client
	if loadedCfg.Cache {
		cache, err := fetcher.NewCache(loadedCfg.CacheDir, client)
		if err != nil {
			return fmt.Errorf("open cache %v: %v", loadedCfg.CacheDir,
				err)
		}
		defer func() {
			hits, misses := cache.Stats()
			log.Infof("Cache: %v hits, %v misses", hits, misses)
			cache.Close()
		}()
		log.Infof("Cache   : %v", loadedCfg.CacheDir)
		f = cache
	}
	retrier := fetcher.NewRetrier(f, loadedCfg.MaxAttempts,
		loadedCfg.Backoff)

	h, err := loadHistory(ctx, store, retrier, loadedCfg.GenesisHeight)
	if err != nil {
		return err
	}
	if h == nil {
		log.Infof("Exiting")
		return nil
	}

	finalHeight := loadedCfg.FinalHeight
	if finalHeight == 0 {
		finalHeight, err = retrier.LatestHeight(ctx, client)
		switch {
		case err == nil:
			log.Infof("Final height: %v", finalHeight)
		case ctx.Err() != nil:
			// Interrupted; keep whatever was seeded.
			finalHeight = h.LastScannedHeight
		default:
			return fmt.Errorf("could not obtain final height: %w", err)
		}
	}

	s := scanner.New(retrier, h, finalHeight, loadedCfg.JumpSize)

	// Report progress periodically.
	if loadedCfg.ProgressInterval > 0 {
		c := cron.New()
		err = c.AddFunc(fmt.Sprintf("@every %v",
			loadedCfg.ProgressInterval), func() {
			log.Info(progressLine(s.Progress(),
				loadedCfg.GenesisHeight))
		})
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	// Serve the status API.
	var srv *http.Server
	if loadedCfg.Listen != "" {
		srv = &http.Server{
			Addr: loadedCfg.Listen,
			Handler: newStatusServer(s,
				loadedCfg.GenesisHeight).handler(),
		}
		go func() {
			log.Infof("Listen: %v", srv.Addr)
			err := srv.ListenAndServe()
			if !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Status server: %v", err)
			}
		}()
	}

	// Tell user we are ready to go.
	log.Infof("Start of day")

	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Infof("Scan interrupted at %v", h.LastScannedHeight)
	} else if err != nil {
		return err
	}

	if srv != nil {
		sctx, scancel := context.WithTimeout(context.Background(),
			shutdownTimeout)
		srv.Shutdown(sctx)
		scancel()
	}

	// The history is saved exactly once, whether the scan completed or
	// not.
	if _, err := store.Save(h); err != nil {
		return fmt.Errorf("could not save history: %w", err)
	}
	log.Info(progressLine(s.Progress(), loadedCfg.GenesisHeight))

	log.Infof("Exiting")

	return nil
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
