// Command vaultscan walks a markdown vault and publishes document events to
// NATS for the ingest worker. With -watch it stays running and republishes on
// file changes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/ingest"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/vault"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/fn"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/natsutil"
	"github.com/fsnotify/fsnotify"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

func main() {
	var (
		vaultDir = flag.String("vault", ".", "vault root directory")
		natsURL  = flag.String("nats", nats.DefaultURL, "NATS server URL")
		watch    = flag.Bool("watch", false, "keep running and publish on file changes")
		workers  = flag.Int("workers", 8, "concurrent file readers for the initial scan")
		pubRPS   = flag.Float64("publish-rps", 50, "max publishes per second")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v, err := vault.New(*vaultDir, log)
	if err != nil {
		log.Error("open vault failed", "err", err)
		os.Exit(1)
	}

	nc, err := nats.Connect(*natsURL, nats.Name("vaultpilot-vaultscan"))
	if err != nil {
		log.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Drain()

	limiter := rate.NewLimiter(rate.Limit(*pubRPS), 1)
	pub := publisher{nc: nc, vaultRoot: v.Root(), limiter: limiter, log: log}

	if err := fullScan(ctx, v, pub, *workers, log); err != nil {
		log.Error("initial scan failed", "err", err)
		os.Exit(1)
	}

	if !*watch {
		return
	}

	if err := watchVault(ctx, v.Root(), pub, log); err != nil {
		log.Error("watch failed", "err", err)
		os.Exit(1)
	}
}

type publisher struct {
	nc        *nats.Conn
	vaultRoot string
	limiter   *rate.Limiter
	log       *slog.Logger
}

// upsert reads the file and publishes an upsert event. The path is relative
// to the vault root with forward slashes, matching ingest's chunk IDs.
func (p publisher) upsert(ctx context.Context, relPath string) error {
	abs := filepath.Join(p.vaultRoot, filepath.FromSlash(relPath))
	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return natsutil.Publish(ctx, p.nc, ingest.DocsSubject, ingest.DocumentEvent{
		Op:      ingest.OpUpsert,
		Path:    relPath,
		Content: string(data),
		ModTime: info.ModTime(),
	})
}

func (p publisher) delete(ctx context.Context, relPath string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return natsutil.Publish(ctx, p.nc, ingest.DocsSubject, ingest.DocumentEvent{
		Op:   ingest.OpDelete,
		Path: relPath,
	})
}

// fullScan publishes every markdown file in the vault with bounded concurrency.
func fullScan(ctx context.Context, v *vault.Vault, pub publisher, workers int, log *slog.Logger) error {
	files, err := v.ListFiles(ctx)
	if err != nil {
		return err
	}
	log.Info("scanning vault", "root", v.Root(), "files", len(files))

	publish := fn.Stage[vault.FileInfo, string](func(ctx context.Context, f vault.FileInfo) fn.Result[string] {
		if err := pub.upsert(ctx, f.Path); err != nil {
			return fn.Err[string](err)
		}
		return fn.Ok(f.Path)
	})

	result := fn.BatchStage(workers, publish)(ctx, files)
	if result.IsErr() {
		_, err := result.Unwrap()
		return err
	}
	log.Info("scan complete", "published", len(files))
	return nil
}

// watchVault republishes on markdown file changes until ctx is cancelled.
// New directories are added to the watch as they appear.
func watchVault(ctx context.Context, root string, pub publisher, log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addDirs(watcher, root); err != nil {
		return err
	}
	log.Info("watching vault", "root", root)

	// Editors often emit several writes in a row; coalesce per path.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addDirs(watcher, ev.Name)
					continue
				}
			}
			rel, err := relMarkdownPath(root, ev.Name)
			if err != nil {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, rel)
				if err := pub.delete(ctx, rel); err != nil {
					log.Error("publish delete failed", "path", rel, "err", err)
				}
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[rel] = time.Now()
			}

		case <-ticker.C:
			for rel, touched := range pending {
				if time.Since(touched) < 500*time.Millisecond {
					continue
				}
				delete(pending, rel)
				if err := pub.upsert(ctx, rel); err != nil {
					log.Error("publish upsert failed", "path", rel, "err", err)
				} else {
					log.Info("published change", "path", rel)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "err", err)
		}
	}
}

// addDirs registers dir and all non-hidden subdirectories.
func addDirs(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != dir {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// relMarkdownPath converts an fsnotify event path to a vault-relative
// forward-slash path, rejecting non-markdown and hidden files.
func relMarkdownPath(root, name string) (string, error) {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(name)
	if !strings.HasSuffix(base, ".md") || strings.HasPrefix(base, ".") {
		return "", os.ErrInvalid
	}
	return rel, nil
}
