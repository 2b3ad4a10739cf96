package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Cleaner removes downloaded and generated images left in the temp dir.
type Cleaner struct {
	Dir    string
	MaxAge time.Duration
	Every  time.Duration
	Logger *slog.Logger
	now    func() time.Time
}

func NewCleaner(dir string, maxAge time.Duration, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		Dir:    dir,
		MaxAge: maxAge,
		Every:  time.Hour,
		Logger: logger,
		now:    time.Now,
	}
}

// Start runs a sweep immediately and then on every tick until ctx is done.
func (c *Cleaner) Start(ctx context.Context) {
	ticker := time.NewTicker(c.Every)
	defer ticker.Stop()
	c.Logger.Info("temp image cleaner started", slog.String("dir", c.Dir))

	c.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep deletes regular files older than MaxAge and returns how many went.
func (c *Cleaner) Sweep() int {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.Logger.Error("failed to list temp dir", slog.String("error", err.Error()))
		}
		return 0
	}

	deleted := 0
	cutoff := c.now().Add(-c.MaxAge)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.Dir, e.Name())); err != nil {
			c.Logger.Error("failed to remove temp file", slog.String("file", e.Name()), slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		c.Logger.Info("cleaned temporary files", slog.Int("count", deleted), slog.Duration("max_age", c.MaxAge))
	}
	return deleted
}
