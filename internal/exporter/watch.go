package exporter

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last change to the
// input before converting.
const DefaultDebounce = 500 * time.Millisecond

// Watch re-runs the conversion whenever the export file at input changes,
// until ctx is cancelled. The parent directory is watched so that exports
// replaced by rename are picked up. Failed runs are logged and Watch keeps
// going.
func (e *Exporter) Watch(ctx context.Context, input string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	e.log.Info("watcher: started", slog.String("input", abs))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			e.log.Info("watcher: stopped")
			return nil

		case <-timerCh:
			if _, err := e.Run(ctx, abs); err != nil && !errors.Is(err, context.Canceled) {
				e.log.Warn("watcher: conversion failed", slog.String("input", abs), slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				e.log.Debug("watcher: input changed", slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
