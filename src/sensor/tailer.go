// Package sensor provides the Sensor Agent: it follows the IDS alert log
// and submits each record to the ingestion service.
package sensor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"sentinel-agent/src/contracts"
	"sentinel-agent/src/ingest"
	"sentinel-agent/src/logger"
)

// Options tunes the tailing behavior.
type Options struct {
	// PollInterval is the wait between read attempts when no new data
	// arrived. Defaults to 300ms.
	PollInterval time.Duration
	// FromStart reads the whole file instead of only lines appended
	// after startup.
	FromStart bool
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 300 * time.Millisecond
	}
}

// Agent tails one alert log file. The sensor writes one JSON record per
// line; each complete line becomes a raw alert tagged SourceSnort.
// Records the pipeline cannot accept are logged and skipped: the tail
// never stalls on a bad line.
type Agent struct {
	path   string
	svc    *ingest.Service
	logger logger.Logger
	opts   Options

	file    *os.File
	reader  *bufio.Reader
	partial []byte
	offset  int64
}

// NewAgent creates a sensor agent following path.
func NewAgent(path string, svc *ingest.Service, log logger.Logger, opts Options) *Agent {
	opts.applyDefaults()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Agent{
		path:   abs,
		svc:    svc,
		logger: log,
		opts:   opts,
	}
}

// Run tails the file until ctx is cancelled. If the file does not exist
// yet it waits for the sensor to create it. Rotation and truncation
// reopen the file from the start.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("[SensorAgent] Tailing alert log: %s", a.path)

	if err := a.waitForFile(ctx); err != nil {
		return err
	}
	if err := a.open(a.opts.FromStart); err != nil {
		return err
	}
	defer a.closeFile()

	// Watch the parent directory: rotation replaces the file, so events
	// for the path itself stop arriving once it is renamed away.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(a.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(a.path), err)
	}

	for {
		a.readAvailable(ctx)

		select {
		case <-ctx.Done():
			a.logger.Info("[SensorAgent] Context cancelled, shutting down")
			return ctx.Err()
		case ev := <-watcher.Events:
			a.handleEvent(ctx, ev)
		case err := <-watcher.Errors:
			a.logger.Error("[SensorAgent] Watcher error: %v", err)
		case <-time.After(a.opts.PollInterval):
			a.checkTruncation(ctx)
		}
	}
}

// waitForFile blocks until the alert log exists. The sensor may not have
// produced its first alert yet when the agent starts.
func (a *Agent) waitForFile(ctx context.Context) error {
	for {
		if _, err := os.Stat(a.path); err == nil {
			return nil
		}
		a.logger.Debug("[SensorAgent] Alert log not found, waiting: %s", a.path)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (a *Agent) open(fromStart bool) error {
	f, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("opening alert log: %w", err)
	}
	a.file = f
	a.reader = bufio.NewReader(f)
	a.partial = nil
	a.offset = 0
	if !fromStart {
		end, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return fmt.Errorf("seeking to end: %w", err)
		}
		a.offset = end
	}
	return nil
}

func (a *Agent) closeFile() {
	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
}

// reopen re-reads the file from the start, waiting briefly for rotation
// to finish when the new file has not appeared yet.
func (a *Agent) reopen(ctx context.Context) {
	a.closeFile()
	for {
		if err := a.open(true); err == nil {
			a.logger.Info("[SensorAgent] Reopened alert log from start")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (a *Agent) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if filepath.Base(ev.Name) != filepath.Base(a.path) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
		a.logger.Info("[SensorAgent] Alert log rotated (%s)", ev.Op)
		a.reopen(ctx)
	case ev.Op&fsnotify.Create != 0:
		a.logger.Info("[SensorAgent] Alert log recreated")
		a.reopen(ctx)
	}
}

// checkTruncation reopens when the file shrank below the read offset,
// which fsnotify reports only as a plain write.
func (a *Agent) checkTruncation(ctx context.Context) {
	if a.file == nil {
		return
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return
	}
	if info.Size() < a.offset {
		a.logger.Info("[SensorAgent] Alert log truncated, reopening")
		a.reopen(ctx)
	}
}

// readAvailable consumes every complete line currently in the file.
// A trailing line without a newline is held until the sensor finishes
// writing it.
func (a *Agent) readAvailable(ctx context.Context) {
	if a.reader == nil {
		return
	}
	for {
		chunk, err := a.reader.ReadBytes('\n')
		a.offset += int64(len(chunk))
		if err != nil {
			a.partial = append(a.partial, chunk...)
			return
		}
		line := string(a.partial) + string(chunk)
		a.partial = nil
		a.submit(ctx, line)
	}
}

// submit decodes one alert record and hands it to the ingestion service.
func (a *Agent) submit(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var alert contracts.RawAlert
	if err := json.Unmarshal([]byte(line), &alert); err != nil {
		a.logger.Error("[SensorAgent] Skipping malformed alert record: %v", err)
		return
	}

	if err := a.svc.Ingest(ctx, alert, contracts.SourceSnort); err != nil {
		a.logger.Error("[SensorAgent] Failed to ingest alert: %v", err)
	}
}
