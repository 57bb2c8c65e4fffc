package logger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

type queuedEntry struct {
	entry  zapcore.Entry
	fields []zapcore.Field
}

// AsyncCore wraps a zapcore.Core and writes entries asynchronously in
// batches. When the buffer is full entries are dropped and counted rather
// than blocking the caller; the drop count is reported once a minute.
type AsyncCore struct {
	core          zapcore.Core
	entries       chan queuedEntry
	quit          chan struct{}
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
	dropped       uint64
}

// NewAsyncCore starts the writer goroutines. bufferSize is the channel
// capacity, batchSize how many entries are written per flush.
func NewAsyncCore(core zapcore.Core, bufferSize, batchSize int, flushInterval time.Duration) *AsyncCore {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 || batchSize > bufferSize {
		batchSize = bufferSize / 10
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	ac := &AsyncCore{
		core:          core,
		entries:       make(chan queuedEntry, bufferSize),
		quit:          make(chan struct{}),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}

	ac.wg.Add(2)
	go ac.run()
	go ac.reportDropped()

	return ac
}

// run consumes queued entries and flushes them in batches, on size or on
// the flush ticker, whichever comes first.
func (ac *AsyncCore) run() {
	defer ac.wg.Done()

	ticker := time.NewTicker(ac.flushInterval)
	defer ticker.Stop()

	batch := make([]queuedEntry, 0, ac.batchSize)

	flush := func() {
		for _, qe := range batch {
			if err := ac.core.Write(qe.entry, qe.fields); err != nil {
				// Last resort: the log sink itself failed.
				fmt.Printf("log write failed: %v\n", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case qe := <-ac.entries:
			batch = append(batch, qe)
			if len(batch) >= ac.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ac.quit:
			// Drain what is still queued before exiting.
			for {
				select {
				case qe := <-ac.entries:
					batch = append(batch, qe)
					if len(batch) >= ac.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (ac *AsyncCore) reportDropped() {
	defer ac.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if dropped := atomic.SwapUint64(&ac.dropped, 0); dropped > 0 {
				_ = ac.core.Write(zapcore.Entry{
					Level:      zapcore.WarnLevel,
					Message:    fmt.Sprintf("dropped %d log entries, buffer was full", dropped),
					Time:       time.Now(),
					LoggerName: "asynccore",
				}, nil)
			}
		case <-ac.quit:
			return
		}
	}
}

func (ac *AsyncCore) Enabled(level zapcore.Level) bool {
	return ac.core.Enabled(level)
}

func (ac *AsyncCore) With(fields []zapcore.Field) zapcore.Core {
	return &AsyncCore{
		core:          ac.core.With(fields),
		entries:       ac.entries,
		quit:          ac.quit,
		batchSize:     ac.batchSize,
		flushInterval: ac.flushInterval,
	}
}

func (ac *AsyncCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ac.Enabled(entry.Level) {
		return checked.AddCore(entry, ac)
	}
	return checked
}

// Write enqueues the entry without ever blocking the caller.
func (ac *AsyncCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	select {
	case ac.entries <- queuedEntry{entry: entry, fields: fields}:
	default:
		atomic.AddUint64(&ac.dropped, 1)
	}
	return nil
}

// Sync stops the writer, drains the queue and syncs the wrapped core.
func (ac *AsyncCore) Sync() error {
	close(ac.quit)
	ac.wg.Wait()
	return ac.core.Sync()
}
