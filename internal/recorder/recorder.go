package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/quotestream/internal/batch"
	"github.com/rickgao/quotestream/internal/model"
)

// Config holds recorder batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns recorder defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics counts recorder activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// quoteRow is the database representation of a quote.
type quoteRow struct {
	Symbol     string
	Price      float64
	Bid        float64
	Ask        float64
	Volume     int64
	ExchangeTs int64 // microseconds; falls back to ReceivedAt when the feed omits a timestamp
	ReceivedAt int64 // microseconds
	Source     string
	TradeID    string
}

// Recorder consumes flushed batches from the update batcher and writes
// them to the quotes table.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	batcher *batch.Batcher
	subID   int64
	input   <-chan []model.Quote

	db *pgxpool.Pool

	rows        []quoteRow
	rowsMu      sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates a Recorder reading from the given batcher.
func New(cfg Config, batcher *batch.Batcher, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Recorder{
		cfg:     cfg,
		batcher: batcher,
		db:      db,
		logger:  logger,
		rows:    make([]quoteRow, 0, cfg.BatchSize),
	}
}

// Start subscribes to the batcher and begins writing.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.subID, r.input = r.batcher.Subscribe()
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("quote recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop unsubscribes, waits for the loops, and performs a final flush.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping quote recorder")

	if r.cancel != nil {
		r.cancel()
	}
	r.batcher.Unsubscribe(r.subID)

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("quote recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("quote recorder stop timed out")
	}

	r.flush()

	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.rowsMu.Lock()
	defer r.rowsMu.Unlock()
	return r.metrics
}

func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case quotes, ok := <-r.input:
			if !ok {
				return
			}
			r.handleBatch(quotes)
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush()
		}
	}
}

func (r *Recorder) handleBatch(quotes []model.Quote) {
	receivedAt := time.Now()

	r.rowsMu.Lock()
	for _, q := range quotes {
		r.rows = append(r.rows, r.transform(q, receivedAt))
	}
	shouldFlush := len(r.rows) >= r.cfg.BatchSize
	r.rowsMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

func (r *Recorder) transform(q model.Quote, receivedAt time.Time) quoteRow {
	ts := q.Time()
	exchangeTs := receivedAt.UnixMicro()
	if !ts.IsZero() {
		exchangeTs = ts.UnixMicro()
	}

	return quoteRow{
		Symbol:     q.Symbol,
		Price:      q.Price,
		Bid:        q.Bid,
		Ask:        q.Ask,
		Volume:     q.Volume,
		ExchangeTs: exchangeTs,
		ReceivedAt: receivedAt.UnixMicro(),
		Source:     q.Source,
		TradeID:    q.TradeID,
	}
}

func (r *Recorder) flush() {
	r.rowsMu.Lock()
	if len(r.rows) == 0 {
		r.rowsMu.Unlock()
		return
	}

	rows := r.rows
	r.rows = make([]quoteRow, 0, r.cfg.BatchSize)
	r.rowsMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(rows)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(rows))
		r.rowsMu.Lock()
		r.metrics.Errors++
		r.rowsMu.Unlock()
		return
	}

	r.rowsMu.Lock()
	r.metrics.Inserts += int64(len(rows) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.rowsMu.Unlock()

	r.logger.Debug("flushed quotes",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (r *Recorder) batchInsert(rows []quoteRow) (conflicts int, err error) {
	b := &pgx.Batch{}
	for _, row := range rows {
		b.Queue(`
			INSERT INTO quotes (symbol, price, bid, ask, volume, exchange_ts, received_at, source, trade_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, exchange_ts, trade_id) DO NOTHING
		`, row.Symbol, row.Price, row.Bid, row.Ask, row.Volume, row.ExchangeTs, row.ReceivedAt, row.Source, row.TradeID)
	}

	results := r.db.SendBatch(r.ctx, b)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
