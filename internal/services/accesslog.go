package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	accessLogBatchSize  = 100
	accessLogFieldLimit = 500
)

// AccessLogEntry represents the data needed to create an access log entry
type AccessLogEntry struct {
	Path          string
	Method        string
	Status        int
	Latency       time.Duration
	IP            string
	UserAgent     string
	ApplicationID *int64
	TokenID       *string
}

// AccessLogService is the append-only sink written for every grant call and
// every bearer-protected request. Writes are buffered and flushed in batches.
type AccessLogService struct {
	store      *store.Store
	enabled    bool
	bufferSize int
	metrics    metrics.Recorder

	// Async logging channel
	logChan chan *models.AccessLog

	// Batch buffer
	batchBuffer []*models.AccessLog
	batchMutex  sync.Mutex
	batchTicker *time.Ticker

	// Graceful shutdown
	wg           sync.WaitGroup
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewAccessLogService creates a new access log service
func NewAccessLogService(
	s *store.Store,
	enabled bool,
	bufferSize int,
	m metrics.Recorder,
) *AccessLogService {
	if bufferSize <= 0 {
		bufferSize = 1000 // Default buffer size
	}

	service := &AccessLogService{
		store:       s,
		enabled:     enabled,
		bufferSize:  bufferSize,
		metrics:     m,
		logChan:     make(chan *models.AccessLog, bufferSize),
		batchBuffer: make([]*models.AccessLog, 0, accessLogBatchSize),
		batchTicker: time.NewTicker(1 * time.Second),
		shutdownCh:  make(chan struct{}),
	}

	if enabled {
		service.wg.Add(1)
		go service.worker()
		log.Info().Int("buffer_size", bufferSize).Msg("access log service started")
	} else {
		service.batchTicker.Stop()
		log.Info().Msg("access log service is disabled")
	}

	return service
}

// worker is the background goroutine that processes access logs
func (s *AccessLogService) worker() {
	defer s.wg.Done()

	for {
		select {
		case entry := <-s.logChan:
			s.addToBatch(entry)

		case <-s.batchTicker.C:
			// Flush batch every second
			s.flushBatch()

		case <-s.shutdownCh:
			// Drain what is still queued, then flush before exiting
			for {
				select {
				case entry := <-s.logChan:
					s.addToBatch(entry)
				default:
					s.flushBatch()
					return
				}
			}
		}
	}
}

// addToBatch adds a log entry to the batch buffer
func (s *AccessLogService) addToBatch(entry *models.AccessLog) {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()

	s.batchBuffer = append(s.batchBuffer, entry)

	if len(s.batchBuffer) >= accessLogBatchSize {
		s.flushBatchUnsafe()
	}
}

// flushBatch flushes the batch buffer to the database (thread-safe)
func (s *AccessLogService) flushBatch() {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()
	s.flushBatchUnsafe()
}

// flushBatchUnsafe flushes the batch buffer without locking (caller must hold lock)
func (s *AccessLogService) flushBatchUnsafe() {
	if len(s.batchBuffer) == 0 {
		return
	}

	toWrite := make([]*models.AccessLog, len(s.batchBuffer))
	copy(toWrite, s.batchBuffer)
	s.batchBuffer = s.batchBuffer[:0]

	ctx := context.Background()
	if err := s.store.CreateAccessLogBatch(ctx, toWrite); err != nil {
		log.Warn().Err(err).Int("entries", len(toWrite)).
			Msg("access log batch rejected, writing entries one by one")
		s.writeEach(ctx, toWrite)
	}
}

// writeEach inserts entries individually so one bad row only loses itself.
func (s *AccessLogService) writeEach(ctx context.Context, entries []*models.AccessLog) {
	for _, entry := range entries {
		if err := s.store.CreateAccessLog(ctx, entry); err != nil {
			log.Error().Err(err).
				Str("id", entry.ID).
				Str("path", entry.Path).
				Int("status", entry.Status).
				Msg("failed to write access log entry")
		}
	}
}

func (s *AccessLogService) newRecord(ctx context.Context, entry AccessLogEntry) *models.AccessLog {
	if client, ok := util.ClientFromContext(ctx); ok {
		if entry.IP == "" {
			entry.IP = client.IP
		}
		if entry.UserAgent == "" {
			entry.UserAgent = client.UserAgent
		}
	}
	return &models.AccessLog{
		ID:            uuid.New().String(),
		Path:          cleanField(entry.Path, accessLogFieldLimit),
		Method:        cleanField(entry.Method, accessLogFieldLimit),
		Status:        entry.Status,
		LatencyMS:     entry.Latency.Milliseconds(),
		IP:            cleanField(entry.IP, accessLogFieldLimit),
		UserAgent:     cleanField(entry.UserAgent, accessLogFieldLimit),
		ApplicationID: entry.ApplicationID,
		TokenID:       entry.TokenID,
		CreatedAt:     time.Now(),
	}
}

// Log records an access log entry asynchronously. It never blocks the
// request: when the buffer is full the entry is dropped with a warning.
func (s *AccessLogService) Log(ctx context.Context, entry AccessLogEntry) {
	if !s.enabled {
		return
	}

	record := s.newRecord(ctx, entry)

	select {
	case s.logChan <- record:
	default:
		s.metrics.RecordAccessLogDropped()
		log.Warn().
			Str("path", record.Path).
			Int("status", record.Status).
			Msg("access log buffer full, dropping entry")
	}
}

// LogSync records an access log entry synchronously
func (s *AccessLogService) LogSync(ctx context.Context, entry AccessLogEntry) error {
	if !s.enabled {
		return nil
	}
	return s.store.CreateAccessLog(ctx, s.newRecord(ctx, entry))
}

// List retrieves access logs with pagination and filtering
func (s *AccessLogService) List(
	ctx context.Context,
	params store.PaginationParams,
	filters store.AccessLogFilters,
) ([]models.AccessLog, store.PaginationResult, error) {
	return s.store.ListAccessLogs(ctx, params, filters)
}

// CleanupOldLogs deletes access logs older than the retention period
func (s *AccessLogService) CleanupOldLogs(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.DeleteOldAccessLogs(ctx, time.Now().Add(-retention))
}

// Shutdown gracefully shuts down the access log service, flushing queued entries
func (s *AccessLogService) Shutdown(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.shutdownOnce.Do(func() {
		s.batchTicker.Stop()
		close(s.shutdownCh)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("access log service shut down gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("access log service shutdown timeout: %w", ctx.Err())
	}
}

// cleanField makes a client-supplied value storable: invalid UTF-8 is
// replaced and the result is cut to at most limit bytes on a rune boundary.
func cleanField(s string, limit int) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
