package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/scanner"
	"github.com/use-agent/linkshield/target"
	"github.com/use-agent/linkshield/webhook"
)

const (
	batchProcessing = "processing"
	batchCompleted  = "completed"
)

// batchJob guards a models.BatchJob shared between the workers and the
// status endpoint.
type batchJob struct {
	mu  sync.Mutex
	job *models.BatchJob
}

// snapshot copies the job under lock.
func (b *batchJob) snapshot() models.BatchStatusResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	resp := models.BatchStatusResponse{
		ID:        b.job.ID,
		Status:    b.job.Status,
		Completed: b.job.Completed,
		Total:     b.job.Total,
		Results:   make([]*models.BatchItem, 0, len(b.job.Results)),
	}
	for _, item := range b.job.Results {
		if item == nil {
			continue
		}
		resp.Summary.Add(item)
		resp.Results = append(resp.Results, item)
	}
	return resp
}

// Batches runs asynchronous batch scans and keeps their results for a
// while after completion.
type Batches struct {
	scanner     *scanner.Scanner
	sender      *webhook.Sender
	concurrency int
	ttl         time.Duration
	store       sync.Map // id -> *batchJob
	done        chan struct{}
	once        sync.Once
}

// NewBatches creates a batch manager scanning up to concurrency URLs at a
// time per batch. Jobs older than ttl are expired every 5 minutes.
func NewBatches(sc *scanner.Scanner, sender *webhook.Sender, concurrency int, ttl time.Duration) *Batches {
	if concurrency <= 0 {
		concurrency = 5
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	b := &Batches{
		scanner:     sc,
		sender:      sender,
		concurrency: concurrency,
		ttl:         ttl,
		done:        make(chan struct{}),
	}
	go b.cleanupLoop()
	return b
}

// Stop terminates the expiry goroutine.
func (b *Batches) Stop() {
	b.once.Do(func() { close(b.done) })
}

// Post returns a handler for POST /api/v1/scan/batch.
// It validates the request, creates a batch job, and scans in the background.
func (b *Batches) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScanResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		// Results must never be posted into the server's own network.
		if req.WebhookURL != "" {
			if err := target.Validate(req.WebhookURL); err != nil {
				respondError(c, err, models.TimingInfo{})
				return
			}
		}

		job := b.start(req)
		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: batchProcessing,
			Total:  job.Total,
		})
	}
}

// Get returns a handler for GET /api/v1/scan/batch/:id.
func (b *Batches) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := b.store.Load(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ScanResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, val.(*batchJob).snapshot())
	}
}

// start registers a job and launches its workers.
func (b *Batches) start(req models.BatchScanRequest) *models.BatchJob {
	job := &models.BatchJob{
		ID:        uuid.NewString(),
		Status:    batchProcessing,
		Total:     len(req.URLs),
		Results:   make([]*models.BatchItem, len(req.URLs)),
		CreatedAt: time.Now().Unix(),
	}
	bj := &batchJob{job: job}
	b.store.Store(job.ID, bj)
	go b.run(bj, req)
	return job
}

// run scans all URLs with concurrency limited by a semaphore. A failing
// URL yields a per-item error and never aborts the batch.
func (b *Batches) run(bj *batchJob, req models.BatchScanRequest) {
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for i, rawURL := range req.URLs {
		wg.Add(1)
		go func(idx int, targetURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item := b.scanOne(targetURL)

			bj.mu.Lock()
			bj.job.Results[idx] = item
			bj.job.Completed++
			bj.mu.Unlock()
		}(i, rawURL)
	}
	wg.Wait()

	bj.mu.Lock()
	bj.job.Status = batchCompleted
	bj.mu.Unlock()

	status := bj.snapshot()
	slog.Info("batch job finished",
		"id", status.ID,
		"total", status.Total,
		"safe", status.Summary.Safe,
		"suspicious", status.Summary.Suspicious,
		"malicious", status.Summary.Malicious,
		"errors", status.Summary.Errors,
	)

	if req.WebhookURL != "" && b.sender != nil {
		b.sender.DeliverAsync(req.WebhookURL, req.WebhookSecret,
			webhook.NewEvent(webhook.EventBatchCompleted, status.ID, status))
	}
}

func (b *Batches) scanOne(targetURL string) *models.BatchItem {
	item := &models.BatchItem{URL: targetURL}
	res, err := b.scanner.Scan(context.Background(), targetURL)
	if err != nil {
		item.Error = asScanError(err).ToDetail()
		return item
	}
	item.Result = res
	return item
}

func (b *Batches) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-b.ttl).Unix()
			b.store.Range(func(key, value any) bool {
				bj := value.(*batchJob)
				bj.mu.Lock()
				expired := bj.job.Status == batchCompleted && bj.job.CreatedAt < cutoff
				bj.mu.Unlock()
				if expired {
					b.store.Delete(key)
				}
				return true
			})
		}
	}
}
