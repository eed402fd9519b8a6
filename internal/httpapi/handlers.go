package httpapi

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"

	"autodialer/internal/ai"
	"autodialer/internal/calls"
	"autodialer/internal/dialer"
	"autodialer/internal/phone"
	"autodialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// PromptParser is the natural-language collaborator. Its extracted number is
// never trusted; the allow-list gate re-validates it at intake.
type PromptParser interface {
	ParsePrompt(ctx context.Context, prompt string) (ai.ParseResult, error)
}

// Dispatcher hands a batch to the background sequencer and returns
// immediately.
type Dispatcher interface {
	Dispatch(tasks []dialer.Task)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal modules, return JSON.
type Handlers struct {
	Store      calls.Store
	Builder    *dialer.Builder
	Dispatcher Dispatcher
	Parser     PromptParser

	MaxBatchSize   int
	DefaultMessage string
}

const maxUploadBytes = 1 << 20

// UploadNumbers accepts phone numbers via a textarea field and/or a CSV file
// and queues the accepted ones for calling. The response reports the queued
// count plus one warning per rejected number; call outcomes are observed
// later on the dashboard, not here.
func (h Handlers) UploadNumbers(c *gin.Context) {
	log := logger.FromGin(c)

	numbers := phone.ParseText(c.PostForm("numbers_text"))

	if file, err := c.FormFile("numbers_file"); err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
			return
		}
		content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		_ = f.Close()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
			return
		}
		numbers = append(numbers, phone.ParseCSV(content)...)
	}

	numbers = phone.UniquePreserveOrder(numbers)
	numbers = phone.Limit(numbers, h.MaxBatchSize)

	var accepted []string
	var warnings []string
	for _, n := range numbers {
		v := phone.Validate(n)
		if v.Valid {
			accepted = append(accepted, v.Number)
			continue
		}
		warnings = append(warnings, v.Reason)
	}

	if len(accepted) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "No Twilio test numbers were accepted. Please submit numbers beginning with +1500.",
			"warnings": warnings,
		})
		return
	}

	ctx := logger.With(c.Request.Context(), log)
	tasks := h.Builder.Enqueue(ctx, accepted, h.DefaultMessage)
	h.Dispatcher.Dispatch(tasks)

	taskIDs := make([]string, 0, len(tasks))
	for _, task := range tasks {
		taskIDs = append(taskIDs, task.ID)
	}

	log.Info("upload queued", "accepted", len(tasks), "rejected", len(warnings))
	c.JSON(http.StatusAccepted, gin.H{
		"queued":   len(tasks),
		"task_ids": taskIDs,
		"warnings": warnings,
	})
}

type promptRequest struct {
	Prompt string `json:"prompt" form:"prompt"`
}

// HandlePrompt parses a natural-language instruction, gates the extracted
// number, and queues a single call.
func (h Handlers) HandlePrompt(c *gin.Context) {
	log := logger.FromGin(c)

	var req promptRequest
	if err := c.ShouldBind(&req); err != nil || req.Prompt == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "prompt required"})
		return
	}

	parsed, err := h.Parser.ParsePrompt(c.Request.Context(), req.Prompt)
	if err != nil {
		log.Warn("prompt parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Unable to process AI prompt."})
		return
	}

	if parsed.Number == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"warnings": []string{"No phone number could be extracted. Add a valid Twilio test number in your prompt."},
		})
		return
	}

	v := phone.Validate(parsed.Number)
	if !v.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"warnings": []string{v.Reason}})
		return
	}

	message := parsed.Message
	if message == "" {
		message = h.DefaultMessage
	}

	ctx := logger.With(c.Request.Context(), log)
	tasks := h.Builder.Enqueue(ctx, []string{v.Number}, message)
	if len(tasks) == 0 {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not queue the call"})
		return
	}
	h.Dispatcher.Dispatch(tasks)

	log.Info("ai prompt queued", "number", v.Number)
	c.JSON(http.StatusAccepted, gin.H{
		"queued":  1,
		"number":  v.Number,
		"task_id": tasks[0].ID,
	})
}

// Dashboard returns recent call history plus per-status totals.
func (h Handlers) Dashboard(c *gin.Context) {
	limit := 25
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	snap, err := h.Store.Snapshot(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("dashboard snapshot failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ExportCSV downloads the full call history as a CSV file.
func (h Handlers) ExportCSV(c *gin.Context) {
	records, err := h.Store.All(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("export query failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="call_logs.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "number", "status", "duration", "message", "error", "provider_call_id", "created_at"})
	for _, r := range records {
		duration := ""
		if r.DurationSeconds != nil {
			duration = strconv.Itoa(*r.DurationSeconds)
		}
		errDetail := ""
		if r.ErrorDetail != nil {
			errDetail = *r.ErrorDetail
		}
		sid := ""
		if r.ProviderCallID != nil {
			sid = *r.ProviderCallID
		}
		_ = w.Write([]string{
			r.ID,
			r.Number,
			string(r.Status),
			duration,
			r.Message,
			errDetail,
			sid,
			r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.FromGin(c).Error("csv write failed", "err", err)
	}
}

// Healthz reports process liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
