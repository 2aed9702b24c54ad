// Package errors recovers panics, counts error bursts and reports failures to
// a Discord webhook. A burst above the threshold shuts the bot down so the
// process supervisor can restart it clean.
package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultMaxErrors = 15
	defaultWindow    = 5 * time.Second
)

// ErrorHandler manages error counting and reporting
type ErrorHandler struct {
	errorCount   atomic.Int32
	webhookURL   string
	httpClient   *http.Client
	shutdownFunc func()
	exit         func(code int)
	maxErrors    int32
	window       time.Duration
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// ReportErrorOptions contains options for reporting an error
type ReportErrorOptions struct {
	Error   string
	Message string
	// Color of the embed, red when zero
	Color int
	// Footer text, "PancyModBot" when empty
	Footer string
}

var (
	handler *ErrorHandler
	once    sync.Once
)

// Init initializes the global error handler used by RecoverMiddleware
func Init(webhookURL string, shutdownFunc func()) *ErrorHandler {
	once.Do(func() {
		handler = NewErrorHandler(webhookURL, shutdownFunc)
	})
	return handler
}

// NewErrorHandler creates a handler and starts its watchdog
func NewErrorHandler(webhookURL string, shutdownFunc func()) *ErrorHandler {
	h := newErrorHandler(webhookURL, shutdownFunc, defaultMaxErrors, defaultWindow)
	go h.watch()
	return h
}

func newErrorHandler(webhookURL string, shutdownFunc func(), maxErrors int32, window time.Duration) *ErrorHandler {
	return &ErrorHandler{
		webhookURL:   webhookURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		shutdownFunc: shutdownFunc,
		exit:         os.Exit,
		maxErrors:    maxErrors,
		window:       window,
		stopChan:     make(chan struct{}),
	}
}

// watch resets the error counter every window and checks it every second
func (h *ErrorHandler) watch() {
	reset := time.NewTicker(h.window)
	check := time.NewTicker(time.Second)
	defer reset.Stop()
	defer check.Stop()

	for {
		select {
		case <-reset.C:
			h.errorCount.Store(0)
		case <-check.C:
			if h.tripped() {
				h.shutdown()
				return
			}
		case <-h.stopChan:
			return
		}
	}
}

func (h *ErrorHandler) tripped() bool {
	return h.errorCount.Load() > h.maxErrors
}

func (h *ErrorHandler) shutdown() {
	start := time.Now()
	logger.Warn("Se detectó un número demasiado alto de errores, apagando...", "CRITICAL")

	h.Report(ReportErrorOptions{
		Error:   "Critical Error",
		Message: "Número inusual de errores. Apagando...",
	})
	if h.shutdownFunc != nil {
		h.shutdownFunc()
	}

	logger.Warn(fmt.Sprintf("Finalizando proceso... Tiempo total: %v", time.Since(start)), "CRITICAL")
	h.exit(1)
}

// Stop stops the watchdog. It is safe to call more than once.
func (h *ErrorHandler) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// IncrementError counts one error towards the shutdown threshold
func (h *ErrorHandler) IncrementError() {
	count := h.errorCount.Add(1)
	logger.Debug(fmt.Sprintf("Errores en la ventana actual: %d", count), "AntiCrash")
}

// HandlePanic handles a recovered panic
func (h *ErrorHandler) HandlePanic(recovered interface{}) {
	h.IncrementError()
	logger.Error(fmt.Sprintf("Panic recuperado: %v", recovered), "AntiCrash")
}

func (data ReportErrorOptions) payload() map[string]interface{} {
	color := data.Color
	if color == 0 {
		color = 0xFF0000
	}
	footer := data.Footer
	if footer == "" {
		footer = "PancyModBot"
	}

	return map[string]interface{}{
		"embeds": []interface{}{map[string]interface{}{
			"author":      map[string]string{"name": "Error " + data.Error},
			"description": data.Message,
			"color":       color,
			"footer":      map[string]string{"text": footer},
			"timestamp":   time.Now().Format(time.RFC3339),
		}},
	}
}

// Report sends an error report to the Discord webhook
func (h *ErrorHandler) Report(data ReportErrorOptions) {
	if h.webhookURL == "" {
		return
	}

	body, err := json.Marshal(data.payload())
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo serializar el reporte: %v", err), "AntiCrash")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.httpClient.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(body))
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo crear el reporte: %v", err), "AntiCrash")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo enviar el reporte: %v", err), "AntiCrash")
		return
	}
	resp.Body.Close()
	logger.Debug(fmt.Sprintf("Reporte enviado al webhook, estado %d", resp.StatusCode), "AntiCrash")
}

// Alert reports an operational failure that needs a human. It does not count
// towards the crash threshold and does not block the caller. The alert id in
// the footer matches the log line.
func (h *ErrorHandler) Alert(title, message string) {
	id := uuid.NewString()
	logger.Critical(fmt.Sprintf("[%s] %s: %s", id, title, message), "Alert")
	go h.Report(ReportErrorOptions{
		Error:   title,
		Message: message,
		Color:   0xFFA500,
		Footer:  "PancyModBot · alerta " + id,
	})
}

// RecoverMiddleware returns a recovery function for use in deferred calls
func RecoverMiddleware() func() {
	return func() {
		if r := recover(); r != nil {
			if handler != nil {
				handler.HandlePanic(r)
			} else {
				logger.Error(fmt.Sprintf("Panic recuperado (sin handler): %v", r), "AntiCrash")
			}
		}
	}
}
