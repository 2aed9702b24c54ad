// Package web serves the bot's diagnostics API with gin. Requests from hosts
// outside the PancyStudios domains are rejected and reported to a webhook.
package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	rateWindow      = time.Minute
	rateMaxRequests = 100
	// distinct clients tracked by the rate limiter; the oldest are forgotten first
	rateClients = 4096
)

var allowedHosts = regexp.MustCompile(`^((.+\.)?miau\.media|localhost|127\.0\.0\.1)(:\d+)?$`)

// Server represents the web server
type Server struct {
	engine     *gin.Engine
	webhookURL string
	httpClient *http.Client
}

// Init creates the bot's web server
func Init(webhookURL string) *Server {
	return NewServer(webhookURL)
}

// NewServer creates a gin engine with host filtering, request logging and
// per-IP rate limiting
func NewServer(webhookURL string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:     gin.New(),
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	s.engine.Use(gin.Recovery(), s.logsMiddleware(), rateLimitMiddleware(rateWindow, rateMaxRequests))
	s.setupErrorHandlers()
	return s
}

// Engine returns the underlying Gin engine
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// requestLog is what gets reported about one request. It is captured before
// the handler goroutine returns the gin context to its pool.
type requestLog struct {
	Method     string
	Path       string
	IP         string
	Query      string
	Headers    http.Header
	Suspicious bool
}

func (s *Server) logsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		entry := requestLog{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			IP:         c.ClientIP(),
			Query:      c.Request.URL.RawQuery,
			Headers:    c.Request.Header.Clone(),
			Suspicious: !allowedHosts.MatchString(c.Request.Host),
		}

		if entry.Suspicious {
			logger.Warn(fmt.Sprintf("Solicitud sospechosa: %s %s | %s (%s)", entry.Method, entry.Path, entry.IP, c.Request.Host), "WebServer")
			go s.sendLogToWebhook(entry)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		logger.Debug(fmt.Sprintf("%s %s desde %s", entry.Method, entry.Path, entry.IP), "WebServer")
		go s.sendLogToWebhook(entry)
		c.Next()
	}
}

func (entry requestLog) embed() map[string]interface{} {
	title := "💫 | Nueva solicitud al servidor web de tipo " + entry.Method
	color := 0x00AE86
	if entry.Suspicious {
		title = fmt.Sprintf("💫 | Solicitud Sospechosa Rechazada: %s %s", entry.Method, entry.Path)
		color = 0xFFA500
	}

	headers, _ := json.Marshal(entry.Headers)
	query := entry.Query
	if query == "" {
		query = "{}"
	}

	return map[string]interface{}{
		"title": title,
		"description": fmt.Sprintf(
			"> **Ruta:** `%s`\n> **IP:** `%s`\n> **Headers:** ```%s``` \n> **Query:** ```%s```",
			entry.Path, entry.IP, headers, query,
		),
		"color":     color,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (s *Server) sendLogToWebhook(entry requestLog) {
	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(map[string]interface{}{"embeds": []interface{}{entry.embed()}})
	if err != nil {
		return
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Debug(fmt.Sprintf("Webhook de solicitudes no disponible: %v", err), "WebServer")
		return
	}
	resp.Body.Close()
}

// rateBucket counts the requests of one client inside the current window
type rateBucket struct {
	mu    sync.Mutex
	count int
}

// rateLimitMiddleware allows max requests per client IP and window. Buckets
// expire with the window, so a client gets a fresh quota once it passes.
func rateLimitMiddleware(window time.Duration, max int) gin.HandlerFunc {
	buckets := expirable.NewLRU[string, *rateBucket](rateClients, nil, window)
	var mu sync.Mutex

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		b, ok := buckets.Get(ip)
		if !ok {
			b = &rateBucket{}
			buckets.Add(ip, b)
		}
		mu.Unlock()

		b.mu.Lock()
		b.count++
		over := b.count > max
		b.mu.Unlock()

		if over {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Demasiadas solicitudes, por favor intente de nuevo más tarde.",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupErrorHandlers() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "La ruta solicitada no existe.",
			"status":  http.StatusNotFound,
		})
	})
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":   "Method Not Allowed",
			"message": "El método HTTP no está permitido para esta ruta.",
			"status":  http.StatusMethodNotAllowed,
		})
	})
}

// Start serves on port, blocking
func (s *Server) Start(port string) error {
	logger.Info(fmt.Sprintf("🚀 Servidor escuchando en http://localhost:%s", port), "WebServer")
	return s.engine.Run(":" + port)
}

// StartAsync serves on port in a goroutine
func (s *Server) StartAsync(port string) {
	go func() {
		if err := s.Start(port); err != nil {
			logger.Error(fmt.Sprintf("Error iniciando el servidor web: %v", err), "WebServer")
		}
	}()
}

// Group creates a new router group
func (s *Server) Group(path string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return s.engine.Group(path, handlers...)
}
