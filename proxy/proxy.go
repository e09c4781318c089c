// Package proxy provides the generation server: it accepts normalized chat
// requests, runs them through the stream pump against the selected upstream
// vendor, and streams normalized events back to the client as NDJSON.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"go.uber.org/zap"

	"github.com/papercomputeco/streampump/pkg/dialect"
	"github.com/papercomputeco/streampump/pkg/eventstream/nop"
	"github.com/papercomputeco/streampump/pkg/fetch"
	"github.com/papercomputeco/streampump/pkg/llm"
	"github.com/papercomputeco/streampump/pkg/metrics"
	"github.com/papercomputeco/streampump/pkg/pump"
	"github.com/papercomputeco/streampump/pkg/session"
	"github.com/papercomputeco/streampump/proxy/header"
	"github.com/papercomputeco/streampump/proxy/worker"
)

// Proxy is the generation server. Every request is served by its own pump
// run; finished generations are enqueued for async telemetry via the worker
// pool.
type Proxy struct {
	config        Config
	registry      *dialect.Registry
	pump          *pump.Pump
	metrics       *metrics.Metrics
	workerPool    *worker.Pool
	logger        *zap.Logger
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Proxy.
func New(config Config, logger *zap.Logger) (*Proxy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := make([]dialect.Option, 0, len(config.Upstreams))
	for tag, host := range config.Upstreams {
		if _, err := dialect.New(tag); err != nil {
			return nil, fmt.Errorf("invalid upstream: %w", err)
		}
		opts = append(opts, dialect.WithHost(tag, host))
	}
	registry := dialect.NewRegistry(opts...)

	publisher := config.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	m := metrics.New()

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ReadTimeout:           config.RequestTimeout,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	p := &Proxy{
		config:   config,
		registry: registry,
		pump: pump.New(pump.Config{
			Preparer: registry,
			Fetcher:  fetch.NewClient(nil, logger),
			Retry:    config.Retry,
			Observer: m,
			Logger:   logger,
		}),
		metrics:       m,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
	}

	app.Get("/ping", p.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	app.Get("/v1/dialects", p.handleDialects)
	app.Post("/v1/chat/generate", p.handleGenerate)

	return p, nil
}

// Run starts the server on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting generation server",
		zap.String("listen", p.config.ListenAddr),
		zap.Strings("dialects", p.registry.Tags()),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting generation server",
		zap.String("listen", listener.Addr().String()),
		zap.Strings("dialects", p.registry.Tags()),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the server and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// handlePing returns a simple health check response.
func (p *Proxy) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleDialects lists the supported dialect tags.
func (p *Proxy) handleDialects(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"dialects": p.registry.Tags()})
}

// handleGenerate runs one generation and streams its events as NDJSON.
func (p *Proxy) handleGenerate(c *fiber.Ctx) error {
	var req llm.GenerateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body: " + err.Error()})
	}
	req.Access.Headers = p.headerHandler.FilterUpstreamHeaders(req.Access.Headers)

	p.logger.Debug("generation requested",
		zap.String("dialect", req.Access.Dialect),
		zap.String("model", req.Model.ID),
		zap.Int("message_count", len(req.History)),
	)

	p.headerHandler.SetStreamResponseHeaders(c)

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the generation runs
	// asynchronously while the body is streamed. The context is cancelled
	// when a write to the client fails.
	ctx, cancel := context.WithCancel(context.Background())

	// io.Pipe gives per-event backpressure: pw.Write blocks until fasthttp's
	// chunked body writer has consumed the line and flushed it to the socket.
	pr, pw := io.Pipe()
	go p.streamGeneration(ctx, cancel, &req, pw)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// streamGeneration runs the pump and writes one JSON line per event to pw.
func (p *Proxy) streamGeneration(ctx context.Context, cancel context.CancelFunc, req *llm.GenerateRequest, pw *io.PipeWriter) {
	defer cancel()

	enc := json.NewEncoder(pw)
	var writeErr error

	result := p.pump.Run(ctx, req, func(ev session.Event) {
		if writeErr != nil {
			return
		}
		// Encode writes the line and its newline in a single Write.
		if err := enc.Encode(ev); err != nil {
			writeErr = err
			p.logger.Debug("client went away", zap.Error(err))
			cancel()
		}
	})

	// Non-blocking enqueue for async telemetry. Enqueue before closing the
	// stream: Close waits for open responses, then closes the pool.
	p.workerPool.Enqueue(worker.Job{Result: result})

	if err := pw.Close(); err != nil {
		p.logger.Debug("failed to close response stream", zap.Error(err))
	}
}
