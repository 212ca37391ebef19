// Package api exposes the coordination state over a small admin HTTP
// surface: health probes, cluster introspection, and manual message or
// coordination injection for operators.
package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/meftunca/podsync/pkg/common"
	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/coordinator"
	podsyncjson "github.com/meftunca/podsync/pkg/json"
	"github.com/meftunca/podsync/pkg/types"
)

// AdminServer serves the admin REST API over Fiber v2.
type AdminServer struct {
	app   *fiber.App
	coord *coordinator.Coordinator
	cfg   *config.Config
	log   common.Logger

	startTime    time.Time
	requestCount int64
	errorCount   int64
}

// NewAdminServer wires the admin API around an already-started coordinator.
func NewAdminServer(cfg *config.Config, coord *coordinator.Coordinator, log common.Logger) *AdminServer {
	if log == nil {
		log = common.NewLogger("api")
	}

	enc := podsyncjson.NewEncoder(cfg.Serialization.JSONConfig)

	app := fiber.New(fiber.Config{
		ServerHeader:          "podsync",
		AppName:               "podsync admin",
		ReadTimeout:           cfg.API.ReadTimeout,
		WriteTimeout:          cfg.API.WriteTimeout,
		DisableStartupMessage: true,
		JSONEncoder:           enc.Marshal,
		JSONDecoder:           enc.Unmarshal,
	})

	s := &AdminServer{
		app:       app,
		coord:     coord,
		cfg:       cfg,
		log:       log,
		startTime: time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes()
	return s
}

func (s *AdminServer) setupMiddlewares() {
	s.app.Use(requestid.New())
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006/01/02 15:04:05",
		TimeZone:   "Local",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
	}))
	s.app.Use(s.countRequests)
}

func (s *AdminServer) countRequests(c *fiber.Ctx) error {
	err := c.Next()
	atomic.AddInt64(&s.requestCount, 1)
	if err != nil || c.Response().StatusCode() >= fiber.StatusInternalServerError {
		atomic.AddInt64(&s.errorCount, 1)
	}
	return err
}

func (s *AdminServer) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/status", s.handleStatus)

	v1 := s.app.Group("/api/v1")
	v1.Get("/cluster/info", s.handleClusterInfo)
	v1.Get("/cluster/leader", s.handleLeader)
	v1.Get("/pods", s.handlePods)
	v1.Post("/messages/broadcast", s.handleBroadcast)
	v1.Post("/messages/pod/:id", s.handleSendToPod)
	v1.Post("/coordinate", s.handleCoordinate)
}

// Start blocks serving HTTP until Stop is called.
func (s *AdminServer) Start(addr string) error {
	s.log.Infof("admin API listening on %s", addr)
	return s.app.Listen(addr)
}

// Stop drains in-flight requests and shuts the listener down.
func (s *AdminServer) Stop(ctx context.Context) error {
	s.log.Infof("admin API shutting down")
	return s.app.ShutdownWithContext(ctx)
}

func (s *AdminServer) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		PodID:     string(s.coord.PodID()),
		IsLeader:  s.coord.IsLeader(),
		UptimeSec: time.Since(s.startTime).Seconds(),
	})
}

func (s *AdminServer) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "running",
		"pod_id":         string(s.coord.PodID()),
		"uptime":         time.Since(s.startTime).String(),
		"requests_total": atomic.LoadInt64(&s.requestCount),
		"errors_total":   atomic.LoadInt64(&s.errorCount),
	})
}

func (s *AdminServer) leaderInfo(c *fiber.Ctx) *LeaderInfo {
	record, ok := s.coord.Leader(c.Context())
	if !ok {
		return nil
	}
	return &LeaderInfo{
		LeaderID:      string(record.LeaderID),
		Term:          record.Term,
		LastHeartbeat: record.LastHeartbeat,
		Status:        string(record.Status(s.cfg.Election.ElectionTimeout)),
	}
}

func (s *AdminServer) handleClusterInfo(c *fiber.Ctx) error {
	pods := s.coord.ActivePods(c.Context())
	ids := make([]string, 0, len(pods))
	for _, p := range pods {
		ids = append(ids, string(p))
	}

	return c.JSON(ClusterInfoResponse{
		PodID:      string(s.coord.PodID()),
		IsLeader:   s.coord.IsLeader(),
		Leader:     s.leaderInfo(c),
		ActivePods: ids,
		PodCount:   len(ids),
	})
}

func (s *AdminServer) handleLeader(c *fiber.Ctx) error {
	info := s.leaderInfo(c)
	if info == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error: "no leader lease present",
			Code:  string(types.ErrCodeLeaseNotFound),
		})
	}
	return c.JSON(info)
}

func (s *AdminServer) handlePods(c *fiber.Ctx) error {
	pods := s.coord.ActivePods(c.Context())
	ids := make([]string, 0, len(pods))
	for _, p := range pods {
		ids = append(ids, string(p))
	}
	return c.JSON(fiber.Map{"pods": ids, "count": len(ids)})
}

func (s *AdminServer) handleBroadcast(c *fiber.Ctx) error {
	var req BroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	if req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "message type is required"})
	}

	priority := types.MessagePriority(req.Priority)
	if priority == "" {
		priority = types.PriorityNormal
	}

	s.coord.Broadcast(types.MessageType(req.Type), req.Payload, priority)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

func (s *AdminServer) handleSendToPod(c *fiber.Ctx) error {
	target := c.Params("id")
	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "target pod id is required"})
	}

	var req BroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	if req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "message type is required"})
	}

	priority := types.MessagePriority(req.Priority)
	if priority == "" {
		priority = types.PriorityNormal
	}

	s.coord.SendToPod(types.PodID(target), types.MessageType(req.Type), req.Payload, priority)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

func (s *AdminServer) handleCoordinate(c *fiber.Ctx) error {
	var req CoordinateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	op := types.CoordinateOp(req.Operation)
	if !op.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "unknown coordination operation",
			Code:  string(types.ErrCodeInvalidOp),
		})
	}

	if !s.coord.Coordinate(op, req.Data) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error: "this pod is not the leader",
			Code:  string(types.ErrCodeNotLeader),
		})
	}
	return c.JSON(fiber.Map{"coordinated": true, "operation": req.Operation})
}
