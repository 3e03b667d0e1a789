package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/present/rest/presenter"
	"github.com/totegamma/spamguard/internal/usecase"
)

type SpamHandler interface {
	HandleArticle(ctx context.Context, articleID int64) (usecase.Outcome, error)
	HandleComment(ctx context.Context, commentID int64) (usecase.Outcome, error)
	HandleUser(ctx context.Context, userID int64, opts usecase.HandleUserOptions) (usecase.Outcome, error)
}

type DomainChecker interface {
	CheckUser(ctx context.Context, userID int64) (bool, error)
}

type RingDetector interface {
	Call(ctx context.Context, userID int64) (bool, error)
	Analyze(ctx context.Context, userID int64) (usecase.RingAnalysis, error)
}

// ModerationReader exposes moderation state to moderators.
type ModerationReader interface {
	IsDomainBlocked(ctx context.Context, emailDomain string) (bool, error)
	BlockedDomains(ctx context.Context) ([]domain.BlockedEmailDomain, error)
	NotesFor(ctx context.Context, subject domain.Ref) ([]domain.Note, error)
}

type FlagSetter interface {
	Set(ctx context.Context, name string, enabled bool) error
}

type SignalStream interface {
	Realtime(ctx context.Context, input <-chan []string, output chan<- domain.ModerationSignal)
}

type Handler struct {
	spam       SpamHandler
	domains    DomainChecker
	rings      RingDetector
	moderation ModerationReader
	flags      FlagSetter
	signal     SignalStream
	logger     *zap.Logger
}

func NewHandler(
	spam SpamHandler,
	domains DomainChecker,
	rings RingDetector,
	moderation ModerationReader,
	flags FlagSetter,
	signal SignalStream,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		spam:       spam,
		domains:    domains,
		rings:      rings,
		moderation: moderation,
		flags:      flags,
		signal:     signal,
		logger:     logger.With(zap.String("module", "rest")),
	}
}

// RegisterRoutes mounts the moderation API. Every route but /healthz goes
// through auth.
func (h *Handler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/healthz", h.handleHealthz)

	g := e.Group("", auth)
	g.POST("/spam/articles/:id", h.handleSpamArticle)
	g.POST("/spam/comments/:id", h.handleSpamComment)
	g.POST("/spam/users/:id", h.handleSpamUser)
	g.POST("/users/:id/domain-check", h.handleDomainCheck)
	g.POST("/users/:id/reaction-ring", h.handleReactionRing)
	g.GET("/users/:id/reaction-ring", h.handleReactionRingAnalysis)
	g.GET("/users/:id/notes", h.handleUserNotes)
	g.GET("/blocked-domains", h.handleBlockedDomains)
	g.GET("/blocked-domains/:domain", h.handleBlockedDomain)
	g.PUT("/flags/:name", h.handleSetFlag)
	g.GET("/realtime", h.handleRealtime)
}

func (h *Handler) handleHealthz(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func failure(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return presenter.NotFound(c, err.Error())
	}
	return presenter.InternalError(c, err)
}

func (h *Handler) handleSpamArticle(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid article id")
	}

	outcome, err := h.spam.HandleArticle(ctx, id)
	if err != nil {
		return failure(c, err)
	}
	return presenter.OK(c, echo.Map{"outcome": outcome})
}

func (h *Handler) handleSpamComment(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid comment id")
	}

	outcome, err := h.spam.HandleComment(ctx, id)
	if err != nil {
		return failure(c, err)
	}
	return presenter.OK(c, echo.Map{"outcome": outcome})
}

func (h *Handler) handleSpamUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	var opts usecase.HandleUserOptions
	if raw := c.QueryParam("rigorous"); raw != "" {
		rigorous, err := strconv.ParseBool(raw)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid rigorous parameter")
		}
		opts.Rigorous = rigorous
	}

	outcome, err := h.spam.HandleUser(ctx, id, opts)
	if err != nil {
		return failure(c, err)
	}
	return presenter.OK(c, echo.Map{"outcome": outcome})
}

func (h *Handler) handleDomainCheck(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	blocked, err := h.domains.CheckUser(ctx, id)
	if err != nil {
		return failure(c, err)
	}
	return presenter.OK(c, echo.Map{"blocked": blocked})
}

func (h *Handler) handleReactionRing(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	ring, err := h.rings.Call(ctx, id)
	if err != nil {
		return failure(c, err)
	}
	return presenter.OK(c, echo.Map{"ring": ring})
}

func (h *Handler) handleReactionRingAnalysis(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	analysis, err := h.rings.Analyze(ctx, id)
	if err != nil {
		return failure(c, err)
	}
	return presenter.OK(c, analysis)
}

func (h *Handler) handleUserNotes(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c)
	if !ok {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	notes, err := h.moderation.NotesFor(ctx, domain.UserRef(id))
	if err != nil {
		return failure(c, err)
	}
	return presenter.OK(c, notes)
}

func (h *Handler) handleBlockedDomains(c echo.Context) error {
	ctx := c.Request().Context()

	domains, err := h.moderation.BlockedDomains(ctx)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, domains)
}

func (h *Handler) handleBlockedDomain(c echo.Context) error {
	ctx := c.Request().Context()

	emailDomain := strings.ToLower(strings.TrimSpace(c.Param("domain")))
	if emailDomain == "" || !strings.Contains(emailDomain, ".") {
		return presenter.BadRequestMessage(c, "invalid domain")
	}

	blocked, err := h.moderation.IsDomainBlocked(ctx, emailDomain)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, echo.Map{"domain": emailDomain, "blocked": blocked})
}

type setFlagRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) handleSetFlag(c echo.Context) error {
	ctx := c.Request().Context()

	name := c.Param("name")
	var req setFlagRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Enabled == nil {
		return presenter.BadRequestMessage(c, "enabled is required")
	}

	if err := h.flags.Set(ctx, name, *req.Enabled); err != nil {
		return presenter.InternalError(c, err)
	}
	h.logger.Info("feature flag updated", zap.String("flag", name), zap.Bool("enabled", *req.Enabled))
	return presenter.OK(c, echo.Map{"flag": name, "enabled": *req.Enabled})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type  string   `json:"type"`
	Types []string `json:"types"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan domain.ModerationSignal)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{}, 1)

	go func() {
		defer func() { quit <- struct{}{} }()
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				var wsErr *websocket.CloseError
				if errors.As(err, &wsErr) {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						h.logger.Debug("WebSocket closed", zap.Error(wsErr))
					}
				} else if ctx.Err() == nil {
					h.logger.Error("Error reading message", zap.Error(err))
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Types:
				case <-ctx.Done():
					return
				}
				h.logger.Debug("Socket subscribe", zap.Strings("types", req.Types))
			case "h": // heartbeat
			default:
				h.logger.Info("Unknown request type", zap.String("type", req.Type))
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return nil
		case signal := <-output:
			err := ws.WriteJSON(signal)
			if err != nil {
				h.logger.Error("Error writing message", zap.Error(err))
				return nil
			}
		}
	}
}
