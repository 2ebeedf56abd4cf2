package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/providers"
	"andaman_booking_echo/internal/services"
	"andaman_booking_echo/internal/sessions"
)

const (
	dateLayout        = "2006-01-02"
	defaultSessionTTL = 30 * time.Minute
	defaultSearchTTL  = 5 * time.Minute
)

// FerryHandler proxies search, seat layout and ticket downloads to the ferry
// operators and keeps checkout sessions.
type FerryHandler struct {
	registry   *providers.Registry
	sessions   sessions.Store
	cache      *services.RedisCache
	log        *logrus.Logger
	sessionTTL time.Duration
	searchTTL  time.Duration
	now        func() time.Time
}

type FerryHandlerConfig struct {
	Registry   *providers.Registry
	Sessions   sessions.Store
	Cache      *services.RedisCache
	Log        *logrus.Logger
	SessionTTL time.Duration
	SearchTTL  time.Duration
}

func NewFerryHandler(cfg FerryHandlerConfig) *FerryHandler {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = defaultSearchTTL
	}
	return &FerryHandler{
		registry:   cfg.Registry,
		sessions:   cfg.Sessions,
		cache:      cfg.Cache,
		log:        cfg.Log,
		sessionTTL: cfg.SessionTTL,
		searchTTL:  cfg.SearchTTL,
		now:        time.Now,
	}
}

// Post handles POST /api/ferry?action=search|seat-layout|create-session.
func (h *FerryHandler) Post(c echo.Context) error {
	switch c.QueryParam("action") {
	case "search":
		return h.search(c)
	case "seat-layout":
		return h.seatLayout(c)
	case "create-session":
		return h.createSession(c)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown action")
	}
}

// Get handles GET /api/ferry?action=health|get-session|download-pdf.
func (h *FerryHandler) Get(c echo.Context) error {
	switch c.QueryParam("action") {
	case "health":
		return h.health(c)
	case "get-session":
		return h.getSession(c)
	case "download-pdf":
		return h.downloadTicket(c)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown action")
	}
}

type searchRequest struct {
	From       string `json:"from" validate:"required"`
	To         string `json:"to" validate:"required,nefield=From"`
	Date       string `json:"date" validate:"required"`
	Passengers int    `json:"passengers" validate:"omitempty,gte=1,lte=20"`
}

type searchResult struct {
	Ferries  []providers.Ferry `json:"ferries"`
	Failures map[string]string `json:"failures,omitempty"`
}

var errAllOperatorsFailed = errors.New("every ferry operator failed")

func (h *FerryHandler) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	if req.Passengers == 0 {
		req.Passengers = 1
	}

	q := providers.SearchQuery{From: req.From, To: req.To, Date: date, Passengers: req.Passengers}
	key := fmt.Sprintf("ferry:search:%s:%s:%s:%d",
		strings.ToLower(q.From), strings.ToLower(q.To), req.Date, q.Passengers)

	var failures map[string]string
	res, err := services.GetOrSet(h.cache, c.Request().Context(), key, h.searchTTL, func() (searchResult, error) {
		ferries, fails := h.registry.SearchAll(c.Request().Context(), q)
		failures = fails
		if len(ferries) == 0 && len(fails) > 0 && len(fails) == len(h.registry.Names()) {
			return searchResult{}, errAllOperatorsFailed
		}
		return searchResult{Ferries: ferries, Failures: fails}, nil
	})
	if errors.Is(err, errAllOperatorsFailed) {
		h.log.WithField("failures", failures).Warn("ferry search failed for every operator")
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"message": "Ferry operators are unavailable, please try again",
			"errors":  failures,
		})
	}
	if err != nil {
		return err
	}
	if res.Ferries == nil {
		res.Ferries = []providers.Ferry{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    res.Ferries,
		"errors":  res.Failures,
	})
}

type seatLayoutRequest struct {
	FerryID string `json:"ferryId" validate:"required"`
	ClassID string `json:"classId"`
	Date    string `json:"date"`
}

func (h *FerryHandler) seatLayout(c echo.Context) error {
	var req seatLayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	var date time.Time
	if req.Date != "" {
		d, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		date = d
	}

	p, rest, err := h.registry.ForFerryID(req.FerryID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown ferry operator")
	}
	layout, err := p.GetSeatLayout(c.Request().Context(), providers.SeatLayoutQuery{
		FerryID:         req.FerryID,
		OperatorFerryID: rest,
		ClassID:         req.ClassID,
		Date:            date,
	})
	if err != nil {
		h.log.WithFields(logrus.Fields{"operator": p.Name(), "ferry_id": req.FerryID}).WithError(err).Warn("seat layout failed")
		return echo.NewHTTPError(http.StatusBadGateway, "Unable to load seat layout").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": layout})
}

func (h *FerryHandler) createSession(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || len(obj) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Session data must be a non-empty object")
	}

	s := sessions.NewSession(body, h.now(), h.sessionTTL)
	if err := h.sessions.Set(c.Request().Context(), s); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store session").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": s.ID,
		"expiresAt": s.ExpiresAt,
	})
}

func (h *FerryHandler) getSession(c echo.Context) error {
	id := c.QueryParam("sessionId")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId is required")
	}
	s, err := h.sessions.Get(c.Request().Context(), id)
	if errors.Is(err, sessions.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found or expired")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": s})
}

func (h *FerryHandler) health(c echo.Context) error {
	statuses := h.registry.Health(c.Request().Context())
	healthy := true
	for _, s := range statuses {
		if s != "ok" {
			healthy = false
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   healthy,
		"operators": statuses,
	})
}

func (h *FerryHandler) downloadTicket(c echo.Context) error {
	pnr := c.QueryParam("pnr")
	operator := c.QueryParam("operator")
	if pnr == "" || operator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "pnr and operator are required")
	}
	p, err := h.registry.Get(operator)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown ferry operator")
	}
	ticket, err := p.DownloadTicket(c.Request().Context(), pnr)
	if err != nil {
		h.log.WithFields(logrus.Fields{"operator": operator, "pnr": pnr}).WithError(err).Warn("ticket download failed")
		return echo.NewHTTPError(http.StatusBadGateway, "Unable to download ticket").SetInternal(err)
	}

	contentType := ticket.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="ticket-%s.pdf"`, pnr))
	return c.Blob(http.StatusOK, contentType, ticket.Data)
}
