package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pulsefeed/ad-engine/internal/analytics"
	"github.com/pulsefeed/ad-engine/internal/config"
	"github.com/pulsefeed/ad-engine/internal/database"
	"github.com/pulsefeed/ad-engine/internal/engine"
	"github.com/pulsefeed/ad-engine/internal/metrics"
	"github.com/pulsefeed/ad-engine/internal/middleware"
	"github.com/pulsefeed/ad-engine/internal/models"
	"github.com/pulsefeed/ad-engine/internal/pacing"
	"github.com/pulsefeed/ad-engine/internal/storage"
	"github.com/pulsefeed/ad-engine/internal/targeting"
)

// Dependencies holds all external dependencies for the server. DB,
// Redis, ClickHouse and Geo are optional; the server degrades to
// memory-only operation without them.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Geo        targeting.GeoResolver
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server exposes the ad engine over HTTP.
type Server struct {
	ledger  *engine.Ledger
	capper  pacing.FrequencyCapper
	geo     targeting.GeoResolver
	logger  *zap.Logger
	config  *config.Config
	metrics *metrics.Metrics

	db         *database.PostgresDB
	redis      *database.RedisDB
	clickhouse *database.ClickHouseDB
}

// NewServer wires the engine from its dependencies and returns an
// http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	costs := engine.Costs{
		PerImpression: decimal.NewFromFloat(deps.Config.Serving.CostPerImpression),
		PerClick:      decimal.NewFromFloat(deps.Config.Serving.CostPerClick),
	}

	opts := []engine.Option{engine.WithCosts(costs)}
	if deps.Metrics != nil {
		opts = append(opts, engine.WithMetrics(deps.Metrics))
	}

	var store storage.Store
	if deps.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := storage.NewPostgresStore(ctx, deps.DB.Pool)
		cancel()
		if err != nil {
			deps.Logger.Warn("durable store unavailable, running memory-only", zap.Error(err))
		} else {
			store = pg
			opts = append(opts, engine.WithStore(store))
		}
	}

	var sink engine.EventSink = analytics.NoopSink{}
	if deps.ClickHouse != nil {
		chSink, err := analytics.NewClickHouseSink(deps.ClickHouse.Conn, deps.Logger)
		if err != nil {
			deps.Logger.Warn("analytics sink unavailable", zap.Error(err))
		} else {
			sink = chSink
		}
	}
	opts = append(opts, engine.WithEventSink(sink))

	ledger := engine.NewLedger(deps.Logger, opts...)

	if store != nil {
		restoreState(ledger, store, deps.Logger)
	}

	var capper pacing.FrequencyCapper
	if deps.Redis != nil {
		capper = pacing.NewRedisFrequencyCapper(deps.Redis.Client)
	} else {
		capper = pacing.NewInMemoryFrequencyCapper()
	}

	s := &Server{
		ledger:     ledger,
		capper:     capper,
		geo:        deps.Geo,
		logger:     deps.Logger,
		config:     deps.Config,
		metrics:    deps.Metrics,
		db:         deps.DB,
		redis:      deps.Redis,
		clickhouse: deps.ClickHouse,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Ad accounts
	mux.HandleFunc("/accounts", s.handleAccounts)
	mux.HandleFunc("/accounts/", s.handleAccountByID)

	// Ads
	mux.HandleFunc("/ads", s.handleAds)
	mux.HandleFunc("/ads/feed", s.handleFeed)
	mux.HandleFunc("/ads/", s.handleAdByID)

	var handler http.Handler = mux
	handler = middleware.NewLoggingMiddleware(deps.Logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)
	return handler
}

// restoreState rehydrates the ledger from the durable store.
func restoreState(ledger *engine.Ledger, store storage.Store, logger *zap.Logger) {
	accounts, err := store.LoadAccounts()
	if err != nil {
		logger.Error("failed to load accounts from store", zap.Error(err))
		return
	}
	for _, a := range accounts {
		ledger.RestoreAccount(a)
	}

	ads, err := store.LoadAds()
	if err != nil {
		logger.Error("failed to load ads from store", zap.Error(err))
		return
	}
	for _, a := range ads {
		ledger.RestoreAd(a)
	}

	logger.Info("ledger state restored",
		zap.Int("accounts", len(accounts)),
		zap.Int("ads", len(ads)),
	)
}

// ---- Health Check ----

// handleHealth reports overall status plus one entry per configured
// backend. Absent backends are reported as disabled, not unhealthy;
// the engine itself is always up if the handler answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{}
	probe := func(name string, check func(context.Context) error) {
		if check == nil {
			components[name] = "disabled"
			return
		}
		if err := check(ctx); err != nil {
			components[name] = "unhealthy"
			return
		}
		components[name] = "ok"
	}

	var pg, rd, ch func(context.Context) error
	if s.db != nil {
		pg = s.db.Health
	}
	if s.redis != nil {
		rd = s.redis.Health
	}
	if s.clickhouse != nil {
		ch = s.clickhouse.Health
	}
	probe("postgres", pg)
	probe("redis", rd)
	probe("clickhouse", ch)

	s.jsonResponse(w, map[string]interface{}{
		"status":     "ok",
		"components": components,
	})
}

// ---- Ad Accounts ----

type createAccountRequest struct {
	Name        string          `json:"name"`
	Timezone    string          `json:"timezone"`
	DailyBudget decimal.Decimal `json:"daily_budget"`
	Currency    string          `json:"currency"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}

		acct, err := s.ledger.CreateAdAccount(req.Name, req.Timezone, req.DailyBudget, req.Currency)
		if err != nil {
			s.errorResponse(w, err.Error(), statusFor(err))
			return
		}
		s.jsonResponse(w, acct)

	case http.MethodGet:
		s.jsonResponse(w, s.ledger.ListAccounts())

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAccountByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/accounts/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/reset"); ok {
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		acct, err := s.ledger.ResetAccount(id)
		if err != nil {
			s.errorResponse(w, err.Error(), statusFor(err))
			return
		}
		s.jsonResponse(w, acct)
		return
	}

	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	acct, err := s.ledger.GetAdAccount(rest)
	if err != nil {
		s.errorResponse(w, err.Error(), statusFor(err))
		return
	}
	s.jsonResponse(w, acct)
}

// ---- Ads ----

type createAdRequest struct {
	AdAccountID      string            `json:"ad_account_id"`
	AdvertiserHandle string            `json:"advertiser_handle"`
	Title            string            `json:"title"`
	MediaURL         string            `json:"media_url"`
	MediaType        models.MediaType  `json:"media_type"`
	DailyBudget      decimal.Decimal   `json:"daily_budget"`
	Timezone         string            `json:"timezone"`
	Options          *models.AdOptions `json:"options,omitempty"`
}

func (s *Server) handleAds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createAdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	ad, err := s.ledger.CreateAd(
		req.AdAccountID, req.AdvertiserHandle, req.Title, req.MediaURL,
		req.MediaType, req.DailyBudget, req.Timezone, req.Options,
	)
	if err != nil {
		s.errorResponse(w, err.Error(), statusFor(err))
		return
	}
	s.jsonResponse(w, ad)
}

func (s *Server) handleAdByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/ads/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ad, err := s.ledger.GetAd(id)
		if err != nil {
			s.errorResponse(w, err.Error(), statusFor(err))
			return
		}
		s.jsonResponse(w, ad)

	case len(parts) == 2 && parts[1] == "attribution":
		if r.Method != http.MethodGet {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := s.ledger.Attribution(id)
		if err != nil {
			s.errorResponse(w, err.Error(), statusFor(err))
			return
		}
		s.jsonResponse(w, res)

	case len(parts) == 3 && parts[1] == "events":
		s.handleEvent(w, r, id, parts[2])

	default:
		http.NotFound(w, r)
	}
}

// ---- Events ----

type eventRequest struct {
	ViewerID string `json:"viewer_id"`
	// ClickTime carries the epoch-ms click instant on conversion
	// requests, for attribution latency.
	ClickTime int64 `json:"click_time,omitempty"`
}

type conversionResponse struct {
	Ad        *models.Ad `json:"ad"`
	LatencyMs int64      `json:"latency_ms,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request, adID, kind string) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// An empty body is fine; viewer id and click time are optional.
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch kind {
	case "impression":
		ad, err := s.ledger.RecordImpression(adID, req.ViewerID)
		if err != nil {
			s.errorResponse(w, err.Error(), statusFor(err))
			return
		}
		s.jsonResponse(w, ad)

	case "click":
		ad, err := s.ledger.RecordClick(adID, req.ViewerID)
		if err != nil {
			s.errorResponse(w, err.Error(), statusFor(err))
			return
		}
		s.jsonResponse(w, ad)

	case "conversion":
		ad, latency, err := s.ledger.RecordConversion(adID, req.ViewerID, req.ClickTime)
		if err != nil {
			s.errorResponse(w, err.Error(), statusFor(err))
			return
		}
		s.jsonResponse(w, conversionResponse{Ad: ad, LatencyMs: latency})

	default:
		s.errorResponse(w, "unknown event kind", http.StatusBadRequest)
	}
}

// ---- Feed ----

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	viewer := &models.ViewerContext{
		ViewerID: q.Get("viewer"),
		Location: q.Get("location"),
	}
	if tags := q.Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				viewer.Tags = append(viewer.Tags, t)
			}
		}
	}

	// Fall back to GeoIP when the caller gave no explicit location.
	if viewer.Location == "" && s.geo != nil {
		if ip := q.Get("ip"); ip != "" {
			loc, err := s.geo.Resolve(ip)
			if err != nil {
				s.logger.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
			} else {
				viewer.Location = loc
			}
		}
	}

	ads := s.ledger.ListEligibleAds(viewer)

	if limit := s.config.Serving.FreqCapPerViewerPerDay; limit > 0 && viewer.ViewerID != "" {
		capped := ads[:0]
		for _, ad := range ads {
			if s.capper.Allow(r.Context(), ad.ID, viewer.ViewerID, limit) {
				capped = append(capped, ad)
			} else if s.metrics != nil {
				s.metrics.RecordFreqCapRejection()
			}
		}
		ads = capped
	}

	if s.metrics != nil {
		s.metrics.RecordFeed(len(ads))
	}
	if ads == nil {
		ads = []*models.Ad{}
	}
	s.jsonResponse(w, ads)
}

// ---- Helpers ----

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrAdNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTimezone):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
