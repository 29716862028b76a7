// Package rest serves the read API over the taxonomy cache.
package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"taxonomy-backend/internal/cache"
	"taxonomy-backend/internal/domain/category"
	apperrors "taxonomy-backend/internal/errors"
	"taxonomy-backend/internal/infrastructure/observability"
	"taxonomy-backend/internal/infrastructure/responsecache"
)

// Dependencies holds what the handlers read from.
type Dependencies struct {
	Cache     *cache.Cache
	Observer  *cache.Observer
	Responses *responsecache.MemoryCache
	Metrics   *observability.Collector
	Logger    *zap.Logger
}

// Server holds the handlers.
type Server struct {
	cache     *cache.Cache
	responses *responsecache.MemoryCache
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewRouter builds the chi router. When an observer is given, any change it
// applies clears the response cache.
func NewRouter(deps Dependencies) (*chi.Mux, func()) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cache: deps.Cache, responses: deps.Responses, metrics: deps.Metrics, logger: logger.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/scopes", s.listScopes)
	r.Get("/scopes/{scopeId}/categories", s.scopeCategories)

	r.Route("/categories/{categoryId}", func(r chi.Router) {
		r.Get("/subtree", s.subtree)
		r.Get("/ancestors", s.ancestors)
		r.Get("/items", s.items)
	})

	stop := func() {}
	if deps.Observer != nil && s.responses != nil {
		stop = InvalidateOnChange(deps.Observer, s.responses)
	}
	return r, stop
}

// InvalidateOnChange clears responses whenever observer applies a change.
// The returned func detaches the handlers.
func InvalidateOnChange(observer *cache.Observer, responses *responsecache.MemoryCache) func() {
	removers := []func(){
		observer.OnScopesChanged(func(category.ChangeEvent[category.Scope]) { responses.Clear("*") }),
		observer.OnCategoriesChanged(func(category.ChangeEvent[category.Category]) { responses.Clear("*") }),
		observer.OnCategoryItemsChanged(func(category.ChangeEvent[category.CategoryItem]) { responses.Clear("*") }),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, route, ww.Status(), duration)
		}
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", duration),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// HealthResponse reports cache sizes.
type HealthResponse struct {
	Status string      `json:"status"`
	Cache  cache.Stats `json:"cache"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Cache: s.cache.Stats()})
}

func (s *Server) listScopes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(s.cache.Scopes()))
}

// scopeCategories lists a scope's categories; ?roots=true keeps only roots.
func (s *Server) scopeCategories(w http.ResponseWriter, r *http.Request) {
	id := category.ScopeID(chi.URLParam(r, "scopeId"))
	rootsOnly, err := boolQuery(r, "roots")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.cache.GetScope(id); err != nil {
		s.writeError(w, r, err)
		return
	}

	var categories []category.Category
	if rootsOnly {
		categories, err = s.cache.GetRootCategoriesForScope(id)
	} else {
		categories, err = s.cache.GetCategoriesForScope(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(categories))
}

func (s *Server) subtree(w http.ResponseWriter, r *http.Request) {
	id := category.CategoryID(chi.URLParam(r, "categoryId"))
	key := "subtree:" + string(id)
	// The generation is read before the cache snapshot so a body rendered
	// across an invalidation is served but not stored.
	var gen uint64
	if s.responses != nil {
		gen = s.responses.Generation()
		if body, ok := s.responses.Get(key); ok {
			writeRaw(w, body)
			return
		}
	}

	node, err := s.cache.GetSubtree(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := json.Marshal(NewNodeResponse(node))
	if err != nil {
		s.writeError(w, r, apperrors.Internal("ENCODE_FAILED", "cannot encode subtree").WithCause(err).Build())
		return
	}
	if s.responses != nil {
		s.responses.SetIfGeneration(key, body, gen)
	}
	writeRaw(w, body)
}

func (s *Server) ancestors(w http.ResponseWriter, r *http.Request) {
	id := category.CategoryID(chi.URLParam(r, "categoryId"))
	if _, err := s.cache.GetCategory(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	path, err := s.cache.GetAncestorPath(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

// items lists a category's items; ?descendants=true includes the whole
// subtree.
func (s *Server) items(w http.ResponseWriter, r *http.Request) {
	id := category.CategoryID(chi.URLParam(r, "categoryId"))
	descendants, err := boolQuery(r, "descendants")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.cache.GetCategory(id); err != nil {
		s.writeError(w, r, err)
		return
	}

	var items []category.CategoryItem
	if descendants {
		items, err = s.cache.GetDescendantItems(id)
	} else {
		items, err = s.cache.GetChildItems(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(items))
}

func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.Validation("INVALID_QUERY_PARAMETER", "query parameter must be a boolean").
			WithDetails(name + "=" + raw).
			Build()
	}
	return v, nil
}

func zapRequest(r *http.Request, err *apperrors.UnifiedError) []zap.Field {
	return []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("type", string(err.Type)),
		zap.String("code", err.Code),
		zap.Error(err),
	}
}
