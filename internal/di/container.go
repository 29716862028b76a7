package di

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taxonomy-backend/internal/cache"
	"taxonomy-backend/internal/config"
	"taxonomy-backend/internal/infrastructure/observability"
	"taxonomy-backend/internal/infrastructure/responsecache"
	"taxonomy-backend/internal/repository"
	"taxonomy-backend/internal/service/taxonomy"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Collector
	Tracing   *observability.TracerProvider
	Store     repository.Store
	API       *taxonomy.API
	Observer  *cache.Observer
	Responses *responsecache.MemoryCache
	Forwarder *EventForwarder
	Router    *chi.Mux
}
