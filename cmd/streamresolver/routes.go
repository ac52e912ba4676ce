package main

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/streamresolver/internal/api/handlers"
	"github.com/jmylchreest/streamresolver/internal/models"
)

func registerV1(api huma.API, streams *handlers.StreamHandler, caches *handlers.CacheHandler, sessions *handlers.SessionHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "resolveStream",
		Method:      http.MethodGet,
		Path:        "/v1/stream",
		Summary:     "Resolve stream",
		Description: "Returns the manifest URL and request context for a video",
		Tags:        []string{"Streams"},
	}, func(ctx context.Context, input *models.ResolveQuery) (*models.HumaStreamResponse, error) {
		resp := streams.Handle(ctx, &models.ResolveRequest{
			Ref:       input.Ref,
			Force:     input.Force,
			Qualities: input.Qualities,
		})
		return &models.HumaStreamResponse{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolveStreamPost",
		Method:      http.MethodPost,
		Path:        "/v1/stream",
		Summary:     "Resolve stream (body)",
		Description: "Same as GET /v1/stream with the request in a JSON body",
		Tags:        []string{"Streams"},
	}, func(ctx context.Context, input *models.HumaResolveRequest) (*models.HumaStreamResponse, error) {
		resp := streams.Handle(ctx, &input.Body)
		return &models.HumaStreamResponse{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cacheStats",
		Method:      http.MethodGet,
		Path:        "/v1/cache",
		Summary:     "Cache statistics",
		Tags:        []string{"Cache"},
	}, func(ctx context.Context, input *struct{}) (*models.HumaCacheResponse, error) {
		return &models.HumaCacheResponse{Body: *caches.Stats(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invalidateStream",
		Method:      http.MethodDelete,
		Path:        "/v1/cache/{videoId}",
		Summary:     "Invalidate cached stream",
		Tags:        []string{"Cache"},
	}, func(ctx context.Context, input *models.InvalidateRequest) (*models.HumaCacheResponse, error) {
		return &models.HumaCacheResponse{Body: *caches.Invalidate(ctx, input.VideoID)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sessionInfo",
		Method:      http.MethodGet,
		Path:        "/v1/session",
		Summary:     "Browser session",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *struct{}) (*models.HumaSessionResponse, error) {
		return &models.HumaSessionResponse{Body: *sessions.Info(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sessionReset",
		Method:      http.MethodPost,
		Path:        "/v1/session/reset",
		Summary:     "Restart browser session",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *struct{}) (*models.HumaSessionResponse, error) {
		return &models.HumaSessionResponse{Body: *sessions.Reset(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sessionProxy",
		Method:      http.MethodPost,
		Path:        "/v1/session/proxy",
		Summary:     "Toggle upstream proxy",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *models.HumaProxyRequest) (*models.HumaSessionResponse, error) {
		return &models.HumaSessionResponse{Body: *sessions.SetProxy(ctx, &input.Body)}, nil
	})
}
