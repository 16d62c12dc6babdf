// Package mocks provides gomock implementations of the ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobRecordStore(ctrl)
//	store.EXPECT().Get(gomock.Any(), "id").Return(nil, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_record_store_mock.go github.com/cutline/cutline-jobs/internal/core JobRecordStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/cutline/cutline-jobs/internal/core JobQueue
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=permit_mock.go github.com/cutline/cutline-jobs/internal/core Permit
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rate_limiter_mock.go github.com/cutline/cutline-jobs/internal/core RateLimiter

// Media collaborators: Download, Render, ResolveMusic/ResolveIngest.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=downloader_mock.go github.com/cutline/cutline-jobs/internal/core Downloader
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=renderer_mock.go github.com/cutline/cutline-jobs/internal/core Renderer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=asset_resolver_mock.go github.com/cutline/cutline-jobs/internal/core AssetResolver
