// Package mocks provides mock implementations for testing the canvascast job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our store interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockCache := mocks.NewMockCacheRepository(ctrl)
//	mockCache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
package mocks

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Get, Set, Delete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/canvascast/canvascast-go/internal/core CacheRepository

// Generate mock for DraftStore interface from internal/core package.
// This creates MockDraftStore with methods for all DraftStore interface methods:
// Claim, CleanupExpired
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=draft_store_mock.go github.com/canvascast/canvascast-go/internal/core DraftStore
