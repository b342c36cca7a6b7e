// Package mocks provides mock implementations for testing the ladle job and
// inventory system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// our repository interfaces. The mocks are generated using go:generate
// directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/ladlehq/ladle/internal/core JobRepository

// Generate mock for StockRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=stock_repository_mock.go github.com/ladlehq/ladle/internal/core StockRepository
