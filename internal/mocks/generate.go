// Package mocks provides gomock implementations of the booking engine ports.
//
// The mocks are generated with go.uber.org/mock (gomock). To regenerate after interface
// changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	transport := mocks.NewMockNotificationTransport(ctrl)
//	transport.EXPECT().SendPush(gomock.Any(), "tok", gomock.Any()).Return(model.SendResult{}, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/dtapi/booking-engine/internal/core JobStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=notification_transport_mock.go github.com/dtapi/booking-engine/internal/core NotificationTransport
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=translator_directory_mock.go github.com/dtapi/booking-engine/internal/core TranslatorDirectory
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/dtapi/booking-engine/internal/core CacheRepository
