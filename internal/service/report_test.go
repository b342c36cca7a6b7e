package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/domain/payload"
	"github.com/ladlehq/ladle/internal/mocks"
)

func TestReportGenerate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	t.Run("daily sales aggregates sale movements in the period", func(t *testing.T) {
		stock := newMockStockRepo()
		stock.moves = []model.StockMovement{
			{
				InventoryItemID: "ground-beef", LocationID: "loc-1",
				MovementType: model.MovementTypeSale, QuantityDelta: -450,
				CreatedAt: now.Add(-2 * time.Hour),
			},
			{
				InventoryItemID: "ground-beef", LocationID: "loc-1",
				MovementType: model.MovementTypeSale, QuantityDelta: -150,
				CreatedAt: now.Add(-1 * time.Hour),
			},
			{
				InventoryItemID: "ground-beef", LocationID: "loc-1",
				MovementType: model.MovementTypeReceiving, QuantityDelta: 5000,
				CreatedAt: now.Add(-3 * time.Hour),
			},
			{
				InventoryItemID: "ground-beef", LocationID: "loc-1",
				MovementType: model.MovementTypeSale, QuantityDelta: -100,
				CreatedAt: now.Add(-30 * time.Hour), // outside the default window
			},
		}

		svc, err := NewReportService(ReportServiceOptions{
			Stock:        stock,
			TimeProvider: fixedTime{now: now},
		})
		require.NoError(t, err)

		body, err := svc.Generate(ctx, payload.Report{
			Kind:       ReportKindDailySales,
			LocationID: "loc-1",
		})
		require.NoError(t, err)
		assert.Contains(t, body, "Sale movements: 2")
		assert.Contains(t, body, "item ground-beef consumed: 600.000")
	})

	t.Run("stock valuation lists threshold breaches", func(t *testing.T) {
		stock := newMockStockRepo()
		stock.put("loc-1", "flour", 5, 10)
		stock.put("loc-1", "salt", 50, 10)

		svc, err := NewReportService(ReportServiceOptions{
			Stock:        stock,
			TimeProvider: fixedTime{now: now},
		})
		require.NoError(t, err)

		body, err := svc.Generate(ctx, payload.Report{
			Kind:       ReportKindStockValuation,
			LocationID: "loc-1",
		})
		require.NoError(t, err)
		assert.Contains(t, body, "Items at or below minimum: 1")
		assert.Contains(t, body, "flour")
		assert.NotContains(t, body, "salt")
	})

	t.Run("unknown kind fails permanently", func(t *testing.T) {
		svc, err := NewReportService(ReportServiceOptions{Stock: newMockStockRepo()})
		require.NoError(t, err)

		_, err = svc.Generate(ctx, payload.Report{Kind: "weather", LocationID: "loc-1"})
		require.Error(t, err)
		assert.True(t, model.IsPermanent(err))
	})

	t.Run("malformed period fails permanently", func(t *testing.T) {
		svc, err := NewReportService(ReportServiceOptions{
			Stock:        newMockStockRepo(),
			TimeProvider: fixedTime{now: now},
		})
		require.NoError(t, err)

		_, err = svc.Generate(ctx, payload.Report{
			Kind:       ReportKindDailySales,
			LocationID: "loc-1",
			PeriodFrom: "yesterday",
		})
		require.Error(t, err)
		assert.True(t, model.IsPermanent(err))
	})

	t.Run("inverted period fails permanently", func(t *testing.T) {
		svc, err := NewReportService(ReportServiceOptions{
			Stock:        newMockStockRepo(),
			TimeProvider: fixedTime{now: now},
		})
		require.NoError(t, err)

		_, err = svc.Generate(ctx, payload.Report{
			Kind:       ReportKindDailySales,
			LocationID: "loc-1",
			PeriodFrom: "2026-03-02T00:00:00Z",
			PeriodTo:   "2026-03-01T00:00:00Z",
		})
		require.Error(t, err)
		assert.True(t, model.IsPermanent(err))
	})

	t.Run("delivers the report when recipients are configured", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		jobs := newTestJobService(t, repo)

		var created *model.CreateJobRequest
		repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				created = req
				return &model.Job{ID: "job-1", Category: req.Category}, nil
			})

		svc, err := NewReportService(ReportServiceOptions{
			Stock:        newMockStockRepo(),
			Jobs:         jobs,
			TimeProvider: fixedTime{now: now},
			Recipients:   []string{"ops@example.com"},
		})
		require.NoError(t, err)

		_, err = svc.Generate(ctx, payload.Report{
			Kind:       ReportKindStockValuation,
			LocationID: "loc-1",
		})
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, model.JobCategoryEmail, created.Category)
	})
}
