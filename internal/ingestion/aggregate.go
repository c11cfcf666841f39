package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/pagelake/internal/domain"
	"github.com/rpattn/pagelake/internal/repository"

	"github.com/shopspring/decimal"
)

// MonthTotal is the summed amount of processed rows for one calendar month.
type MonthTotal struct {
	Year   int             `json:"year"`
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"total_amount"`
}

// TotalForMonth sums processed amounts whose staging date falls in year-month.
// An empty month totals zero.
func (s *Service) TotalForMonth(ctx context.Context, year, month int) (MonthTotal, error) {
	if _, err := domain.MonthPrefix(year, month); err != nil {
		return MonthTotal{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	total, err := s.processed.SumAmountForMonth(ctx, year, month)
	if err != nil {
		if errors.Is(err, repository.ErrMalformedAmount) {
			return MonthTotal{}, fmt.Errorf("%w: %v", ErrAggregationInput, err)
		}
		return MonthTotal{}, persistenceError("sum processed amounts", err)
	}
	return MonthTotal{Year: year, Month: month, Amount: total}, nil
}

// TotalForCurrentMonth sums the month of the service clock.
func (s *Service) TotalForCurrentMonth(ctx context.Context) (MonthTotal, error) {
	now := s.now()
	return s.TotalForMonth(ctx, now.Year(), int(now.Month()))
}
