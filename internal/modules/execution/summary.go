package execution

import (
	"context"

	"github.com/aristath/paperdesk/internal/domain"
)

// PortfolioSummary is the read-model for one portfolio: cash, holdings
// marked at their last observed price, and realized performance.
type PortfolioSummary struct {
	Portfolio      *domain.Portfolio   `json:"portfolio"`
	Positions      []domain.Position   `json:"positions"`
	PositionsValue domain.Money        `json:"positions_value"`
	TotalValue     domain.Money        `json:"total_value"`
	UnrealizedPnL  domain.Money        `json:"unrealized_pnl"`
	Performance    *domain.Performance `json:"performance"`

	// Formatted USD strings for UI consumption; the plain decimal fields
	// above remain the machine-readable values.
	CashDisplay       string `json:"cash_display"`
	TotalValueDisplay string `json:"total_value_display"`
}

// Summary assembles the portfolio view for userID, creating the
// portfolio on first use.
func (s *Service) Summary(ctx context.Context, userID string) (*PortfolioSummary, error) {
	portfolio, err := s.portfolios.GetOrCreate(userID, s.startingCash)
	if err != nil {
		return nil, err
	}

	positions, err := s.positions.ListByPortfolio(portfolio.ID)
	if err != nil {
		return nil, err
	}

	perf, err := s.performance.Get(portfolio.ID)
	if err != nil {
		return nil, err
	}

	summary := &PortfolioSummary{
		Portfolio:   portfolio,
		Positions:   positions,
		Performance: perf,
	}
	for i := range positions {
		summary.PositionsValue = summary.PositionsValue.Add(positions[i].CurrentValue())
		summary.UnrealizedPnL = summary.UnrealizedPnL.Add(positions[i].UnrealizedPnL())
	}
	summary.TotalValue = portfolio.CashBalance.Add(summary.PositionsValue)
	summary.CashDisplay = portfolio.CashBalance.Display()
	summary.TotalValueDisplay = summary.TotalValue.Display()
	return summary, nil
}

// Performance returns the user's realized trading results.
func (s *Service) Performance(ctx context.Context, userID string) (*domain.Performance, error) {
	portfolio, err := s.portfolios.GetOrCreate(userID, s.startingCash)
	if err != nil {
		return nil, err
	}
	return s.performance.Get(portfolio.ID)
}

// Transactions returns the user's recent audit trail, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	portfolio, err := s.portfolios.GetOrCreate(userID, s.startingCash)
	if err != nil {
		return nil, err
	}
	return s.transactions.ListByPortfolio(portfolio.ID, limit)
}
