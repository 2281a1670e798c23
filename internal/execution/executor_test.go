package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/ledger"
)

var t0 = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newExecutor(cash string, risk domain.RiskParams) *Executor {
	l := ledger.New("run-1|bot-a", domain.Budget{Cash: dec(cash)})
	e := NewExecutor(Options{Owner: "run-1", BotID: "bot-a", Risk: risk, Ledger: l})
	e.StartDay(t0)
	return e
}

func buy(symbol string, qty int64, price string, at time.Time) domain.Decision {
	return domain.Decision{BotID: "bot-a", Symbol: symbol, Action: domain.ActionBuy, Quantity: qty, Price: dec(price), Timestamp: at}
}

func sell(symbol string, qty int64, price string, at time.Time) domain.Decision {
	d := buy(symbol, qty, price, at)
	d.Action = domain.ActionSell
	return d
}

func statuses(o *domain.Order) []domain.OrderStatus {
	out := []domain.OrderStatus{domain.OrderStatusWaiting}
	for _, tr := range o.History {
		out = append(out, tr.To)
	}
	return out
}

func TestExecutor_MarketBuyDone(t *testing.T) {
	e := newExecutor("1000", domain.RiskParams{})

	o, err := e.Execute(buy("ACME", 10, "50", t0))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDone, o.Status)
	assert.Equal(t, []domain.OrderStatus{
		domain.OrderStatusWaiting, domain.OrderStatusInProgress, domain.OrderStatusDone,
	}, statuses(o))
	assert.True(t, o.FillPrice.Equal(dec("50")))
	assert.True(t, e.Ledger().Cash().Equal(dec("500")))
	assert.Equal(t, 1, e.Daily().Trades)
}

func TestExecutor_InsufficientFundsIsAnOutcome(t *testing.T) {
	e := newExecutor("100", domain.RiskParams{})

	o, err := e.Execute(buy("ACME", 10, "50", t0))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInsufficientFunds, o.Status)
	assert.True(t, e.Ledger().Cash().Equal(dec("100")))
	assert.Zero(t, e.Daily().Trades)

	o, err = e.Execute(sell("ACME", 1, "50", t0))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInsufficientFunds, o.Status, "overselling is symmetric with buying")
}

func TestExecutor_DailyLossGateBlocksSellBeforeOrder(t *testing.T) {
	e := newExecutor("10000", domain.RiskParams{MaxDailyLoss: dec("100")})

	_, err := e.Execute(buy("ACME", 10, "100", t0))
	require.NoError(t, err)
	_, err = e.Execute(buy("BOLT", 10, "100", t0))
	require.NoError(t, err)

	// First losing trade: -$60.
	o, err := e.Execute(sell("ACME", 10, "94", t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDone, o.Status)
	assert.True(t, e.Daily().Loss().Equal(dec("60")))

	// Second losing trade of -$50 would bring the day to -$110.
	before := len(e.Orders())
	_, err = e.Execute(sell("BOLT", 10, "95", t0.Add(2*time.Minute)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.Len(t, e.Orders(), before, "no order may be created when the gate blocks")
	assert.Equal(t, int64(10), e.Ledger().Position("BOLT"))
}

func TestExecutor_MaxDailyTrades(t *testing.T) {
	e := newExecutor("10000", domain.RiskParams{MaxDailyTrades: 2})

	for i := 0; i < 2; i++ {
		_, err := e.Execute(buy("ACME", 1, "10", t0))
		require.NoError(t, err)
	}
	_, err := e.Execute(buy("ACME", 1, "10", t0))
	assert.True(t, errors.Is(err, ErrLimitExceeded))

	e.StartDay(t0.AddDate(0, 0, 1))
	_, err = e.Execute(buy("ACME", 1, "10", t0.AddDate(0, 0, 1)))
	assert.NoError(t, err, "counters reset at the day boundary")
}

func TestExecutor_ProtectiveExitBypassesGates(t *testing.T) {
	e := newExecutor("10000", domain.RiskParams{MaxDailyTrades: 1})
	_, err := e.Execute(buy("ACME", 5, "100", t0))
	require.NoError(t, err)

	exit := sell("ACME", 5, "90", t0.Add(time.Minute))
	exit.Reason = domain.ReasonStopLoss
	o, err := e.Execute(exit)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDone, o.Status)
}

func TestExecutor_LotExitSellsThatLot(t *testing.T) {
	e := newExecutor("10000", domain.RiskParams{})
	_, err := e.Execute(buy("ACME", 5, "50", t0))
	require.NoError(t, err)
	_, err = e.Execute(buy("ACME", 5, "100", t0.Add(time.Minute)))
	require.NoError(t, err)
	newer := e.Ledger().Lots("ACME")[1]

	exit := sell("ACME", 5, "90", t0.Add(2*time.Minute))
	exit.Reason = domain.ReasonStopLoss
	exit.LotID = newer.ID
	o, err := e.Execute(exit)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDone, o.Status)
	assert.Equal(t, newer.ID, o.LotID)
	assert.True(t, o.RealizedPnL.Equal(dec("-50")), "realized %s", o.RealizedPnL)

	lots := e.Ledger().Lots("ACME")
	require.Len(t, lots, 1)
	assert.True(t, lots[0].Price.Equal(dec("50")))
}

func TestExecutor_LotExitForClosedLotIsRejected(t *testing.T) {
	e := newExecutor("10000", domain.RiskParams{})
	exit := sell("ACME", 5, "90", t0)
	exit.Reason = domain.ReasonTakeProfit
	exit.LotID = "gone"
	o, err := e.Execute(exit)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInsufficientFunds, o.Status)
}

func TestExecutor_MaxPositionSize(t *testing.T) {
	e := newExecutor("10000", domain.RiskParams{MaxPositionSize: dec("500")})

	_, err := e.Execute(buy("ACME", 4, "100", t0))
	require.NoError(t, err)
	_, err = e.Execute(buy("ACME", 2, "100", t0))
	assert.True(t, errors.Is(err, ErrLimitExceeded))
}

func TestExecutor_TargetOrderWaitsForCross(t *testing.T) {
	e := newExecutor("1000", domain.RiskParams{})

	o, err := e.PlaceTarget(buy("ACME", 2, "100", t0), dec("95"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWaiting, o.Status)

	assert.Empty(t, e.OnPrice("ACME", 96, t0.Add(time.Minute)))
	assert.Empty(t, e.OnPrice("BOLT", 90, t0.Add(time.Minute)), "other symbols never trigger")

	filled := e.OnPrice("ACME", 94.5, t0.Add(2*time.Minute))
	require.Len(t, filled, 1)
	assert.Equal(t, domain.OrderStatusDone, filled[0].Status)
	assert.True(t, filled[0].FillPrice.Equal(dec("94.5")))
	assert.True(t, e.Ledger().Cash().Equal(dec("811")))
}

func TestExecutor_CancelAllLeavesNoOpenOrders(t *testing.T) {
	e := newExecutor("1000", domain.RiskParams{})
	_, err := e.PlaceTarget(buy("ACME", 1, "100", t0), dec("90"))
	require.NoError(t, err)
	_, err = e.PlaceTarget(buy("BOLT", 1, "100", t0), dec("90"))
	require.NoError(t, err)

	cancelled := e.CancelAll("run cancelled", t0.Add(time.Minute))
	assert.Len(t, cancelled, 2)
	for _, o := range e.Orders() {
		assert.True(t, o.Status.IsTerminal())
	}
	assert.Empty(t, e.OnPrice("ACME", 50, t0.Add(2*time.Minute)))
}

func TestExecutor_StatusIsMonotonic(t *testing.T) {
	e := newExecutor("1000", domain.RiskParams{})

	done, err := e.Execute(buy("ACME", 1, "10", t0))
	require.NoError(t, err)
	rejected, err := e.Execute(buy("ACME", 1000, "10", t0))
	require.NoError(t, err)
	waiting, err := e.PlaceTarget(buy("ACME", 1, "10", t0), dec("5"))
	require.NoError(t, err)
	cancelled, err := e.Cancel(waiting.ID, t0.Add(time.Second))
	require.NoError(t, err)

	for _, o := range []*domain.Order{done, rejected, cancelled} {
		_, err := e.Cancel(o.ID, t0.Add(time.Minute))
		assert.True(t, errors.Is(err, ErrInvalidTransition), "order %s in %s must stay terminal", o.ID, o.Status)
	}
	byID := make(map[string]domain.OrderStatus)
	for _, o := range e.Orders() {
		byID[o.ID] = o.Status
	}
	for _, o := range []*domain.Order{done, rejected, cancelled} {
		assert.Equal(t, o.Status, byID[o.ID])
	}
}

func TestCanTransition(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusWaiting,
		domain.OrderStatusInProgress,
		domain.OrderStatusDone,
		domain.OrderStatusCancelled,
		domain.OrderStatusInsufficientFunds,
	}
	for _, from := range all {
		for _, to := range all {
			if from.IsTerminal() && CanTransition(from, to) {
				t.Errorf("terminal %s must not transition to %s", from, to)
			}
			if to == domain.OrderStatusWaiting && CanTransition(from, to) {
				t.Errorf("%s -> waiting goes backward", from)
			}
		}
	}
	if !CanTransition(domain.OrderStatusWaiting, domain.OrderStatusInProgress) {
		t.Error("waiting -> in_progress must be allowed")
	}
}

func TestExecutor_DrainTerminalOnce(t *testing.T) {
	e := newExecutor("1000", domain.RiskParams{})
	_, _ = e.Execute(buy("ACME", 1, "10", t0))
	_, _ = e.PlaceTarget(buy("ACME", 1, "10", t0), dec("5"))

	assert.Len(t, e.DrainTerminal(), 1)
	assert.Empty(t, e.DrainTerminal())

	e.CancelAll("end of day", t0.Add(time.Hour))
	assert.Len(t, e.DrainTerminal(), 1)
}
