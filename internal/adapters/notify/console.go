package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/capmbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	scale int64
	now   func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(scale int64) *Console {
	return &Console{out: os.Stdout, scale: scale, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, scale: domain.DefaultScale, now: time.Now}
}

// PrintPayoffs imprime E y Var por activo y la matriz de covarianzas.
func (c *Console) PrintPayoffs(markets []domain.Market, model *domain.PayoffModel) {
	assets := model.Assets()
	fmt.Fprintf(c.out, "\n[%s] payoffs recomputed - %d assets, %d states, gen %d\n",
		c.now().Format("15:04:05"), len(assets), model.States(), model.Generation())

	names := make(map[string]string, len(markets))
	for _, m := range markets {
		names[m.Asset] = fmt.Sprintf("%d %s", m.ID, m.Name)
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Asset", "Market", "Payoffs", "E", "Var")
	for _, a := range assets {
		table.Append(
			a,
			strings.TrimSpace(names[a]),
			descriptionOf(markets, a),
			fmt.Sprintf("%.4f", model.ExpectedPayoff(a)),
			fmt.Sprintf("%.6f", model.Variance(a)),
		)
	}
	table.Render()

	if len(assets) < 2 {
		return
	}

	cov := tablewriter.NewWriter(c.out)
	header := append([]any{"Cov"}, toAny(assets)...)
	cov.Header(header...)
	for _, a := range assets {
		row := []any{a}
		for _, b := range assets {
			row = append(row, fmt.Sprintf("%.6f", model.Covariance(a, b)))
		}
		cov.Append(row...)
	}
	cov.Render()
}

// PrintDecision imprime una línea por orden enviada.
func (c *Console) PrintDecision(d domain.Decision) {
	if d.Order == nil {
		return
	}
	o := d.Order
	fmt.Fprintf(c.out, "[%s] %-9s %-4s %s @ %s  score %.5f → %.5f  [%s]\n",
		c.now().Format("15:04:05"),
		d.Mode,
		o.Side,
		o.Asset,
		domain.FormatCurrency(o.Price, c.scale),
		d.CurrentScore,
		d.CandidateScore,
		o.Status,
	)
	for _, s := range d.Skipped {
		fmt.Fprintf(c.out, "           skipped market %d %s @ %s: %v\n",
			s.MarketID, s.Side, domain.FormatCurrency(s.Price, c.scale), s.Err)
	}
}

// PrintSession imprime el resumen de una sesión cerrada.
func (c *Console) PrintSession(s domain.SessionSummary) {
	fmt.Fprintf(c.out, "\n[%s] session %s closed\n", c.now().Format("15:04:05"), shortID(s.ID))

	table := tablewriter.NewWriter(c.out)
	table.Header("Opened", "Duration", "Submitted", "Traded", "Outstanding", "Score")
	duration := "-"
	if !s.OpenedAt.IsZero() && !s.ClosedAt.IsZero() {
		duration = s.ClosedAt.Sub(s.OpenedAt).Round(time.Second).String()
	}
	table.Append(
		s.OpenedAt.Local().Format("2006-01-02 15:04:05"),
		duration,
		fmt.Sprintf("%d", s.Submitted),
		fmt.Sprintf("%d", s.Traded),
		fmt.Sprintf("%d", s.Outstanding),
		fmt.Sprintf("%.5f", s.FinalScore),
	)
	table.Render()

	if s.Outstanding > 0 {
		fmt.Fprintf(c.out, "  %d orders still resting, no cancellation was sent\n", s.Outstanding)
	}
}

// PrintOrders imprime el journal de órdenes de una sesión (-report).
func (c *Console) PrintOrders(s domain.SessionSummary, orders []domain.TrackedOrder) {
	fmt.Fprintf(c.out, "session %s - opened %s\n", s.ID, s.OpenedAt.Local().Format("2006-01-02 15:04:05"))
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "  no orders")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Created", "Market", "Asset", "Side", "Price", "Status", "Reason")
	counts := map[domain.OrderStatus]int{}
	for i, o := range orders {
		counts[o.Status]++
		table.Append(
			fmt.Sprintf("%d", i+1),
			o.CreatedAt.Local().Format("15:04:05.000"),
			fmt.Sprintf("%d", o.MarketID),
			o.Asset,
			o.Side.String(),
			domain.FormatCurrency(o.Price, c.scale),
			o.Status.String(),
			o.Reason,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  sent %d | accepted %d | traded %d | rejected %d | cancelled %d\n",
		counts[domain.StatusSent], counts[domain.StatusAccepted], counts[domain.StatusTraded],
		counts[domain.StatusRejected], counts[domain.StatusCancelled])
}

// --- helpers ---

func descriptionOf(markets []domain.Market, asset string) string {
	for _, m := range markets {
		if m.Asset == asset {
			return m.Description
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
