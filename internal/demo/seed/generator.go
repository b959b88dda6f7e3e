package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Event is one row of the demo events table.
type Event struct {
	EventID    int64     `parquet:"event_id"`
	UserID     string    `parquet:"user_id"`
	SessionID  string    `parquet:"session_id"`
	EventType  string    `parquet:"event_type"`
	Amount     float64   `parquet:"amount"`
	Currency   string    `parquet:"currency"`
	Country    string    `parquet:"country"`
	Device     string    `parquet:"device"`
	OccurredAt time.Time `parquet:"occurred_at"`
}

type Generator struct {
	rnd             *rand.Rand
	userCardinality int
	sequence        int64
	cursor          time.Time
	now             func() time.Time
}

func NewGenerator(seed int64, userCardinality int) *Generator {
	return &Generator{
		rnd:             rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
		userCardinality: userCardinality,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Next returns the next event. Event times walk backwards from the first
// call's clock by up to five minutes per row.
func (g *Generator) Next() Event {
	if g.cursor.IsZero() {
		g.cursor = g.now().Truncate(time.Millisecond)
	}
	g.sequence++
	eventType := g.pickEventType()
	g.cursor = g.cursor.Add(-time.Duration(g.rnd.IntN(300)+1) * time.Second)
	occurredAt := g.cursor

	return Event{
		EventID:    g.sequence,
		UserID:     fmt.Sprintf("user-%04d", g.rnd.IntN(g.userCardinality)+1),
		SessionID:  fmt.Sprintf("sess-%08x", g.rnd.Uint32()),
		EventType:  eventType,
		Amount:     g.pickAmount(eventType),
		Currency:   "USD",
		Country:    pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
		Device:     pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
		OccurredAt: occurredAt,
	}
}

// Batch returns n consecutive events.
func (g *Generator) Batch(n int) []Event {
	events := make([]Event, 0, n)
	for range n {
		events = append(events, g.Next())
	}
	return events
}

func (g *Generator) pickEventType() string {
	p := g.rnd.IntN(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

func (g *Generator) pickAmount(eventType string) float64 {
	switch eventType {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.IntN(len(values))]
}
