package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Publisher ships result summaries to an external consumer
type Publisher interface {
	Publish(ctx context.Context, run string, res *Result) error
}

// NATSPublisher publishes protobuf-encoded summaries on
// <subject>.<strategy>.<phase>
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATSPublisher connects to the NATS server at url
func NewNATSPublisher(url, subject string, timeout time.Duration) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("pairs-backtest"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}
	return &NATSPublisher{conn: conn, subject: subject, timeout: timeout}, nil
}

// Subject returns the subject a result is published on
func (p *NATSPublisher) Subject(res *Result) string {
	return SummarySubject(p.subject, res)
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ctx context.Context, run string, res *Result) error {
	msg, err := EncodeSummary(run, res)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal summary")
	}

	subject := p.Subject(res)
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return errors.Wrap(p.conn.FlushWithContext(ctx), "flush")
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// SummarySubject builds <base>.<strategy>.<phase> with NATS-safe tokens
func SummarySubject(base string, res *Result) string {
	return fmt.Sprintf("%s.%s.%s", base, subjectToken(res.Strategy), subjectToken(res.Phase))
}

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

// EncodeSummary converts a result into a protobuf Struct. Non-finite metric
// values are sent as strings ("NaN", "+Inf", "-Inf").
func EncodeSummary(run string, res *Result) (*structpb.Struct, error) {
	m := res.Metrics
	fields := map[string]interface{}{
		"run":                   run,
		"strategy":              res.Strategy,
		"method":                string(res.Method),
		"phase":                 res.Phase,
		"start":                 res.Start().Format(DateLayout),
		"end":                   res.End().Format(DateLayout),
		"periods":               m.Periods,
		"trade_count":           protoNumber(m.TradeCount),
		"open_at_end":           m.OpenAtEnd,
		"total_return":          protoNumber(m.TotalReturn),
		"annualized_return":     protoNumber(m.AnnualizedReturn),
		"sharpe_ratio":          protoNumber(m.SharpeRatio),
		"sortino_ratio":         protoNumber(m.SortinoRatio),
		"calmar_ratio":          protoNumber(m.CalmarRatio),
		"max_drawdown":          protoNumber(m.MaxDrawdown),
		"max_drawdown_days":     m.MaxDrawdownDuration.Hours() / 24,
		"exposure":              protoNumber(m.Exposure),
		"total_cost":            protoNumber(m.TotalCost),
		"excluded_periods":      m.ExcludedPeriods,
		"published_at_unix_sec": time.Now().Unix(),
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "encode summary")
	}
	return s, nil
}

func protoNumber(v float64) interface{} {
	if !isFinite(v) {
		return formatFloat(v)
	}
	return v
}
