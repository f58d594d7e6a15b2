package backtest

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

// LoadSeries reads the configured CSV source into an aligned series
func LoadSeries(cfg DataSettings) (*pricedata.Series, error) {
	layout := cfg.DateFormat
	if layout == "" {
		layout = DateLayout
	}

	if cfg.DataPath != "" {
		f, err := os.Open(cfg.DataPath)
		if err != nil {
			return nil, errors.Wrap(err, "open aligned data")
		}
		defer f.Close()
		return ReadAligned(f, layout, cfg.TickerY, cfg.TickerX)
	}

	y, err := loadQuotes(cfg.YPath, layout, cfg.TickerY)
	if err != nil {
		return nil, err
	}
	x, err := loadQuotes(cfg.XPath, layout, cfg.TickerX)
	if err != nil {
		return nil, err
	}
	series, err := pricedata.Align(y, x)
	if err != nil {
		return nil, errors.Wrapf(err, "align %s/%s", cfg.TickerY, cfg.TickerX)
	}
	return series, nil
}

func loadQuotes(path, layout, ticker string) ([]pricedata.Quote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s quotes", ticker)
	}
	defer f.Close()

	quotes, err := ReadQuotes(f, layout)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return quotes, nil
}

// ReadQuotes parses a date,close CSV. Rows with an empty or unparsable
// close are skipped; a bad date is an error.
func ReadQuotes(r io.Reader, layout string) ([]pricedata.Quote, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	cols := indexHeader(header)
	dateCol, ok := cols.find("date", "datetime", "timestamp")
	if !ok {
		return nil, errors.Errorf("no date column in header %v", header)
	}
	closeCol, ok := cols.find("close", "adj close", "adj_close", "price")
	if !ok {
		return nil, errors.Errorf("no close column in header %v", header)
	}

	quotes := make([]pricedata.Quote, 0, 1024)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		date, err := time.Parse(layout, strings.TrimSpace(record[dateCol]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid date", line)
		}
		price, ok := parsePrice(record[closeCol])
		if !ok {
			continue
		}
		quotes = append(quotes, pricedata.Quote{Date: date, Close: price})
	}
	return quotes, nil
}

// ReadAligned parses a date,price_y,price_x CSV. The price columns may also
// be named after the tickers. Incomplete rows are dropped.
func ReadAligned(r io.Reader, layout, tickerY, tickerX string) (*pricedata.Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	cols := indexHeader(header)
	dateCol, ok := cols.find("date", "datetime", "timestamp")
	if !ok {
		return nil, errors.Errorf("no date column in header %v", header)
	}
	yCol, ok := cols.find("price_y", tickerY)
	if !ok {
		return nil, errors.Errorf("no price_y column in header %v", header)
	}
	xCol, ok := cols.find("price_x", tickerX)
	if !ok {
		return nil, errors.Errorf("no price_x column in header %v", header)
	}

	var ys, xs []pricedata.Quote
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		date, err := time.Parse(layout, strings.TrimSpace(record[dateCol]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid date", line)
		}
		py, okY := parsePrice(record[yCol])
		px, okX := parsePrice(record[xCol])
		if !okY || !okX {
			continue
		}
		ys = append(ys, pricedata.Quote{Date: date, Close: py})
		xs = append(xs, pricedata.Quote{Date: date, Close: px})
	}

	series, err := pricedata.Align(ys, xs)
	if err != nil {
		return nil, errors.Wrap(err, "aligned data")
	}
	return series, nil
}

// WriteAligned writes a series in the format ReadAligned accepts
func WriteAligned(w io.Writer, series *pricedata.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "price_y", "price_x"}); err != nil {
		return err
	}
	for i := 0; i < series.Len(); i++ {
		record := []string{
			series.Dates[i].Format(DateLayout),
			strconv.FormatFloat(series.Y[i], 'f', -1, 64),
			strconv.FormatFloat(series.X[i], 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func (h headerIndex) find(names ...string) (int, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if i, ok := h[strings.ToLower(n)]; ok {
			return i, true
		}
	}
	return 0, false
}

func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}
