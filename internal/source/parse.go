package source

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	alarm "github.com/jorgeroden/plc-alarm-watcher/internal/domain/alarm"
)

// Signal is one row of the PLC sensors page.
type Signal struct {
	// Code is the sensor identifier (S1, S2, ...).
	Code string
	// Label is the human-readable sensor name.
	Label string
	// Value is the current reading, verbatim.
	Value string
	// Unit is the reading unit, verbatim.
	Unit string
	// Alarm is the sensor's alarm column, verbatim.
	Alarm string
}

// Column counts below which a table row is not a data row.
const (
	alarmColumns  = 7
	signalColumns = 6
)

// parseAlarms extracts the alarm snapshot from the alarms page.
// Layout: ref, label, type, value, time, transition, state.
func parseAlarms(doc *goquery.Document) ([]alarm.Record, error) {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("alarms table not found: %w", ErrParseFailed)
	}

	records := make([]alarm.Record, 0)

	table.Find("tr").Each(func(index int, row *goquery.Selection) {
		if index == 0 {
			// Header row.
			return
		}

		cells := row.Find("td")
		if cells.Length() < alarmColumns {
			return
		}

		text := func(column int) string {
			return strings.TrimSpace(cells.Eq(column).Text())
		}

		var (
			ref        = text(0)
			label      = text(1)
			kind       = text(2)
			value      = text(3)
			plcTime    = text(4)
			transition = text(5)
			state      = text(6)
		)

		records = append(records, alarm.Record{
			Key:         alarm.NewRecordKey(ref, plcTime, transition, value, label),
			Timestamp:   plcTime,
			Description: label,
			RawFields:   []string{ref, kind, value, transition, state},
		})
	})

	return records, nil
}

// parseSignals extracts the sensors snapshot from the signals page.
// Layout: code, label, value, unit, (range), alarm.
func parseSignals(doc *goquery.Document) ([]Signal, error) {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("signals table not found: %w", ErrParseFailed)
	}

	signals := make([]Signal, 0)

	table.Find("tr").Each(func(index int, row *goquery.Selection) {
		if index == 0 {
			return
		}

		cells := row.Find("td")
		if cells.Length() < signalColumns {
			return
		}

		text := func(column int) string {
			return strings.TrimSpace(cells.Eq(column).Text())
		}

		signals = append(signals, Signal{
			Code:  text(0),
			Label: text(1),
			Value: text(2),
			Unit:  text(3),
			Alarm: text(5),
		})
	})

	// Numeric order (S1, S2, S10) instead of the page's lexical order.
	sort.SliceStable(signals, func(i, j int) bool {
		return signalOrder(signals[i].Code) < signalOrder(signals[j].Code)
	})

	return signals, nil
}

// signalOrder maps a sensor code to its numeric rank; unknown codes sort last.
func signalOrder(code string) int {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !strings.HasPrefix(code, "S") {
		return math.MaxInt
	}

	rank, err := strconv.Atoi(code[1:])
	if err != nil {
		return math.MaxInt
	}

	return rank
}
