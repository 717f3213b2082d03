package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"realty-agent/internal/domain"
)

const (
	readRange  = "Sheet1!A1:F1000"
	writeRange = "Sheet1!A1"
	// statusCol is the column the sheet owner edits by hand; rows with a
	// non-blank status are dropped on the next sync so handled bookings
	// disappear from the sheet.
	statusCol = 5
)

var defaultHeader = []interface{}{"type", "date", "time", "clientName", "phone", "status"}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// AppointmentLister provides the full appointment set for a sync.
type AppointmentLister interface {
	ListAppointments(ctx context.Context) ([]domain.Appointment, error)
}

// valuesAPI is the minimal spreadsheet surface required by Mirror.
// Defined here for testability.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) (*sheets.ValueRange, error)
	Update(ctx context.Context, spreadsheetID, writeRange string, values *sheets.ValueRange) error
}

// Values adapts *sheets.Service to valuesAPI.
type Values struct {
	svc *sheets.Service
}

func (g *Values) Get(ctx context.Context, spreadsheetID, rng string) (*sheets.ValueRange, error) {
	return g.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
}

func (g *Values) Update(ctx context.Context, spreadsheetID, rng string, values *sheets.ValueRange) error {
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, rng, values).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// NewValues builds the production valuesAPI from service-account credentials
// JSON stored in the parameter store under <prefix>/sheets-credentials.
func NewValues(ctx context.Context, getter Getter, paramPrefix string) (*Values, error) {
	if getter == nil {
		return nil, errors.New("sheets: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("sheets: parameter prefix must not be empty")
	}

	credsJSON, err := getter.GetParameter(ctx, paramPrefix+"/sheets-credentials")
	if err != nil {
		return nil, fmt.Errorf("sheets: fetch service account credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON([]byte(credsJSON)),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Values{svc: svc}, nil
}

// Mirror replicates the appointment table into a spreadsheet. One-way and
// best effort: the booking write never waits on or fails with the mirror.
type Mirror struct {
	api           valuesAPI
	spreadsheetID string
	store         AppointmentLister
}

// NewMirror creates a Mirror for the given spreadsheet.
func NewMirror(api valuesAPI, spreadsheetID string, store AppointmentLister) (*Mirror, error) {
	if api == nil {
		return nil, errors.New("sheets: values api must not be nil")
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id must not be empty")
	}
	if store == nil {
		return nil, errors.New("sheets: appointment store must not be nil")
	}
	return &Mirror{api: api, spreadsheetID: spreadsheetID, store: store}, nil
}

// Sync rewrites the sheet from the appointment table: the header and any
// hand-annotated rows whose status is still blank are kept, then one row per
// stored appointment is appended with a blank status.
func (m *Mirror) Sync(ctx context.Context) error {
	appts, err := m.store.ListAppointments(ctx)
	if err != nil {
		return fmt.Errorf("sheets: list appointments: %w", err)
	}

	existing, err := m.api.Get(ctx, m.spreadsheetID, readRange)
	if err != nil {
		return fmt.Errorf("sheets: read existing rows: %w", err)
	}

	var rows [][]interface{}
	if existing != nil {
		rows = existing.Values
	}

	header := defaultHeader
	var dataRows [][]interface{}
	if len(rows) > 0 {
		header = rows[0]
		dataRows = rows[1:]
	}

	keep := make([][]interface{}, 0, len(dataRows)+len(appts))
	for _, row := range dataRows {
		if rowStatus(row) == "" {
			keep = append(keep, row)
		}
	}
	for _, a := range appts {
		keep = append(keep, []interface{}{
			string(a.Kind), a.Date, a.Time, a.Name, a.Phone, "",
		})
	}

	values := &sheets.ValueRange{Values: append([][]interface{}{header}, keep...)}
	if err := m.api.Update(ctx, m.spreadsheetID, writeRange, values); err != nil {
		return fmt.Errorf("sheets: write rows: %w", err)
	}
	return nil
}

// rowStatus reads the status column, treating short rows as blank.
func rowStatus(row []interface{}) string {
	if len(row) <= statusCol {
		return ""
	}
	s, ok := row[statusCol].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
