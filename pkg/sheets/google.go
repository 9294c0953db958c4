package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

type GoogleOptions struct {
	ServiceAccountEmail string
	PrivateKey          []byte
	SpreadsheetID       string
	// Endpoint overrides the Sheets API root, e.g. a test server URL.
	Endpoint string
	// HTTPClient replaces the service-account client entirely.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// GoogleStore is a Store backed by the Google Sheets v4 API, authenticated
// as a service account.
type GoogleStore struct {
	service       *sheetsapi.Service
	spreadsheetID string
}

func NewGoogleStore(ctx context.Context, opts GoogleOptions) (*GoogleStore, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	client := opts.HTTPClient
	if client == nil {
		if strings.TrimSpace(opts.ServiceAccountEmail) == "" || len(opts.PrivateKey) == 0 {
			return nil, fmt.Errorf("service account email and private key are required")
		}
		jwtCfg := &jwt.Config{
			Email:      opts.ServiceAccountEmail,
			PrivateKey: opts.PrivateKey,
			Scopes:     []string{sheetsapi.SpreadsheetsScope},
			TokenURL:   googleTokenURL,
		}
		client = oauth2.NewClient(ctx, jwtCfg.TokenSource(ctx))
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client.Timeout = timeout
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}
	service, err := sheetsapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &GoogleStore{
		service:       service,
		spreadsheetID: opts.SpreadsheetID,
	}, nil
}

func (s *GoogleStore) ReadRange(ctx context.Context, a1 string) ([][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, a1).
		MajorDimension("ROWS").
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, googleError("read "+a1, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cellText(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

func (s *GoogleStore) BatchWrite(ctx context.Context, ranges []ValueRange) error {
	if len(ranges) == 0 {
		return nil
	}
	data := make([]*sheetsapi.ValueRange, 0, len(ranges))
	for _, vr := range ranges {
		values := make([][]any, len(vr.Values))
		for i, row := range vr.Values {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = v
			}
			values[i] = cells
		}
		data = append(data, &sheetsapi.ValueRange{Range: vr.Range, Values: values})
	}

	req := &sheetsapi.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	if _, err := s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return googleError("batch update", err)
	}
	return nil
}

// Title fetches the spreadsheet title. Used as the connectivity probe.
func (s *GoogleStore) Title(ctx context.Context) (string, error) {
	sheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).
		Fields("properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", googleError("get spreadsheet", err)
	}
	if sheet.Properties == nil {
		return "", nil
	}
	return sheet.Properties.Title, nil
}

// googleError keeps the API's own message, which names the missing
// permission or bad range.
func googleError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(apiErr.Body)
		}
		return fmt.Errorf("sheets %s: %d %s: %w", op, apiErr.Code, msg, err)
	}
	return fmt.Errorf("sheets %s: %w", op, err)
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
