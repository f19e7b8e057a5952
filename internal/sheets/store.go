// internal/sheets/store.go

// Package sheets implements the ledger store over the Google Sheets
// values API. The spreadsheet is the system of record: row 1 is the
// human-maintained header, data rows follow, and a loan's position is
// its 1-indexed data row.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gearledger/internal/ledger"
)

const apiBase = "https://sheets.googleapis.com/v4/spreadsheets"

// Config holds what a Store needs to reach one sheet.
type Config struct {
	// SpreadsheetID identifies the spreadsheet document.
	SpreadsheetID string
	// SheetName is the tab holding the ledger. Defaults to "Sheet1".
	SheetName string
	// Credentials authenticates requests. Use NewServiceAccount for
	// production; tests inject a stub.
	Credentials TokenSource
	// HTTPClient defaults to http.DefaultClient. Callers set a client
	// timeout so a hung API call becomes a persistence failure.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// BaseURL overrides the API endpoint in tests.
	BaseURL string
}

// Store talks to one spreadsheet tab. It implements ledger.Store.
type Store struct {
	spreadsheetID string
	sheetName     string
	credentials   TokenSource
	httpClient    *http.Client
	logger        *slog.Logger
	baseURL       string
}

func NewStore(config Config) (*Store, error) {
	if config.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: SpreadsheetID is required")
	}
	if config.Credentials == nil {
		return nil, fmt.Errorf("sheets: Credentials are required")
	}
	sheetName := config.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = apiBase
	}
	return &Store{
		spreadsheetID: config.SpreadsheetID,
		sheetName:     sheetName,
		credentials:   config.Credentials,
		httpClient:    httpClient,
		logger:        logger,
		baseURL:       baseURL,
	}, nil
}

func (s *Store) doRequest(ctx context.Context, method, rangeRef, action string, query url.Values, payload any) ([]byte, error) {
	token, err := s.credentials.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets: obtain access token: %w", err)
	}

	requestURL := fmt.Sprintf("%s/%s/values/%s%s",
		s.baseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(rangeRef), action)
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("sheets: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("sheets: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: %s %s: %w", method, rangeRef, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sheets: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sheets: %s %s: HTTP %d: %s", method, rangeRef, resp.StatusCode, truncate(data))
	}
	return data, nil
}

func truncate(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}

// Append adds one data row after the existing table and returns its
// 1-indexed data position, derived from the updated range the API
// reports.
func (s *Store) Append(ctx context.Context, cells []string) (int, error) {
	query := url.Values{
		"valueInputOption": []string{"RAW"},
		"insertDataOption": []string{"INSERT_ROWS"},
	}
	payload := map[string]any{"values": [][]string{cells}}

	body, err := s.doRequest(ctx, http.MethodPost, s.sheetName, ":append", query, payload)
	if err != nil {
		return 0, err
	}

	var response struct {
		Updates struct {
			UpdatedRange string `json:"updatedRange"`
		} `json:"updates"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("sheets: parse append response: %w", err)
	}
	sheetRow, err := rowOfRange(response.Updates.UpdatedRange)
	if err != nil {
		return 0, err
	}
	// Sheet row 1 is the header, so data position = sheet row - 1.
	return sheetRow - 1, nil
}

// Snapshot reads the whole tab: row 1 becomes the column labels, every
// following row a data row keyed by them.
func (s *Store) Snapshot(ctx context.Context) ([]ledger.Row, error) {
	body, err := s.doRequest(ctx, http.MethodGet, s.sheetName, "", nil, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("sheets: parse values response: %w", err)
	}
	if len(response.Values) < 2 {
		return nil, nil
	}

	header := response.Values[0]
	rows := make([]ledger.Row, 0, len(response.Values)-1)
	for i, values := range response.Values[1:] {
		cells := make(map[string]string, len(header))
		for col, label := range header {
			if label == "" {
				continue
			}
			if col < len(values) {
				cells[label] = values[col]
			} else {
				cells[label] = ""
			}
		}
		rows = append(rows, ledger.Row{Position: i + 1, Cells: cells})
	}
	return rows, nil
}

// UpdateCell overwrites one cell, addressed by 1-indexed data position
// and column.
func (s *Store) UpdateCell(ctx context.Context, position, column int, value string) error {
	if position < 1 {
		return fmt.Errorf("sheets: invalid position %d", position)
	}
	address, err := cellAddress(position+1, column)
	if err != nil {
		return err
	}
	rangeRef := s.sheetName + "!" + address
	query := url.Values{"valueInputOption": []string{"RAW"}}
	payload := map[string]any{"values": [][]string{{value}}}
	_, err = s.doRequest(ctx, http.MethodPut, rangeRef, "", query, payload)
	return err
}

// cellAddress renders a 1-indexed (sheet row, column) pair in A1
// notation.
func cellAddress(row, column int) (string, error) {
	if column < 1 || row < 1 {
		return "", fmt.Errorf("sheets: invalid cell row %d column %d", row, column)
	}
	letters := ""
	for column > 0 {
		column--
		letters = string(rune('A'+column%26)) + letters
		column /= 26
	}
	return letters + strconv.Itoa(row), nil
}

// rowOfRange extracts the starting sheet row from an A1 range like
// "Loans!A5:K5".
func rowOfRange(rangeRef string) (int, error) {
	if i := strings.IndexByte(rangeRef, '!'); i >= 0 {
		rangeRef = rangeRef[i+1:]
	}
	if i := strings.IndexByte(rangeRef, ':'); i >= 0 {
		rangeRef = rangeRef[:i]
	}
	digits := strings.TrimLeft(rangeRef, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, fmt.Errorf("sheets: cannot parse updated range %q", rangeRef)
	}
	return row, nil
}
