package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tillsync/tillsync/internal/registry"
)

// controlColumns are remote bookkeeping columns that never become local
// business fields.
var controlColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// RESTClient talks to a PostgREST-style row API: one resource per table with
// field-level filtering via query parameters.
//
// Every call applies the configured per-call timeout on top of the caller's
// context; a deadline hit surfaces as a TransientError.
type RESTClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	httpc   *http.Client
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient builds a client for the given endpoint. The API key is sent
// as a bearer token; acquiring it is the operator's problem, not ours.
func NewRESTClient(baseURL, apiKey string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		httpc:   &http.Client{},
	}
}

// Ping probes the endpoint root. Any response is good enough; only transport
// failures count.
func (c *RESTClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransientError{Op: "ping", Entity: "-", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &TransientError{Op: "ping", Entity: "-", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// Upsert posts the batch to the entity resource. With a natural key declared
// the request asks the server to merge duplicates on that key, which is what
// converges independently created rows. The response representation echoes
// the accepted rows in input order, carrying the server-assigned ids.
func (c *RESTClient) Upsert(ctx context.Context, entity registry.Entity, rows []PushRow) ([]CreateResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	payload := make([]map[string]any, len(rows))
	for i, r := range rows {
		payload[i] = r.Fields
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: encode: %w", entity.Name, err)
	}

	endpoint := c.tableURL(entity.Name)
	if entity.NaturalKey != "" {
		endpoint += "?on_conflict=" + url.QueryEscape(entity.NaturalKey)
	}

	prefer := "return=representation"
	if entity.NaturalKey != "" {
		prefer = "resolution=merge-duplicates,return=representation"
	}

	records, err := c.do(ctx, http.MethodPost, endpoint, entity.Name, "upsert", body, prefer)
	if err != nil {
		return nil, err
	}

	if len(records) != len(rows) {
		return nil, &RejectionError{
			Entity:  entity.Name,
			Message: fmt.Sprintf("batch of %d rows acknowledged as %d", len(rows), len(records)),
		}
	}

	results := make([]CreateResult, len(rows))
	for i, rec := range records {
		remoteID, err := recordID(rec)
		if err != nil {
			return nil, fmt.Errorf("upsert %s: %w", entity.Name, err)
		}
		results[i] = CreateResult{LocalID: rows[i].LocalID, RemoteID: remoteID}
	}
	return results, nil
}

// Update patches a single remote row by id. A patch that matches no row means
// the remote id is unknown server-side: a data error, surfaced as a
// RejectionError carrying the id.
func (c *RESTClient) Update(ctx context.Context, entity registry.Entity, row PushRow) error {
	body, err := json.Marshal(row.Fields)
	if err != nil {
		return fmt.Errorf("update %s: encode: %w", entity.Name, err)
	}

	endpoint := c.tableURL(entity.Name) + "?id=eq." + url.QueryEscape(row.RemoteID)
	records, err := c.do(ctx, http.MethodPatch, endpoint, entity.Name, "update", body, "return=representation")
	if err != nil {
		if rej, ok := err.(*RejectionError); ok {
			rej.RemoteID = row.RemoteID
		}
		return err
	}

	if len(records) == 0 {
		return &RejectionError{
			Entity:   entity.Name,
			RemoteID: row.RemoteID,
			Message:  "remote id unknown server-side",
		}
	}
	return nil
}

// SelectChangedSince fetches rows modified strictly after since, ordered by
// modification time then id so repeated pulls are deterministic.
func (c *RESTClient) SelectChangedSince(ctx context.Context, entity registry.Entity, since time.Time) ([]ChangedRow, error) {
	endpoint := fmt.Sprintf("%s?select=*&updated_at=gt.%s&order=updated_at.asc,id.asc",
		c.tableURL(entity.Name),
		url.QueryEscape(since.UTC().Format(time.RFC3339Nano)),
	)

	records, err := c.do(ctx, http.MethodGet, endpoint, entity.Name, "select", nil, "")
	if err != nil {
		return nil, err
	}

	changed := make([]ChangedRow, 0, len(records))
	for _, rec := range records {
		row, err := decodeChangedRow(entity, rec)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", entity.Name, err)
		}
		changed = append(changed, row)
	}
	return changed, nil
}

// do executes one request and decodes the JSON array response. Transport
// errors and 5xx map to TransientError, other non-2xx to RejectionError.
func (c *RESTClient) do(ctx context.Context, method, endpoint, entity, op string, body []byte, prefer string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, entity, err)
	}
	c.setHeaders(req)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransientError{Op: op, Entity: entity, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Entity: entity, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &TransientError{Op: op, Entity: entity, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &RejectionError{
			Entity:  entity,
			Status:  resp.StatusCode,
			Message: truncate(string(respBody), 300),
		}
	}

	if len(respBody) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w", op, entity, err)
	}
	return records, nil
}

func (c *RESTClient) tableURL(table string) string {
	return c.baseURL + "/" + table
}

func (c *RESTClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// decodeChangedRow converts one raw record into a ChangedRow: extracts the
// remote id and modification time, strips control columns, and coerces the
// remaining values to their declared column types.
func decodeChangedRow(entity registry.Entity, rec map[string]any) (ChangedRow, error) {
	remoteID, err := recordID(rec)
	if err != nil {
		return ChangedRow{}, err
	}

	rawModified, ok := rec["updated_at"].(string)
	if !ok {
		return ChangedRow{}, fmt.Errorf("row %s has no updated_at", remoteID)
	}
	modifiedAt, err := time.Parse(time.RFC3339Nano, rawModified)
	if err != nil {
		// Some servers emit second precision without a zone designator.
		modifiedAt, err = time.Parse("2006-01-02T15:04:05", rawModified)
		if err != nil {
			return ChangedRow{}, fmt.Errorf("row %s: parse updated_at %q: %w", remoteID, rawModified, err)
		}
	}

	fields := make(map[string]any)
	for name, raw := range rec {
		if controlColumns[name] {
			continue
		}
		col, declared := entity.Column(name)
		if !declared {
			// Remote-only columns (views, computed fields) stay remote.
			continue
		}
		v, err := coerceField(col, raw, entity.ForeignKeys[name] != "")
		if err != nil {
			return ChangedRow{}, fmt.Errorf("row %s column %s: %w", remoteID, name, err)
		}
		fields[name] = v
	}

	return ChangedRow{RemoteID: remoteID, Fields: fields, ModifiedAt: modifiedAt.UTC()}, nil
}

// coerceField converts a decoded JSON value to the declared column type.
// Foreign-key columns keep their remote identifier as a string; the
// reconciliation engine translates them to local ids.
func coerceField(col registry.Column, raw any, isForeignKey bool) (any, error) {
	if raw == nil {
		return nil, nil
	}

	if isForeignKey {
		return idString(raw)
	}

	switch col.Type {
	case registry.ColumnText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case registry.ColumnInteger:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		// Remote numeric columns may come back as "12.00".
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	case registry.ColumnReal:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return n.Float64()
	case registry.ColumnBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return b, nil
	case registry.ColumnTimestamp:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected timestamp string, got %T", raw)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", col.Type)
	}
}

// recordID extracts the remote identifier from a record, normalizing numeric
// ids to their decimal string form.
func recordID(rec map[string]any) (string, error) {
	raw, ok := rec["id"]
	if !ok || raw == nil {
		return "", fmt.Errorf("record has no id")
	}
	return idString(raw)
}

func idString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", raw)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
