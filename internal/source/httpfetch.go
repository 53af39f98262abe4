package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pkg/errors"
)

// maxErrorBody caps how much of an error response is kept as the message.
const maxErrorBody = 4 << 10

// HTTPFetcher is a Fetcher against the upstream REST service.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	// Header is sent with every request, e.g. an Authorization token.
	Header http.Header
}

// NewHTTPFetcher creates a fetcher for baseURL. Timeouts are applied per
// attempt by Client, so client usually has none.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		Header:  http.Header{},
	}
}

type upstreamOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type upstreamEquipment struct {
	ID       string `json:"id"`
	LineID   string `json:"lineId"`
	SdwtID   string `json:"sdwtId"`
	PrcGroup string `json:"prcGroup"`
}

// FetchLogs implements Fetcher.
func (f *HTTPFetcher) FetchLogs(ctx context.Context, kind models.Kind, dctx models.DrilldownContext) ([]models.RawRow, error) {
	if !kind.Valid() {
		return nil, &RequestError{Status: http.StatusBadRequest, Message: "unknown log kind " + string(kind)}
	}
	q := url.Values{}
	q.Set("lineId", dctx.LineID)
	q.Set("eqpId", dctx.EqpID)

	var rows []models.RawRow
	if err := f.get(ctx, "/logs/"+strings.ToLower(kind.Code()), q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchOptions implements Fetcher.
func (f *HTTPFetcher) FetchOptions(ctx context.Context, level models.DrilldownLevel, parent models.DrilldownContext) ([]models.Option, error) {
	q := url.Values{}
	var path string
	switch level {
	case models.LevelLine:
		path = "/lines"
	case models.LevelSdwt:
		path = "/sdwts"
		q.Set("lineId", parent.LineID)
	case models.LevelPrcGroup:
		path = "/prc-groups"
		q.Set("lineId", parent.LineID)
		q.Set("sdwtId", parent.SdwtID)
	case models.LevelEquipment:
		path = "/equipments"
		q.Set("lineId", parent.LineID)
		if parent.SdwtID != "" {
			q.Set("sdwtId", parent.SdwtID)
		}
		if parent.PrcGroup != "" {
			q.Set("prcGroup", parent.PrcGroup)
		}
	default:
		return nil, &RequestError{Status: http.StatusBadRequest, Message: "unknown drilldown level " + string(level)}
	}

	var items []upstreamOption
	if err := f.get(ctx, path, q, &items); err != nil {
		return nil, err
	}
	opts := make([]models.Option, 0, len(items))
	for _, it := range items {
		label := it.Name
		if label == "" {
			label = it.ID
		}
		opts = append(opts, models.Option{Value: it.ID, Label: label})
	}
	return opts, nil
}

// EquipmentInfo implements Fetcher.
func (f *HTTPFetcher) EquipmentInfo(ctx context.Context, lineID, eqpID string) (*models.EquipmentInfo, error) {
	q := url.Values{}
	q.Set("lineId", lineID)

	var eq upstreamEquipment
	err := f.get(ctx, "/equipment-info/"+url.PathEscape(eqpID), q, &eq)
	if IsNotFound(err) {
		return nil, &NotFoundError{Resource: "equipment " + eqpID + " in line " + lineID}
	}
	if err != nil {
		return nil, err
	}
	return &models.EquipmentInfo{LineID: eq.LineID, SdwtID: eq.SdwtID, PrcGroup: eq.PrcGroup, EqpID: eq.ID}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string, q url.Values, out any) error {
	u := f.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(err, "building request for %s", path)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range f.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return StatusError(path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &NetworkError{Op: path, Err: errors.Wrap(err, "decoding response")}
	}
	return nil
}
