package upstream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"cellmux/internal/cellref"
	"cellmux/internal/grid"
)

// valuesBody is the wire shape for range payloads:
// {"values": [[...], [...]]}. Untouched cells travel as JSON null and the
// backend leaves them as they are.
type valuesBody struct {
	Values grid.Matrix `json:"values"`
}

// errorBody is the wire shape for backend errors.
type errorBody struct {
	Error string `json:"error"`
}

// Client talks to a sheet backend over its REST surface:
//
//	GET {base}/v1/sheets/{sheetId}/values/{range}
//	PUT {base}/v1/sheets/{sheetId}/values/{range}
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// ClientConfig configures a REST sheet client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// NewClient creates a REST sheet client.
func NewClient(cfg ClientConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("User-Agent", "cellmux")

	return &Client{
		http:   http,
		logger: cfg.Logger.With().Str("component", "upstream").Logger(),
	}
}

// ReadRange fetches the values of one rectangular region.
func (c *Client) ReadRange(ctx context.Context, sheetID string, rng cellref.Range) (grid.Matrix, error) {
	var body valuesBody
	var apiErr errorBody

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetError(&apiErr).
		Get(c.valuesPath(sheetID, rng))
	if err != nil {
		return nil, &CallError{Op: "read", SheetID: sheetID, Range: rng, Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &CallError{Op: "read", SheetID: sheetID, Range: rng, Status: resp.StatusCode(), Message: errMessage(apiErr, resp)}
	}

	c.logger.Debug().
		Str("sheet", sheetID).
		Stringer("range", rng).
		Int("rows", body.Values.Rows()).
		Msg("range read")

	return body.Values, nil
}

// WriteRange writes the values of one rectangular region. Cells carrying
// grid.Untouched are serialized as null and skipped by the backend.
func (c *Client) WriteRange(ctx context.Context, sheetID string, rng cellref.Range, values grid.Matrix) error {
	var apiErr errorBody

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(valuesBody{Values: values}).
		SetError(&apiErr).
		Put(c.valuesPath(sheetID, rng))
	if err != nil {
		return &CallError{Op: "write", SheetID: sheetID, Range: rng, Message: err.Error()}
	}
	if resp.IsError() {
		return &CallError{Op: "write", SheetID: sheetID, Range: rng, Status: resp.StatusCode(), Message: errMessage(apiErr, resp)}
	}

	c.logger.Debug().
		Str("sheet", sheetID).
		Stringer("range", rng).
		Int("rows", values.Rows()).
		Msg("range written")

	return nil
}

func (c *Client) valuesPath(sheetID string, rng cellref.Range) string {
	return fmt.Sprintf("/v1/sheets/%s/values/%s",
		url.PathEscape(sheetID), url.PathEscape(cellref.Format(rng)))
}

func errMessage(apiErr errorBody, resp *resty.Response) string {
	if apiErr.Error != "" {
		return apiErr.Error
	}
	return resp.Status()
}
