// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package monitoring pushes measurements to the Yandex Cloud Monitoring
// write API as custom metrics.
//
// Each measurement becomes one request:
//
//	{"labels":{"location":"lab","room":"101"},
//	 "metrics":[{"name":"temperature","value":21.3},
//	            {"name":"air_pressure","value":101325,"type":"IGAUGE"},
//	            {"name":"relative_humidity","value":45},
//	            {"name":"co2_concentration","value":812,"type":"IGAUGE"}]}
//
// When the debug flag is raised the labels also carry "debug":true so test
// data can be filtered out on the dashboard.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"

	"github.com/GermanBionicSystems/co2node/acquire"
)

var lg = logger.NewPackageLogger("monitoring", logger.InfoLevel)

// DefaultEndpoint is the public write API.
const DefaultEndpoint = "https://monitoring.api.cloud.yandex.net/monitoring/v2/data/write"

// Metric types understood by the API. An empty type means DGAUGE.
const (
	DGauge = ""
	IGauge = "IGAUGE"
)

// Labels are attached to every metric of a request.
type Labels struct {
	Location string `json:"location"`
	Room     string `json:"room"`
	Debug    bool   `json:"debug,omitempty"`
}

// Metric is one named value.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Type  string  `json:"type,omitempty"`
}

// Payload is the request body.
type Payload struct {
	Labels  Labels   `json:"labels"`
	Metrics []Metric `json:"metrics"`
}

// NewPayload converts m.
func NewPayload(m acquire.Measurement, l Labels) Payload {
	return Payload{
		Labels: l,
		Metrics: []Metric{
			{Name: "temperature", Value: m.Pressure.Temperature},
			{Name: "air_pressure", Value: float64(m.Pressure.Pressure), Type: IGauge},
			{Name: "relative_humidity", Value: float64(m.CO2.Humidity)},
			{Name: "co2_concentration", Value: float64(m.CO2.CO2), Type: IGauge},
		},
	}
}

// Opts configures a Client.
type Opts struct {
	// Endpoint of the write API. Empty selects DefaultEndpoint.
	Endpoint string

	FolderID string
	Location string
	Room     string

	// IAM or API token sent as a bearer token.
	Token string

	// Bound on a whole request. Zero means 10 seconds.
	Timeout time.Duration
}

// Client is an acquire.Reporter posting to the write API.
type Client struct {
	url   string
	token string
	room  string
	loc   string
	debug func() bool
	hc    *http.Client
}

// New returns a Client. debug reports whether measurements should be
// labelled as debug data; it may be nil.
func New(opts *Opts, debug func() bool) (*Client, error) {
	if opts.Location == "" {
		return nil, errors.New("monitoring: location label is mandatory")
	}
	if opts.FolderID == "" {
		return nil, errors.New("monitoring: folder id is required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "monitoring: endpoint %q", endpoint)
	}
	q := u.Query()
	q.Set("service", "custom")
	q.Set("folderId", opts.FolderID)
	u.RawQuery = q.Encode()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if debug == nil {
		debug = func() bool { return false }
	}
	return &Client{
		url:   u.String(),
		token: opts.Token,
		room:  opts.Room,
		loc:   opts.Location,
		debug: debug,
		hc:    &http.Client{Timeout: timeout},
	}, nil
}

// Report implements acquire.Reporter.
func (c *Client) Report(ctx context.Context, m acquire.Measurement) error {
	p := NewPayload(m, Labels{Location: c.loc, Room: c.room, Debug: c.debug()})
	body, err := json.Marshal(&p)
	if err != nil {
		return errors.Wrap(err, "monitoring: encode")
	}
	lg.Debugf("POST %s %s", c.url, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "monitoring")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "monitoring: request failed")
	}
	defer resp.Body.Close()
	reply, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		lg.Debugf("read response body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("monitoring: status %d: %s", resp.StatusCode, bytes.TrimSpace(reply))
	}
	lg.Infof("Status = %d", resp.StatusCode)
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("monitoring(%s)", c.loc)
}

var _ acquire.Reporter = &Client{}
