package client

import (
	"encoding/json"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/types"
)

func getJSON[T any](c *Client, path, what string) (*T, error) {
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get %s", what)
	}

	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

// GetRecord returns the full battery record.
func (c *Client) GetRecord() (*powerinfo.Record, error) {
	return getJSON[powerinfo.Record](c, "/record", "battery record")
}

func (c *Client) GetHealth() (*types.HealthResponse, error) {
	return getJSON[types.HealthResponse](c, "/health", "battery health")
}

// GetLifespan projects the remaining useful life against threshold. A zero
// threshold uses the daemon's primary threshold.
func (c *Client) GetLifespan(threshold float64) (*types.LifespanResponse, error) {
	path := "/lifespan"
	if threshold > 0 {
		path += "?" + url.Values{"threshold": {strconv.FormatFloat(threshold, 'f', -1, 64)}}.Encode()
	}
	return getJSON[types.LifespanResponse](c, path, "lifespan projection")
}

func (c *Client) GetLive() (*types.LiveResponse, error) {
	return getJSON[types.LiveResponse](c, "/live", "live status")
}

func (c *Client) GetStatus() (*types.StatusResponse, error) {
	return getJSON[types.StatusResponse](c, "/status", "daemon status")
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	return getJSON[config.RawFileConfig](c, "/config", "config")
}

// Refresh asks the daemon for a full acquisition. With force the slow
// sources skip their caches.
func (c *Client) Refresh(force bool) (*powerinfo.Record, error) {
	ret, err := c.Post("/refresh?force="+strconv.FormatBool(force), "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to refresh")
	}

	var rec powerinfo.Record
	if err := json.Unmarshal([]byte(ret), &rec); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal battery record")
	}
	return &rec, nil
}

// GetCycleCount returns the manual cycle count override, nil when unset.
func (c *Client) GetCycleCount() (*int, error) {
	ret, err := c.Get("/cycle-count")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get cycle count override")
	}

	var n *int
	if err := json.Unmarshal([]byte(ret), &n); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal cycle count override")
	}
	return n, nil
}

func (c *Client) SetCycleCount(n int) (string, error) {
	ret, err := c.Put("/cycle-count", strconv.Itoa(n))
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) ClearCycleCount() (string, error) {
	ret, err := c.Delete("/cycle-count")
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

// unquote decodes a JSON string response. Anything else is returned as is.
func unquote(s string) string {
	var ret string
	if err := json.Unmarshal([]byte(s), &ret); err != nil {
		return s
	}
	return ret
}
