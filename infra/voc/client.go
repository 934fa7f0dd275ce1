// Package voc polls the Volvo On Call customer API and maintains the
// live vehicle handles the bridge publishes from.
package voc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/evbridge/voc2mqtt/core/attr"
	"github.com/evbridge/voc2mqtt/core/vehicle"
	"github.com/evbridge/voc2mqtt/infra/logger"
)

const defaultServiceURL = "https://vocapi.wirelesscar.net/customerapi/rest/v3.0/"

// Config holds the vendor API connection settings.
type Config struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	ServiceURL     string `json:"service_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// Journal also fetches the trip journal on every update.
	Journal bool `json:"journal"`
}

// SetDefaults fills the vendor endpoint and timeout.
func (c *Config) SetDefaults() {
	if c.ServiceURL == "" {
		c.ServiceURL = defaultServiceURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate rejects configs without credentials.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("voc: username and password are required")
	}
	return nil
}

// Client is a polling session against the VOC service. It implements
// both the bridge source and the vehicle data source.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger

	mu       sync.Mutex
	vehicles []*vehicle.Vehicle
	urls     map[string]string // VIN -> vehicle resource URL
}

// NewClient builds a VOC client. It performs no network calls until the
// first Update.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("voc_client")
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:  log,
		urls: make(map[string]string),
	}, nil
}

// Update refreshes the state of every account vehicle, discovering the
// vehicle list on the first call. A refresh failure marks only that
// vehicle unavailable and the remaining vehicles still refresh; the
// call errors only when no vehicle could be refreshed.
func (c *Client) Update(ctx context.Context) error {
	c.mu.Lock()
	known := len(c.vehicles)
	c.mu.Unlock()

	if known == 0 {
		if err := c.discover(ctx); err != nil {
			return fmt.Errorf("voc: discover vehicles: %w", err)
		}
	}

	c.mu.Lock()
	vehicles := append([]*vehicle.Vehicle(nil), c.vehicles...)
	c.mu.Unlock()

	failed := 0
	for _, v := range vehicles {
		attrs, err := c.FetchAttributes(ctx, v.VIN())
		if err != nil {
			c.log.Errorf("refresh %s: %v", v.UniqueID(), err)
			v.SetAvailable(false)
			failed++
			continue
		}
		v.SetAttrs(attrs)
		v.SetAvailable(true)
	}
	if failed > 0 && failed == len(vehicles) {
		return fmt.Errorf("voc: refresh failed for all %d vehicles", failed)
	}
	return nil
}

// Vehicles lists the vehicles known to the account.
func (c *Client) Vehicles() []*vehicle.Vehicle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*vehicle.Vehicle(nil), c.vehicles...)
}

// FetchAttributes merges the attribute, status and position documents
// (and the trip journal when enabled) into one tree.
func (c *Client) FetchAttributes(ctx context.Context, vin string) (attr.Tree, error) {
	base, err := c.vehicleURL(vin)
	if err != nil {
		return nil, err
	}

	tree := attr.Tree{}
	docs := []string{"attributes", "status", "position"}
	if c.cfg.Journal {
		docs = append(docs, "trips")
	}
	for _, doc := range docs {
		res, err := c.get(ctx, joinURL(base, doc))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", doc, err)
		}
		if doc == "trips" {
			// The journal endpoint wraps the list in its own document.
			if trips, ok := res["trips"]; ok {
				tree["trips"] = trips
			}
			continue
		}
		for k, v := range res {
			tree[k] = v
		}
	}
	return tree, nil
}

// InvokeCommand POSTs a remote command to the vehicle resource.
func (c *Client) InvokeCommand(ctx context.Context, vin string, command string, params map[string]any) error {
	base, err := c.vehicleURL(vin)
	if err != nil {
		return err
	}

	body := []byte("{}")
	if len(params) > 0 {
		if body, err = json.Marshal(params); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(base, command), bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("command %s: unexpected status %s", command, res.Status)
	}
	c.log.Infof("command %s accepted for %s", command, vin)
	return nil
}

// discover walks customeraccounts to the per-vehicle resource URLs and
// builds the vehicle handles.
func (c *Client) discover(ctx context.Context) error {
	account, err := c.get(ctx, joinURL(c.cfg.ServiceURL, "customeraccounts"))
	if err != nil {
		return err
	}
	if user, ok := account["username"].(string); ok {
		c.log.Debugf("account for %s received", user)
	}

	rels, _ := account["accountVehicleRelations"].([]any)
	var vehicles []*vehicle.Vehicle
	urls := make(map[string]string)
	for _, rel := range rels {
		relURL, ok := rel.(string)
		if !ok {
			continue
		}
		relDoc, err := c.get(ctx, relURL)
		if err != nil {
			return err
		}
		vehURL, ok := relDoc["vehicle"].(string)
		if !ok {
			return fmt.Errorf("relation %s has no vehicle resource", relURL)
		}
		attrs, err := c.get(ctx, joinURL(vehURL, "attributes"))
		if err != nil {
			return err
		}
		v := vehicle.New(c, attrs)
		if v.VIN() == "" {
			return fmt.Errorf("vehicle at %s has no VIN", vehURL)
		}
		vehicles = append(vehicles, v)
		urls[v.VIN()] = vehURL
		c.log.Infof("discovered vehicle %s", v)
	}

	c.mu.Lock()
	c.vehicles = vehicles
	c.urls = urls
	c.mu.Unlock()
	return nil
}

func (c *Client) vehicleURL(vin string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base, ok := c.urls[vin]
	if !ok {
		return "", fmt.Errorf("unknown vehicle %s", vin)
	}
	return base, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, res.Status)
	}
	var doc map[string]any
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("GET %s: decode: %w", rawURL, err)
	}
	return doc, nil
}

// decorate adds basic auth and the vendor headers every endpoint
// requires.
func (c *Client) decorate(req *http.Request) {
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("X-Device-Id", "Device")
	req.Header.Set("X-OS-Type", "Android")
	req.Header.Set("X-Originator-Type", "App")
}

// joinURL resolves ref against base, tolerating absolute refs.
func joinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return base + ref
	}
	if b.Path != "" && b.Path[len(b.Path)-1] != '/' {
		b.Path += "/"
	}
	r, err := url.Parse(ref)
	if err != nil {
		return base + ref
	}
	return b.ResolveReference(r).String()
}
