// Package catalog loads signal descriptors from the bus database service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"BusScope/internal/domain/models"
	drepo "BusScope/internal/domain/repository"
	"BusScope/internal/service/cache"
	xhttp "BusScope/pkg/http"
	"BusScope/pkg/logger"
)

// Config points at the database service.
type Config struct {
	BaseURL string        `yaml:"base_url" default:"http://127.0.0.1:5000" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" default:"5s"`
	// Messages restricts loading to these message names; empty loads all.
	Messages []string `yaml:"messages"`
	// Enable registers loaded signals enabled.
	Enable   bool          `yaml:"enable" default:"true"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"10m"`
	// Retries applies to transport failures and 5xx answers only.
	Retries int `yaml:"retries" default:"2" validate:"gte=0,lte=10"`
}

type messageList struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error"`
	Messages []messageInfo `json:"messages"`
}

type messageInfo struct {
	Name    string   `json:"name"`
	IDHex   string   `json:"id_hex"`
	Signals []string `json:"signals"`
}

type messageDetail struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message struct {
		Name    string       `json:"name"`
		IDHex   *string      `json:"id_hex"`
		Signals []signalInfo `json:"signals"`
	} `json:"message"`
}

type signalInfo struct {
	Name      string   `json:"name"`
	Unit      string   `json:"unit"`
	Minimum   *float64 `json:"minimum"`
	Maximum   *float64 `json:"maximum"`
	Scale     *float64 `json:"scale"`
	Offset    *float64 `json:"offset"`
	BitLength *int     `json:"bit_length"`
	IsSigned  bool     `json:"is_signed"`
}

// Client implements Catalog over the database service HTTP API.
type Client struct {
	cfg   Config
	http  *xhttp.Client
	cache cache.BytesCache
	log   *logger.Logger
}

// New returns a catalog client. c may be nil to disable snapshot caching.
func New(cfg Config, c cache.BytesCache, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:   cfg,
		http:  xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout), xhttp.WithRetries(cfg.Retries, 250*time.Millisecond)),
		cache: c,
		log:   log.Component("catalog"),
	}
}

func (c *Client) cacheKey() string {
	return cache.Key("busscope", "catalog", c.cfg.BaseURL)
}

// Signals lists every signal of the selected messages.
func (c *Client) Signals(ctx context.Context) ([]models.Signal, error) {
	if c.cfg.BaseURL == "" {
		return nil, nil
	}
	if sigs, ok := c.cached(); ok {
		return sigs, nil
	}

	var list messageList
	if err := c.get(ctx, "/api/dbc/messages", &list); err != nil {
		return nil, err
	}
	if !list.OK {
		return nil, fmt.Errorf("catalog: %s", list.Error)
	}

	var out []models.Signal
	for _, m := range list.Messages {
		if !c.wanted(m.Name) || len(m.Signals) == 0 {
			continue
		}
		var detail messageDetail
		if err := c.get(ctx, "/api/dbc/message_info/"+url.PathEscape(m.Name), &detail); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("message skipped", logger.String("message", m.Name), logger.Error(err))
			continue
		}
		if !detail.OK {
			c.log.Warn("message skipped", logger.String("message", m.Name), logger.String("reason", detail.Error))
			continue
		}
		idHex := m.IDHex
		if detail.Message.IDHex != nil {
			idHex = *detail.Message.IDHex
		}
		for _, s := range detail.Message.Signals {
			out = append(out, c.toSignal(m.Name, idHex, s))
		}
	}

	c.store(out)
	c.log.Info("catalog loaded", logger.Int("signals", len(out)))
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	if err := c.http.GetJSON(ctx, c.cfg.BaseURL+path, dest); err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	return nil
}

func (c *Client) wanted(name string) bool {
	if len(c.cfg.Messages) == 0 {
		return true
	}
	for _, m := range c.cfg.Messages {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

func (c *Client) toSignal(message, idHex string, s signalInfo) models.Signal {
	sig := models.Signal{
		MessageName: message,
		SignalName:  s.Name,
		Unit:        s.Unit,
		Enabled:     c.cfg.Enable,
	}
	if idHex != "" {
		sig.MessageID = models.NormalizeMessageID(idHex)
	}
	if r, ok := PhysicalRange(s.Minimum, s.Maximum, s.Scale, s.Offset, s.BitLength, s.IsSigned); ok {
		sig.Range = &r
	}
	return sig
}

// PhysicalRange returns the declared physical bounds, inferring either side
// from the raw bit range when it is missing.
func PhysicalRange(minimum, maximum, scale, offset *float64, bitLength *int, signed bool) (models.Range, bool) {
	k := 1.0
	if scale != nil && *scale != 0 {
		k = *scale
	}
	var off float64
	if offset != nil {
		off = *offset
	}
	var lo, hi float64
	haveLo, haveHi := minimum != nil, maximum != nil
	if haveLo {
		lo = *minimum
	}
	if haveHi {
		hi = *maximum
	}
	if (!haveLo || !haveHi) && bitLength != nil && *bitLength > 0 && *bitLength <= 64 {
		rawLo, rawHi := RawBounds(*bitLength, signed)
		if !haveLo {
			lo, haveLo = rawLo*k+off, true
		}
		if !haveHi {
			hi, haveHi = rawHi*k+off, true
		}
	}
	if !haveLo || !haveHi {
		return models.Range{}, false
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	r := models.Range{Min: lo, Max: hi}
	return r, r.Valid()
}

// RawBounds is the raw integer range of an n bit field.
func RawBounds(n int, signed bool) (float64, float64) {
	if signed {
		half := math.Ldexp(1, n-1)
		return -half, half - 1
	}
	return 0, math.Ldexp(1, n) - 1
}

func (c *Client) cached() ([]models.Signal, bool) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return nil, false
	}
	b, ok, err := c.cache.GetBytes(c.cacheKey())
	if err != nil {
		c.log.Warn("catalog cache read failed", logger.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var sigs []models.Signal
	if err := json.Unmarshal(b, &sigs); err != nil {
		return nil, false
	}
	return sigs, true
}

func (c *Client) store(sigs []models.Signal) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(sigs)
	if err != nil {
		return
	}
	if err := c.cache.SetBytes(c.cacheKey(), b, c.cfg.CacheTTL); err != nil {
		c.log.Warn("catalog cache write failed", logger.Error(err))
	}
}

var _ drepo.Catalog = (*Client)(nil)
