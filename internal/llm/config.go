package llm

import (
	"errors"
	"fmt"
	"net/url"
)

// Defaults applied by NewClient to zero-valued fields.
const (
	DefaultAPIURL    = "https://openrouter.ai/api/v1"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 30
)

// Config describes an OpenAI-compatible chat completion endpoint. The
// application fills it from config.NewFromEnv via Config.LLMClientConfig.
type Config struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	// Timeout is the whole-request timeout in seconds
	Timeout int    `json:"timeout"`
	SiteURL string `json:"site_url"`
	AppName string `json:"app_name"`
}

// withDefaults returns a copy of c with unset limits and the endpoint filled in.
func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate reports whether a client can be built from c. Call it on a config
// that already has defaults applied.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("api key is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api url %q must be an absolute http(s) URL", c.APIURL))
	}
	if c.MaxTokens < 1 {
		errs = append(errs, errors.New("max tokens must be greater than 0"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("temperature must be between 0 and 2"))
	}
	if c.Timeout < 1 {
		errs = append(errs, errors.New("timeout must be greater than 0"))
	}
	return errors.Join(errs...)
}

// headers returns the request headers, including the optional OpenRouter
// attribution headers.
func (c *Config) headers() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}
	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}
	return headers
}
