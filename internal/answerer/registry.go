package answerer

import (
	"fmt"

	"github.com/giantswarm/qa-environment/internal/llm"
)

// Backend names accepted by New.
const (
	BackendLLM    = "llm"
	BackendSearch = "search"
	BackendScrape = "scrape"
)

// Config selects and configures one backend.
type Config struct {
	Backend string       `yaml:"backend"`
	LLM     LLMConfig    `yaml:"llm"`
	Search  SearchConfig `yaml:"search"`
	Scrape  ScrapeConfig `yaml:"scrape"`
}

// New builds the configured backend. The LLM client is only used by the llm
// backend and may be nil otherwise.
func New(config Config, client llm.Client) (Answerer, error) {
	switch config.Backend {
	case BackendSearch, "":
		return NewSearch(config.Search), nil
	case BackendLLM:
		if client == nil {
			return nil, fmt.Errorf("llm backend requires an LLM client")
		}
		return NewLLM(client, config.LLM), nil
	case BackendScrape:
		return NewScrape(config.Scrape)
	default:
		return nil, &UnsupportedBackendError{Name: config.Backend}
	}
}
