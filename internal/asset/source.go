package asset

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/httpclient"
)

// SourceEntry is one token in a token source document.
type SourceEntry struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Address  string `yaml:"address" json:"address"`
	Decimals int    `yaml:"decimals" json:"decimals"`
	// Tradable defaults to true when absent.
	Tradable *bool `yaml:"tradable,omitempty" json:"tradable,omitempty"`
}

func (e SourceEntry) toAsset() (*Asset, error) {
	sym := CanonicalSymbol(e.Symbol)
	if sym == "" {
		return nil, apperror.Configuration("token entry without symbol")
	}
	if e.Decimals < 0 || e.Decimals > MaxDecimals {
		return nil, apperror.Configuration(fmt.Sprintf("token %s: decimals %d out of range", sym, e.Decimals))
	}
	if sym == ETH.Symbol() {
		return ETH, nil
	}
	if !common.IsHexAddress(e.Address) {
		return nil, apperror.Configuration(fmt.Sprintf("token %s: invalid address %q", sym, e.Address))
	}
	addr := common.HexToAddress(e.Address)
	if addr == (common.Address{}) {
		return nil, apperror.Configuration(fmt.Sprintf("token %s: zero address is reserved for ETH", sym))
	}

	a := NewAsset(NewTokenAssetID(ChainIDEthereum, addr), sym, uint8(e.Decimals))
	if e.Tradable != nil {
		a.tradable = *e.Tradable
	}
	return a, nil
}

// ParseSource decodes a token list. YAML and JSON documents are accepted,
// either as a bare list or under a top-level "tokens" key.
func ParseSource(data []byte) ([]SourceEntry, error) {
	var entries []SourceEntry
	if err := yaml.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}

	var wrapped struct {
		Tokens []SourceEntry `yaml:"tokens"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("token source is neither a list nor {tokens: [...]}"),
			apperror.WithCause(err))
	}
	return wrapped.Tokens, nil
}

// LoadSource reads a token list from a file path or an http(s) URL.
// client may be nil for file sources.
func LoadSource(ctx context.Context, location string, client httpclient.Client) ([]SourceEntry, error) {
	if location == "" {
		return nil, apperror.Configuration("token source location is empty")
	}

	var data []byte
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if client == nil {
			return nil, apperror.Configuration("http token source requires an http client")
		}
		resp, err := client.NewRequest().SetHeader("Accept", "application/json").Get(ctx, location)
		if err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext("fetch token source "+location), apperror.WithCause(err))
		}
		if resp.IsError() {
			return nil, apperror.Configuration(fmt.Sprintf("fetch token source %s: status %d", location, resp.StatusCode))
		}
		data = resp.Body()
	} else {
		b, err := os.ReadFile(location)
		if err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext("read token source "+location), apperror.WithCause(err))
		}
		data = b
	}

	entries, err := ParseSource(data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperror.Configuration("token source " + location + " has no entries")
	}
	return entries, nil
}
