package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/snehendu098/ghost/clearclient/pkg/chain"
)

const networksFileName = "networks.yaml"

var networkNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$`)

// NetworksConfig is the root of networks.yaml. DefaultCustody applies to
// every network that does not name its own custody contract.
type NetworksConfig struct {
	DefaultCustody string          `yaml:"default_custody"`
	Networks       []NetworkConfig `yaml:"networks"`
}

// NetworkConfig describes one chain deposits can be made on.
type NetworkConfig struct {
	// Name is snake_case, e.g. "polygon_amoy".
	Name     string `yaml:"name" validate:"required,snake_case"`
	ChainID  uint64 `yaml:"chain_id" validate:"required"`
	Disabled bool   `yaml:"disabled"`
	Custody  string `yaml:"custody" validate:"required,eth_addr"`
	// RPCURL is read from <NAME>_RPC_URL when not set in the file.
	RPCURL string        `yaml:"rpc_url" validate:"omitempty,url"`
	Tokens []TokenConfig `yaml:"tokens" validate:"dive"`
}

type TokenConfig struct {
	Symbol string `yaml:"symbol" validate:"required"`
	// Address is empty for the native currency.
	Address  string `yaml:"address" validate:"omitempty,eth_addr"`
	Decimals uint8  `yaml:"decimals" validate:"lte=36"`
}

// LoadNetworks reads <dir>/networks.yaml and returns the enabled networks.
// A missing file yields no networks.
func LoadNetworks(dir string) ([]NetworkConfig, error) {
	path := filepath.Join(dir, networksFileName)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg NetworksConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return cfg.enabled()
}

func (cfg NetworksConfig) enabled() ([]NetworkConfig, error) {
	seen := make(map[uint64]string)
	var networks []NetworkConfig
	for _, n := range cfg.Networks {
		if n.Disabled {
			continue
		}
		if n.Custody == "" {
			if cfg.DefaultCustody == "" {
				return nil, fmt.Errorf("missing default and network-specific custody address for network '%s'", n.Name)
			}
			n.Custody = cfg.DefaultCustody
		}
		if n.RPCURL == "" {
			n.RPCURL = os.Getenv(strings.ToUpper(n.Name) + "_RPC_URL")
		}
		if other, ok := seen[n.ChainID]; ok {
			return nil, fmt.Errorf("networks '%s' and '%s' share chain id %d", other, n.Name, n.ChainID)
		}
		seen[n.ChainID] = n.Name
		networks = append(networks, n)
	}
	return networks, nil
}

// ChainNetwork converts the entry for the chain client.
func (n NetworkConfig) ChainNetwork() chain.Network {
	tokens := make([]chain.Token, 0, len(n.Tokens))
	for _, t := range n.Tokens {
		var address common.Address
		if t.Address != "" {
			address = common.HexToAddress(t.Address)
		}
		tokens = append(tokens, chain.Token{
			Symbol:   strings.ToLower(t.Symbol),
			Address:  address,
			Decimals: t.Decimals,
		})
	}
	return chain.Network{
		ChainID:        n.ChainID,
		Name:           n.Name,
		CustodyAddress: common.HexToAddress(n.Custody),
		Tokens:         tokens,
	}
}
