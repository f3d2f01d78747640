package asset

import (
	"errors"
	"fmt"
	"strings"
)

// Asset is one tracked coin. ID is the key used against the price API.
type Asset struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	IconRef     string `json:"icon" yaml:"icon"`
}

// Registry is the fixed, ordered list of tracked assets.
// Order is display order; it never changes after New.
type Registry struct {
	assets []Asset
	byID   map[string]int
}

var ErrEmpty = errors.New("asset registry is empty")

func New(assets []Asset) (*Registry, error) {
	if len(assets) == 0 {
		return nil, ErrEmpty
	}
	r := &Registry{
		assets: make([]Asset, 0, len(assets)),
		byID:   make(map[string]int, len(assets)),
	}
	for i, a := range assets {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return nil, fmt.Errorf("asset %d: empty id", i)
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("asset %d: duplicate id %q", i, a.ID)
		}
		if a.DisplayName == "" {
			a.DisplayName = a.ID
		}
		r.byID[a.ID] = len(r.assets)
		r.assets = append(r.assets, a)
	}
	return r, nil
}

// List returns the assets in registry order.
func (r *Registry) List() []Asset {
	out := make([]Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// IDs returns the asset ids in registry order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.assets))
	for i, a := range r.assets {
		out[i] = a.ID
	}
	return out
}

func (r *Registry) Lookup(id string) (Asset, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Asset{}, false
	}
	return r.assets[i], true
}

func (r *Registry) Len() int { return len(r.assets) }

// Defaults is the coin list shipped with the dashboard.
func Defaults() []Asset {
	return []Asset{
		{ID: "bitcoin", DisplayName: "Bitcoin", IconRef: "/icons/bitcoin.png"},
		{ID: "ethereum", DisplayName: "Ethereum", IconRef: "/icons/ethereum.png"},
		{ID: "tether", DisplayName: "Tether", IconRef: "/icons/tether.png"},
		{ID: "dogecoin", DisplayName: "Dogecoin", IconRef: "/icons/dogecoin.png"},
		{ID: "tron", DisplayName: "Tron", IconRef: "/icons/tron.png"},
		{ID: "solana", DisplayName: "Solana", IconRef: "/icons/solana.png"},
		{ID: "shiba-inu", DisplayName: "Shiba Inu", IconRef: "/icons/shiba.png"},
	}
}
