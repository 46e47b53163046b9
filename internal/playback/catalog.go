package playback

import (
	"fmt"
	"time"
)

// Asset is a playable file.
type Asset struct {
	Name     string
	Path     string
	Duration time.Duration
	Loop     bool
}

// Catalog is the fixed set of assets the coordinator can select.
type Catalog struct {
	assets      map[string]Asset
	defaultName string
}

// NewCatalog validates assets and returns a Catalog whose default is
// defaultName. The default must exist and loop; non-looping assets need a
// positive duration so their reversion can be scheduled.
func NewCatalog(assets []Asset, defaultName string) (*Catalog, error) {
	c := &Catalog{
		assets:      make(map[string]Asset, len(assets)),
		defaultName: defaultName,
	}

	for _, a := range assets {
		if a.Name == "" {
			return nil, fmt.Errorf("playback: asset with empty name")
		}
		if _, dup := c.assets[a.Name]; dup {
			return nil, fmt.Errorf("playback: duplicate asset %q", a.Name)
		}
		if !a.Loop && a.Duration <= 0 {
			return nil, fmt.Errorf("playback: one-shot asset %q needs a positive duration", a.Name)
		}
		c.assets[a.Name] = a
	}

	def, ok := c.assets[defaultName]
	if !ok {
		return nil, fmt.Errorf("playback: default asset %q not in catalog", defaultName)
	}
	if !def.Loop {
		return nil, fmt.Errorf("playback: default asset %q must loop", defaultName)
	}

	return c, nil
}

// Lookup returns the named asset.
func (c *Catalog) Lookup(name string) (Asset, bool) {
	a, ok := c.assets[name]
	return a, ok
}

// Default returns the default looping asset.
func (c *Catalog) Default() Asset {
	return c.assets[c.defaultName]
}
