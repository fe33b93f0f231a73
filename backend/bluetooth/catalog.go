package bluetooth

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// InterfaceRule describes one probed service interface.
type InterfaceRule struct {
	Name        string   `yaml:"name"`
	RequiresAny []string `yaml:"requires_any"`
	SkipIfAny   []string `yaml:"skip_if_any"`
}

// Catalog is the versioned table of service interfaces the daemon may expose
// on a device, with the order they are probed and connected in.
type Catalog struct {
	Version      int             `yaml:"version"`
	Interfaces   []InterfaceRule `yaml:"interfaces"`
	ConnectOrder []string        `yaml:"connect_order"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("bluetooth: embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file. An empty path returns the built-in one.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("no interfaces")
	}
	known := make(map[string]bool, len(c.Interfaces))
	for _, rule := range c.Interfaces {
		if rule.Name == "" {
			return fmt.Errorf("interface without name")
		}
		if known[rule.Name] {
			return fmt.Errorf("duplicate interface %s", rule.Name)
		}
		known[rule.Name] = true
	}
	for _, name := range c.ConnectOrder {
		if !known[name] {
			return fmt.Errorf("connect_order references unknown interface %s", name)
		}
	}
	return nil
}

// Names returns the probed interface names in probe order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Interfaces))
	for i, rule := range c.Interfaces {
		names[i] = rule.Name
	}
	return names
}

// Has reports whether iface is one of the catalog's interfaces.
func (c *Catalog) Has(iface string) bool {
	return slices.ContainsFunc(c.Interfaces, func(r InterfaceRule) bool { return r.Name == iface })
}

// shouldProbe applies the rule's requires/skip conditions to the interfaces
// found so far.
func (r InterfaceRule) shouldProbe(found map[string]ServiceStatus) bool {
	for _, name := range r.SkipIfAny {
		if _, ok := found[name]; ok {
			return false
		}
	}
	if len(r.RequiresAny) == 0 {
		return true
	}
	for _, name := range r.RequiresAny {
		if _, ok := found[name]; ok {
			return true
		}
	}
	return false
}

// connectCandidate returns the most preferred connectable interface present
// in services.
func (c *Catalog) connectCandidate(services map[string]ServiceStatus) (string, bool) {
	for _, name := range c.ConnectOrder {
		if _, ok := services[name]; ok {
			return name, true
		}
	}
	return "", false
}

// disconnectOrder lists the interfaces of services to tear down: those outside
// the connect order first, in probe order, then the connectable ones from
// least to most preferred.
func (c *Catalog) disconnectOrder(services map[string]ServiceStatus) []string {
	order := make([]string, 0, len(services))
	for _, rule := range c.Interfaces {
		if _, ok := services[rule.Name]; ok && !slices.Contains(c.ConnectOrder, rule.Name) {
			order = append(order, rule.Name)
		}
	}
	for i := len(c.ConnectOrder) - 1; i >= 0; i-- {
		if _, ok := services[c.ConnectOrder[i]]; ok {
			order = append(order, c.ConnectOrder[i])
		}
	}
	return order
}
