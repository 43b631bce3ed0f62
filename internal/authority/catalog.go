package authority

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

//go:embed rules.yaml
var embeddedRules []byte

type Rule struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Technical   bool   `yaml:"technical"`
}

// Catalog classifies DIAN rule codes. Unknown codes are business rejections.
type Catalog struct {
	rules map[string]Rule
}

func DefaultCatalog() *Catalog {
	c, err := parseCatalog(embeddedRules, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded rule catalog: %v", err))
	}

	return c
}

// LoadCatalog reads path over the embedded rules; entries in path win.
// An empty path or a missing file yields the embedded catalog.
func LoadCatalog(path string) (*Catalog, error) {
	base := DefaultCatalog()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}

		return nil, fmt.Errorf("reading rule catalog: %w", err)
	}

	c, err := parseCatalog(data, base)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return c, nil
}

func parseCatalog(data []byte, base *Catalog) (*Catalog, error) {
	var file struct {
		Rules []Rule `yaml:"rules"`
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	c := &Catalog{rules: make(map[string]Rule)}
	if base != nil {
		for code, r := range base.rules {
			c.rules[code] = r
		}
	}

	for i, r := range file.Rules {
		r.Code = strings.TrimSpace(r.Code)
		if r.Code == "" {
			return nil, fmt.Errorf("rule %d: code is required", i)
		}

		c.rules[r.Code] = r
	}

	return c, nil
}

func (c *Catalog) Lookup(code string) (Rule, bool) {
	r, ok := c.rules[code]
	return r, ok
}

// Technical reports whether every error is a technical rule. An empty list is not technical.
func (c *Catalog) Technical(errs []invoice.AuthorityError) bool {
	if len(errs) == 0 {
		return false
	}

	for _, e := range errs {
		if !c.rules[e.Code].Technical {
			return false
		}
	}

	return true
}

// DIAN reports violations as "Regla: FAD06, Rechazo: <text>"; notifications do not reject.
var messagePattern = regexp.MustCompile(`^\s*Regla:\s*([^,]+),\s*(Rechazo|Notificaci[oó]n)\s*:\s*(.*)$`)

func splitMessages(raw []string) (errs, notes []invoice.AuthorityError) {
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		m := messagePattern.FindStringSubmatch(s)
		if m == nil {
			errs = append(errs, invoice.AuthorityError{Message: s})
			continue
		}

		ae := invoice.AuthorityError{Code: strings.TrimSpace(m[1]), Message: strings.TrimSpace(m[3])}
		if m[2] == "Rechazo" {
			errs = append(errs, ae)
		} else {
			notes = append(notes, ae)
		}
	}

	return errs, notes
}
