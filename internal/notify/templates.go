package notify

import (
	_ "embed"
	"os"
	"sync"

	"github.com/osteele/liquid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

//go:embed templates.yaml
var defaultTemplates []byte

var ErrUnknownTemplate = errors.New("unknown notification template")

// Template is one catalog entry with a body per format.
type Template struct {
	Subject string `yaml:"subject"`
	TXT     string `yaml:"txt"`
	HTML    string `yaml:"html"`
}

func (t Template) body(f model.Format) string {
	if f == model.FormatHTML {
		return t.HTML
	}
	return t.TXT
}

// Catalog maps template keys to templates.
type Catalog map[string]Template

// LoadCatalog reads a YAML catalog from path, or the built-in one when path
// is empty.
func LoadCatalog(path string) (Catalog, error) {
	raw := defaultTemplates
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read templates")
		}
		raw = b
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}
	for _, key := range []string{TemplateOrgCampaign, TemplateAgentOnboarding} {
		if _, ok := c[key]; !ok {
			return nil, errors.Wrapf(ErrUnknownTemplate, "catalog is missing %q", key)
		}
	}
	return c, nil
}

// Renderer renders catalog templates with Liquid. Parsed templates are cached.
type Renderer struct {
	engine  *liquid.Engine
	catalog Catalog
	cache   sync.Map // key/format -> *liquid.Template
}

func NewRenderer(c Catalog) *Renderer {
	return &Renderer{engine: liquid.NewEngine(), catalog: c}
}

// Render returns the subject and body for msg.
func (r *Renderer) Render(msg Message) (subject, body string, err error) {
	tpl, ok := r.catalog[msg.TemplateKey]
	if !ok {
		return "", "", errors.Wrap(ErrUnknownTemplate, msg.TemplateKey)
	}
	bindings := make(map[string]any, len(msg.Variables))
	for k, v := range msg.Variables {
		bindings[k] = v
	}
	subject, err = r.render(msg.TemplateKey+"/subject", tpl.Subject, bindings)
	if err != nil {
		return "", "", err
	}
	body, err = r.render(msg.TemplateKey+"/"+string(msg.Format), tpl.body(msg.Format), bindings)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func (r *Renderer) render(cacheKey, source string, bindings map[string]any) (string, error) {
	if cached, ok := r.cache.Load(cacheKey); ok {
		out, err := cached.(*liquid.Template).RenderString(bindings)
		if err != nil {
			return "", errors.Wrapf(err, "render %s", cacheKey)
		}
		return out, nil
	}
	parsed, perr := r.engine.ParseString(source)
	if perr != nil {
		return "", errors.Wrapf(perr, "parse %s", cacheKey)
	}
	r.cache.Store(cacheKey, parsed)
	out, err := parsed.RenderString(bindings)
	if err != nil {
		return "", errors.Wrapf(err, "render %s", cacheKey)
	}
	return out, nil
}
