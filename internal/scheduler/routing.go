package scheduler

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Router maps a tile's (embedder_backend, embedder_model) pair to a
// queue name, per the backend=queue / backend:model=queue routing table
// (§4.4). backend:model entries win over a bare backend entry; the
// first bare backend=queue entry listed is the default.
type Router struct {
	byBackendModel map[string]string
	byBackend      map[string]string
	defaultQueue   string
}

// ParseRoutingTable parses the flat "backend=queue,backend:model=queue"
// form. Empty entries are ignored; duplicate keys: last one wins.
func ParseRoutingTable(spec string) *Router {
	r := &Router{byBackendModel: map[string]string{}, byBackend: map[string]string{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, queue, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		queue = strings.TrimSpace(queue)
		if key == "" || queue == "" {
			continue
		}
		r.add(key, queue)
	}
	return r
}

type yamlRoutingEntry struct {
	Match string `yaml:"match"`
	Queue string `yaml:"queue"`
}

// LoadRoutingFile reads the declarative YAML alternative: a list of
// {match: "backend[:model]", queue: "..."} entries evaluated in file
// order with the same last-wins-on-duplicate semantics.
func LoadRoutingFile(path string) (*Router, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []yamlRoutingEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	r := &Router{byBackendModel: map[string]string{}, byBackend: map[string]string{}}
	for _, e := range entries {
		if e.Match == "" || e.Queue == "" {
			continue
		}
		r.add(e.Match, e.Queue)
	}
	return r, nil
}

func (r *Router) add(key, queue string) {
	if strings.Contains(key, ":") {
		r.byBackendModel[key] = queue
		return
	}
	if r.defaultQueue == "" {
		r.defaultQueue = queue
	}
	r.byBackend[key] = queue
}

// Route resolves a tile's embedder_model value (e.g. "pe_core" or
// "clip:ViT-B-32") to a queue name. An exact backend:model match wins;
// failing that, the portion before the colon (or the whole string, if
// there is no colon) is looked up as a bare backend; failing that, the
// default queue catches the remainder. ok is false only when nothing
// matched and no default queue was ever configured.
func (r *Router) Route(embedderModel string) (queue string, ok bool) {
	if q, found := r.byBackendModel[embedderModel]; found {
		return q, true
	}
	backend := embedderModel
	if idx := strings.Index(embedderModel, ":"); idx >= 0 {
		backend = embedderModel[:idx]
	}
	if q, found := r.byBackend[backend]; found {
		return q, true
	}
	if r.defaultQueue != "" {
		return r.defaultQueue, true
	}
	return "", false
}
