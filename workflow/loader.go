package workflow

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/talentmesh/talentmesh/core"
)

// Catalog binds guard and action names appearing in YAML definition
// documents to Go implementations. Populated at startup before definitions
// load; a definition referencing an unbound name fails to load.
type Catalog struct {
	mu      sync.RWMutex
	guards  map[string]Guard
	actions map[string]Action
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{guards: make(map[string]Guard), actions: make(map[string]Action)}
}

// RegisterGuard binds a guard name.
func (c *Catalog) RegisterGuard(name string, g Guard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guards[name] = g
}

// RegisterAction binds an action name.
func (c *Catalog) RegisterAction(name string, a Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions[name] = a
}

func (c *Catalog) guard(name string) (Guard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.guards[name]
	return g, ok
}

func (c *Catalog) action(name string) (Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actions[name]
	return a, ok
}

// definitionDoc is the YAML shape of a workflow definition document.
type definitionDoc struct {
	Name        string          `yaml:"name"`
	Conflict    string          `yaml:"conflict,omitempty"`
	Initial     string          `yaml:"initial"`
	States      []string        `yaml:"states"`
	Terminals   []string        `yaml:"terminals"`
	Transitions []transitionDoc `yaml:"transitions"`
}

type transitionDoc struct {
	From   string `yaml:"from"`
	Event  string `yaml:"event"`
	Guard  string `yaml:"guard,omitempty"`
	Action string `yaml:"action,omitempty"`
	To     string `yaml:"to"`
}

// LoadDefinition decodes one YAML definition document, binding guard and
// action names through the catalog. The returned definition is not yet
// validated; RegisterDefinition does that.
func LoadDefinition(r io.Reader, catalog *Catalog) (*Definition, error) {
	var doc definitionDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding workflow definition: %w", err)
	}

	d := &Definition{
		Name:     doc.Name,
		Initial:  core.StateID(doc.Initial),
		Conflict: ConflictPolicy(doc.Conflict),
	}
	for _, s := range doc.States {
		d.States = append(d.States, core.StateID(s))
	}
	for _, s := range doc.Terminals {
		d.Terminals = append(d.Terminals, core.StateID(s))
	}
	for _, tr := range doc.Transitions {
		t := Transition{
			From:       core.StateID(tr.From),
			Event:      tr.Event,
			To:         core.StateID(tr.To),
			GuardName:  tr.Guard,
			ActionName: tr.Action,
		}
		if tr.Guard != "" {
			g, ok := catalog.guard(tr.Guard)
			if !ok {
				return nil, &DefinitionError{Definition: doc.Name, Message: fmt.Sprintf("guard %q is not bound in the catalog", tr.Guard)}
			}
			t.Guard = g
		}
		if tr.Action != "" {
			a, ok := catalog.action(tr.Action)
			if !ok {
				return nil, &DefinitionError{Definition: doc.Name, Message: fmt.Sprintf("action %q is not bound in the catalog", tr.Action)}
			}
			t.Action = a
		}
		d.Transitions = append(d.Transitions, t)
	}

	return d, nil
}

// LoadDefinitionFile loads one definition from a YAML file.
func LoadDefinitionFile(path string, catalog *Catalog) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening definition file: %w", err)
	}
	defer f.Close()
	return LoadDefinition(f, catalog)
}

// LoadDir loads and registers every .yaml/.yml definition under dir. A bad
// document is fatal only for that definition: it is reported in the returned
// map and the rest keep loading. Files load in lexical order so repeated
// startups register definitions deterministically.
func (e *Engine) LoadDir(dir string, catalog *Catalog) (loaded []string, failed map[string]error, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading definition directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	failed = make(map[string]error)
	for _, name := range files {
		path := filepath.Join(dir, name)
		def, loadErr := LoadDefinitionFile(path, catalog)
		if loadErr == nil {
			loadErr = e.RegisterDefinition(def)
		}
		if loadErr != nil {
			e.logger.Error("workflow.definition.load_failed", "file", name, "error", loadErr.Error())
			failed[name] = loadErr
			continue
		}
		loaded = append(loaded, def.Name)
	}

	return loaded, failed, nil
}
