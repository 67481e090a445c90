// Package tools implements the tool subsystem: a description-indexed catalog
// for discovery, the allow-list gate, and per-family argument validation.
// Tools are known here by name and argument shape only; execution is
// delegated to registered executor functions.
package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"cortex/internal/logging"
	"cortex/internal/store"
	"cortex/internal/types"
)

// ErrInvalidToolArguments is returned when a required argument cannot be
// recovered from the query or a family default.
var ErrInvalidToolArguments = errors.New("invalid tool arguments")

// ErrUnknownTool is returned for invocations naming an unregistered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Metadata keys for documents in the tool collection.
const (
	metaToolName   = "tool"
	metaToolFamily = "family"
)

// Executor runs one validated invocation.
type Executor func(ctx context.Context, args map[string]string) (string, error)

// Tool describes one callable tool.
type Tool struct {
	Name        string
	Description string
	Family      string // e.g. "weather", "datetime", "calendar"
	Required    []string
	Defaults    map[string]string
	Run         Executor
}

// Invocation is a tool call requested by a stage.
type Invocation struct {
	Name string
	Args map[string]string
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog registers tools and indexes their descriptions in the vector store
// so ContextFetcher can discover candidates by nearest-neighbor search.
type Catalog struct {
	mu     sync.RWMutex
	store  *store.VectorStore
	byName map[string]Tool
}

// NewCatalog creates a catalog backed by the given store.
func NewCatalog(vs *store.VectorStore) *Catalog {
	return &Catalog{store: vs, byName: make(map[string]Tool)}
}

// Register adds tools and indexes their descriptions. Re-registering a name
// replaces the earlier entry and its index document.
func (c *Catalog) Register(ctx context.Context, tools ...Tool) error {
	docs := make([]types.Document, 0, len(tools))
	c.mu.Lock()
	for _, t := range tools {
		c.byName[t.Name] = t
		docs = append(docs, types.Document{
			ID:   "tool:" + t.Name,
			Text: t.Name + ": " + t.Description,
			Metadata: map[string]string{
				metaToolName:   t.Name,
				metaToolFamily: t.Family,
			},
		})
	}
	c.mu.Unlock()

	if err := c.store.Add(ctx, store.CollectionTools, docs); err != nil {
		return fmt.Errorf("failed to index tool descriptions: %w", err)
	}
	logging.Tools("registered %d tools", len(tools))
	return nil
}

// Get looks a tool up by name.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byName[name]
	return t, ok
}

// Names returns every registered tool name, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.byName))
	for n := range c.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Discover returns the names of the topK tools whose descriptions are
// nearest to the query.
func (c *Catalog) Discover(ctx context.Context, query string, topK int) ([]string, error) {
	docs, err := c.store.Search(ctx, store.CollectionTools, query, topK)
	if err != nil {
		return nil, fmt.Errorf("tool discovery failed: %w", err)
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		if n := d.Metadata[metaToolName]; n != "" {
			names = append(names, n)
		}
	}
	logging.Tools("discovered %d candidate tools for query", len(names))
	return names, nil
}

// =============================================================================
// GATE
// =============================================================================

// Gate enforces the allow-list and validates invocation arguments.
type Gate struct {
	catalog *Catalog
}

// NewGate creates a gate over a catalog.
func NewGate(catalog *Catalog) *Gate {
	return &Gate{catalog: catalog}
}

// Approve filters the approved set down to names that were actually
// suggested. Names outside the suggestion set are dropped with a log, never
// executed.
func (g *Gate) Approve(suggested, approved []string) []string {
	allowed := make(map[string]bool, len(suggested))
	for _, s := range suggested {
		allowed[s] = true
	}
	out := make([]string, 0, len(approved))
	for _, a := range approved {
		if allowed[a] {
			out = append(out, a)
			continue
		}
		logging.Tools("dropping unapprovable tool %q: not in suggested set", a)
	}
	return out
}

// Validate normalizes one invocation: empty arguments are dropped, family
// fixups recover missing fields from the raw query, and family defaults fill
// whatever remains. A required field still missing afterwards rejects the
// invocation.
func (g *Gate) Validate(inv Invocation, rawQuery string) (Invocation, error) {
	tool, ok := g.catalog.Get(inv.Name)
	if !ok {
		return Invocation{}, fmt.Errorf("%w: %s", ErrUnknownTool, inv.Name)
	}

	args := make(map[string]string, len(inv.Args))
	for k, v := range inv.Args {
		if strings.TrimSpace(v) == "" {
			continue
		}
		args[k] = v
	}

	applyFamilyFixups(tool.Family, args, rawQuery)

	for _, req := range tool.Required {
		if _, ok := args[req]; ok {
			continue
		}
		if def, ok := tool.Defaults[req]; ok {
			args[req] = def
			continue
		}
		return Invocation{}, fmt.Errorf("%w: %s missing required field %q", ErrInvalidToolArguments, inv.Name, req)
	}
	return Invocation{Name: inv.Name, Args: args}, nil
}

// ExecuteAll validates and runs a batch of invocations concurrently, joining
// results before returning. Any validation failure fails the batch up front;
// execution errors fail the batch as a whole.
func (g *Gate) ExecuteAll(ctx context.Context, invs []Invocation, rawQuery string) (map[string]string, error) {
	validated := make([]Invocation, 0, len(invs))
	for _, inv := range invs {
		v, err := g.Validate(inv, rawQuery)
		if err != nil {
			return nil, err
		}
		validated = append(validated, v)
	}

	var mu sync.Mutex
	results := make(map[string]string, len(validated))
	eg, ectx := errgroup.WithContext(ctx)
	for _, inv := range validated {
		inv := inv
		tool, _ := g.catalog.Get(inv.Name)
		if tool.Run == nil {
			return nil, fmt.Errorf("%w: %s has no executor", ErrUnknownTool, inv.Name)
		}
		eg.Go(func() error {
			out, err := tool.Run(ectx, inv.Args)
			if err != nil {
				return fmt.Errorf("tool %s failed: %w", inv.Name, err)
			}
			mu.Lock()
			results[inv.Name] = out
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// =============================================================================
// FAMILY FIXUPS
// =============================================================================

var (
	// "in Paris", "for New York" with one or two capitalized words.
	cityPattern = regexp.MustCompile(`\b(?:in|for|at)\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`)
	// Quoted or "about ..." event titles.
	quotedTitlePattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	aboutTitlePattern  = regexp.MustCompile(`(?i)\b(?:about|titled|called)\s+(.+?)(?:[.?!]|$)`)
	datePhrasePattern  = regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday|next week|this week)\b`)
)

// applyFamilyFixups recovers well-known fields from the raw query for tool
// families whose callers habitually omit them.
func applyFamilyFixups(family string, args map[string]string, rawQuery string) {
	switch family {
	case "weather":
		if args["city"] == "" {
			if m := cityPattern.FindStringSubmatch(rawQuery); m != nil {
				args["city"] = m[1]
			}
		}
	case "datetime":
		if args["date"] == "" {
			if m := datePhrasePattern.FindStringSubmatch(rawQuery); m != nil {
				args["date"] = strings.ToLower(m[1])
			}
		}
	case "calendar":
		if args["title"] == "" {
			if m := quotedTitlePattern.FindStringSubmatch(rawQuery); m != nil {
				if m[1] != "" {
					args["title"] = m[1]
				} else {
					args["title"] = m[2]
				}
			} else if m := aboutTitlePattern.FindStringSubmatch(rawQuery); m != nil {
				args["title"] = strings.TrimSpace(m[1])
			}
		}
		if args["date"] == "" {
			if m := datePhrasePattern.FindStringSubmatch(rawQuery); m != nil {
				args["date"] = strings.ToLower(m[1])
			}
		}
	}
}
