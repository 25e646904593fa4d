// Package rules compiles configured routes into matchable rules, each holding
// a request chain and a response chain that rewrite JSON bodies.
package rules

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/observability"
	"github.com/vyrodovalexey/restransform/pkg/resource"
	"github.com/vyrodovalexey/restransform/pkg/transform"
)

// Errors returned while compiling rules.
var (
	ErrInvalidCondition  = errors.New("invalid condition")
	ErrUnknownDateTarget = errors.New("unknown date target")
	ErrInvalidLocation   = errors.New("invalid location")
)

// Directions of a transform.
const (
	DirectionRequest  = "request"
	DirectionResponse = "response"
)

// Rule is a compiled route.
type Rule struct {
	Name       string
	PathPrefix string

	methods   map[string]struct{}
	condition cel.Program
	when      string

	// Request rewrites request bodies. Nil when the route leaves them alone.
	Request resource.Chain
	// Response rewrites response bodies. Nil when the route leaves them alone.
	Response resource.Chain
}

// Chain returns the chain for a direction.
func (r *Rule) Chain(direction string) resource.Chain {
	if direction == DirectionRequest {
		return r.Request
	}
	return r.Response
}

// Condition returns the CEL source of the rule condition, if any.
func (r *Rule) Condition() string {
	return r.when
}

// matchesPath reports whether path lies under the rule prefix on a segment boundary.
func (r *Rule) matchesPath(path string) bool {
	if !strings.HasPrefix(path, r.PathPrefix) {
		return false
	}
	if len(path) == len(r.PathPrefix) || strings.HasSuffix(r.PathPrefix, "/") {
		return true
	}
	return path[len(r.PathPrefix)] == '/'
}

func (r *Rule) matchesMethod(method string) bool {
	if len(r.methods) == 0 {
		return true
	}
	_, ok := r.methods[method]
	return ok
}

func (r *Rule) evaluate(attrs map[string]any) (bool, error) {
	if r.condition == nil {
		return true, nil
	}
	out, _, err := r.condition.Eval(map[string]any{"request": attrs})
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q: %w: result is %T", r.Name, ErrInvalidCondition, out.Value())
	}
	return matched, nil
}

// Set is an immutable collection of rules ordered for matching:
// longer prefixes first, configuration order among equal prefixes.
type Set struct {
	rules  []*Rule
	logger observability.Logger
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns the rules in match order.
func (s *Set) Rules() []*Rule {
	if s == nil {
		return nil
	}
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Get returns the rule named name.
func (s *Set) Get(name string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	for _, r := range s.rules {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Match returns the first rule whose prefix, methods and condition accept req.
// Conditions that fail to evaluate are logged and treated as false.
func (s *Set) Match(req *http.Request) *Rule {
	if s == nil {
		return nil
	}
	var attrs map[string]any
	for _, r := range s.rules {
		if !r.matchesPath(req.URL.Path) || !r.matchesMethod(req.Method) {
			continue
		}
		if r.condition != nil && attrs == nil {
			attrs = RequestAttributes(req)
		}
		ok, err := r.evaluate(attrs)
		if err != nil {
			s.logger.WithContext(req.Context()).Warn("rule condition failed",
				observability.String("rule", r.Name),
				observability.Error(err),
			)
			continue
		}
		if ok {
			return r
		}
	}
	return nil
}

// RequestAttributes builds the "request" variable visible to conditions.
// Header names are lower-cased and only the first value of each header and
// query parameter is kept.
func RequestAttributes(req *http.Request) map[string]any {
	headers := make(map[string]any, len(req.Header))
	for k, vs := range req.Header {
		if len(vs) > 0 {
			headers[strings.ToLower(k)] = vs[0]
		}
	}
	query := make(map[string]any)
	for k, vs := range req.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	return map[string]any{
		"method":  req.Method,
		"path":    req.URL.Path,
		"host":    req.Host,
		"headers": headers,
		"query":   query,
	}
}

// Option configures compilation.
type Option func(*compiler)

// WithLogger sets the logger used by the compiled set.
func WithLogger(logger observability.Logger) Option {
	return func(c *compiler) {
		c.logger = logger
	}
}

type compiler struct {
	cfg    *config.Config
	env    *cel.Env
	logger observability.Logger
}

func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// Compile turns the configured routes into a Set.
func Compile(cfg *config.Config, opts ...Option) (*Set, error) {
	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	c := &compiler{cfg: cfg, env: env, logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(c)
	}

	compiled := make([]*Rule, 0, len(cfg.Routes))
	for i := range cfg.Routes {
		r, err := c.rule(&cfg.Routes[i])
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", cfg.Routes[i].Name, err)
		}
		compiled = append(compiled, r)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return len(compiled[i].PathPrefix) > len(compiled[j].PathPrefix)
	})

	return &Set{rules: compiled, logger: c.logger}, nil
}

func (c *compiler) rule(route *config.Route) (*Rule, error) {
	r := &Rule{
		Name:       route.Name,
		PathPrefix: route.Match.PathPrefix,
		when:       route.When,
	}
	if r.PathPrefix == "" {
		r.PathPrefix = "/"
	}
	if len(route.Match.Methods) > 0 {
		r.methods = make(map[string]struct{}, len(route.Match.Methods))
		for _, m := range route.Match.Methods {
			r.methods[strings.ToUpper(m)] = struct{}{}
		}
	}

	if strings.TrimSpace(route.When) != "" {
		prg, err := c.condition(route.When)
		if err != nil {
			return nil, err
		}
		r.condition = prg
	}

	var err error
	if r.Request, err = c.chain(route.Request, resource.SerializeJSON); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if r.Response, err = c.chain(route.Response, resource.SerializeResponseJSON); err != nil {
		return nil, fmt.Errorf("response: %w", err)
	}
	return r, nil
}

func (c *compiler) condition(expr string) (cel.Program, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCondition, issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression returns %s, want bool", ErrInvalidCondition, out)
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	return prg, nil
}

// chain builds a text-to-text chain: parse, convert dates, flatten ids,
// project fields, serialize. Only the request serializer drops "$$" keys.
func (c *compiler) chain(shape *config.Shape, serialize transform.Func) (resource.Chain, error) {
	if shape.IsEmpty() {
		return nil, nil
	}

	steps := resource.Chain{resource.ParseJSON}
	for i, ds := range shape.Dates {
		loc, err := c.cfg.ResolveLocation(ds)
		if err != nil {
			return nil, fmt.Errorf("dates[%d]: %w: %w", i, ErrInvalidLocation, err)
		}
		conv := transform.NewDateConverter(transform.WithLocation(loc))
		conversion, ok := conv.Conversion(ds.To)
		if !ok {
			return nil, fmt.Errorf("dates[%d]: %w: %q", i, ErrUnknownDateTarget, ds.To)
		}
		steps = append(steps, transform.Build(transform.Path(ds.Paths...), conversion))
	}
	if len(shape.IDs) > 0 {
		attr := shape.IDAttr
		if attr == "" {
			attr = transform.DefaultIDAttr
		}
		steps = append(steps, transform.FlattenValue(attr, shape.IDs...))
	}
	if len(shape.Only) > 0 {
		steps = append(steps, transform.Project(shape.Only...))
	}
	return append(steps, serialize), nil
}
