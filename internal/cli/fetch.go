package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/pkg/resource"
	"github.com/vyrodovalexey/restransform/pkg/retry"
	"github.com/vyrodovalexey/restransform/pkg/transform"
)

// ErrRouteAndDates is returned when fetch gets both a route and date paths.
var ErrRouteAndDates = errors.New("--route and --date-path are mutually exclusive")

type fetchOptions struct {
	baseURL  string
	method   string
	data     string
	headers  []string
	retries  int
	timeout  time.Duration
	cfgPath  string
	route    string
	to       string
	paths    []string
	location string
}

func newFetchCmd() *cobra.Command {
	opts := fetchOptions{
		method:   http.MethodGet,
		retries:  3,
		timeout:  resource.DefaultTimeout,
		cfgPath:  defaultConfigPath,
		to:       config.DateTargetDate,
		location: "Local",
	}
	cmd := &cobra.Command{
		Use:   "fetch <path>",
		Short: "Call an API and shape the bodies with a route or date paths",
		Long: `Call path relative to --base-url. With --route the request and response
bodies go through that route's shapes. With --date-path the response dates are
converted to --to. Idempotent methods are retried on 502, 503 and 504.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.baseURL, "base-url", "", "API base URL")
	fs.StringVarP(&opts.method, "method", "X", opts.method, "HTTP method")
	fs.StringVarP(&opts.data, "data", "d", "", `request body, "-" reads stdin`)
	fs.StringArrayVarP(&opts.headers, "header", "H", nil, `header "Name: value" (repeatable)`)
	fs.IntVar(&opts.retries, "retries", opts.retries, "retries for idempotent methods, 0 disables")
	fs.DurationVar(&opts.timeout, "timeout", opts.timeout, "timeout per attempt")
	fs.StringVarP(&opts.cfgPath, "config", "c", opts.cfgPath, "config yaml path, used with --route")
	fs.StringVarP(&opts.route, "route", "r", "", "route whose shapes are applied")
	fs.StringVar(&opts.to, "to", opts.to, "date target: date, localIso or zonedIso")
	fs.StringArrayVarP(&opts.paths, "date-path", "p", nil, "response date path (repeatable)")
	fs.StringVar(&opts.location, "location", opts.location, "IANA zone, Local or UTC")
	_ = cmd.MarkFlagRequired("base-url")
	return cmd
}

func (o *fetchOptions) run(cmd *cobra.Command, path string) error {
	if o.route != "" && len(o.paths) > 0 {
		return ErrRouteAndDates
	}

	clientOpts := []resource.ClientOption{
		resource.WithHTTPClient(&http.Client{Timeout: o.timeout}),
	}
	if o.retries > 0 {
		clientOpts = append(clientOpts, resource.WithRetry(&retry.Config{MaxRetries: o.retries}))
	}
	for _, h := range o.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		clientOpts = append(clientOpts, resource.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}
	client, err := resource.NewClient(o.baseURL, clientOpts...)
	if err != nil {
		return err
	}

	action := resource.Action{
		Name:   "fetch",
		Method: strings.ToUpper(o.method),
		Path:   path,
	}
	if err := o.shape(client, &action); err != nil {
		return err
	}

	body, err := o.body(cmd)
	if err != nil {
		return err
	}

	out, err := client.Do(cmd.Context(), action, body)
	if err != nil {
		var statusErr *resource.StatusError
		if errors.As(err, &statusErr) && statusErr.Body != "" {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(statusErr.Body))
		}
		return err
	}
	return writeOutput(cmd, out)
}

// shape sets the action chains from the route or the date flags.
func (o *fetchOptions) shape(client *resource.Client, action *resource.Action) error {
	if o.route != "" {
		_, set, err := loadRules(o.cfgPath)
		if err != nil {
			return err
		}
		rule, ok := set.Get(o.route)
		if !ok {
			return fmt.Errorf("route %q not found", o.route)
		}
		action.TransformRequest = rule.Request
		action.TransformResponse = rule.Response
		return nil
	}
	if len(o.paths) == 0 {
		return nil
	}

	loc, err := config.Dates{Location: o.location}.LoadLocation()
	if err != nil {
		return fmt.Errorf("location %q: %w", o.location, err)
	}
	hooks := resource.NewDateHooks(client.Defaults(), transform.NewDateConverter(transform.WithLocation(loc)))
	chain, ok := hooks.Response.Convert(o.to, transform.Path(o.paths...))
	if !ok {
		return fmt.Errorf("unknown date target %q", o.to)
	}
	action.TransformResponse = chain
	return nil
}

func (o *fetchOptions) body(cmd *cobra.Command) (any, error) {
	switch o.data {
	case "":
		return nil, nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return o.data, nil
	}
}
