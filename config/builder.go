package config

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/jpalmerr/pollster"
	"github.com/jpalmerr/pollster/internal/httpresource"
)

// Binding pairs a configured resource with the poller options to pass to
// [pollster.Registry.Get].
type Binding struct {
	Resource *httpresource.Resource
	Options  []pollster.Option
}

// BuildBindings converts parsed configuration into resources and poller
// options. Grids are expanded via cartesian product.
//
// All resources share client when it is non-nil. Resource names must be
// unique after grid expansion.
func BuildBindings(cfg *Config, client *httpresource.Client) ([]Binding, error) {
	var bindings []Binding

	for _, rc := range cfg.Resources {
		b, err := buildBinding(rc, cfg.DefaultDelay, client)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}

	for _, gc := range cfg.Grids {
		expanded, err := expandGrid(gc)
		if err != nil {
			return nil, err
		}
		for _, rc := range expanded {
			b, err := buildBinding(rc, cfg.DefaultDelay, client)
			if err != nil {
				return nil, err
			}
			bindings = append(bindings, b)
		}
	}

	seen := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		name := b.Resource.Name()
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate resource name %q", name)
		}
		seen[name] = struct{}{}
	}

	return bindings, nil
}

func buildBinding(rc ResourceConfig, defaultDelay Duration, client *httpresource.Client) (Binding, error) {
	var resOpts []httpresource.Option
	if len(rc.Headers) > 0 {
		resOpts = append(resOpts, httpresource.WithHeaders(rc.Headers))
	}
	if rc.Timeout != 0 {
		resOpts = append(resOpts, httpresource.WithTimeout(rc.Timeout.Duration()))
	}
	if rc.Extract != "" {
		resOpts = append(resOpts, httpresource.WithExtract(rc.Extract))
	}
	if client != nil {
		resOpts = append(resOpts, httpresource.WithClient(client))
	}

	res, err := httpresource.New(rc.Name, rc.URL, resOpts...)
	if err != nil {
		return Binding{}, fmt.Errorf("resource %q: %w", rc.Name, err)
	}

	delay := rc.Delay
	if delay == 0 {
		delay = defaultDelay
	}
	opts := []pollster.Option{pollster.WithDelay(delay.Duration())}
	if rc.Action != "" {
		opts = append(opts, pollster.WithAction(rc.Action))
	}
	if len(rc.Params) > 0 {
		opts = append(opts, pollster.WithParams(rc.Params))
	}
	if rc.RescheduleOnError {
		opts = append(opts, pollster.WithRescheduleOnError(true))
	}

	return Binding{Resource: res, Options: opts}, nil
}

// expandGrid turns a GridConfig into one ResourceConfig per dimension
// combination.
func expandGrid(gc GridConfig) ([]ResourceConfig, error) {
	// missingkey=error fails fast on template variables with no dimension
	tmpl, err := template.New("url").Option("missingkey=error").Parse(gc.URLTemplate)
	if err != nil {
		return nil, err
	}

	var resources []ResourceConfig
	for _, combo := range cartesianProduct(gc.Dimensions) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, combo); err != nil {
			return nil, fmt.Errorf("grid (%s) with dimensions %v: template execution failed: %w", gc.Name, combo, err)
		}

		resources = append(resources, ResourceConfig{
			Name:              gridResourceName(gc.Name, combo),
			URL:               buf.String(),
			Action:            gc.Action,
			Delay:             gc.Delay,
			Params:            gc.Params,
			Headers:           gc.Headers,
			Timeout:           gc.Timeout,
			Extract:           gc.Extract,
			RescheduleOnError: gc.RescheduleOnError,
		})
	}

	return resources, nil
}

// gridResourceName appends the combination values, in key order, to base.
func gridResourceName(base string, combo map[string]string) string {
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	name := base
	for _, k := range keys {
		name += " " + combo[k]
	}
	return name
}

// cartesianProduct generates all combinations of dimension values in
// deterministic order.
func cartesianProduct(dimensions map[string][]string) []map[string]string {
	if len(dimensions) == 0 {
		return nil
	}

	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []map[string]string{{}}
	for _, key := range keys {
		var next []map[string]string
		for _, combo := range result {
			for _, val := range dimensions[key] {
				newCombo := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					newCombo[k] = v
				}
				newCombo[key] = val
				next = append(next, newCombo)
			}
		}
		result = next
	}

	return result
}
