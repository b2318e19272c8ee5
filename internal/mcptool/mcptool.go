// Package mcptool exposes the probe engine as Model Context Protocol tools
// so AI assistants can check a developer's local services.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/engine"
	"github.com/hazz-dev/devprobe/internal/preset"
)

const (
	defaultPortTimeout = 3.0
	defaultHTTPTimeout = 5.0
)

// ErrNoServices is returned when check_dev_environment names nothing to check.
var ErrNoServices = errors.New("no services specified to check")

// Engine runs check batches.
type Engine interface {
	Check(ctx context.Context, req engine.Request) ([]checker.CheckResult, error)
}

// Catalog lists and resolves presets.
type Catalog interface {
	List() []string
	Resolve(name string) ([]checker.Descriptor, error)
}

// Tools holds the tool handlers. Handlers are exported so they can be
// called without a transport.
type Tools struct {
	engine  Engine
	presets Catalog
	logger  *zap.Logger
}

// New creates the tool set.
func New(eng Engine, presets Catalog, logger *zap.Logger) *Tools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tools{engine: eng, presets: presets, logger: logger}
}

// PortInput is the check_port argument object.
type PortInput struct {
	Port    int     `json:"port" jsonschema:"port number to check (1-65535)"`
	Host    string  `json:"host,omitempty" jsonschema:"host to check (default localhost)"`
	Timeout float64 `json:"timeout,omitempty" jsonschema:"timeout in seconds (0.1-30, default 3)"`
}

// HTTPInput is the check_http_service argument object.
type HTTPInput struct {
	URL     string  `json:"url" jsonschema:"URL to check, e.g. http://localhost:3000"`
	Timeout float64 `json:"timeout,omitempty" jsonschema:"timeout in seconds (0.1-30, default 5)"`
}

// EnvironmentInput is the check_dev_environment argument object.
type EnvironmentInput struct {
	Preset         string                `json:"preset,omitempty" jsonschema:"preset to check: web_dev, backend, databases, tools or all"`
	Presets        []string              `json:"presets,omitempty" jsonschema:"additional presets to check"`
	CustomServices []checker.ServiceSpec `json:"custom_services,omitempty" jsonschema:"custom services to check after the presets"`
}

// PresetEntry summarizes one preset service.
type PresetEntry struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Details string `json:"details"`
}

// PresetsOutput is the get_service_presets result.
type PresetsOutput struct {
	AvailablePresets []string                 `json:"available_presets"`
	PresetDetails    map[string][]PresetEntry `json:"preset_details"`
}

func seconds(v, def float64) (time.Duration, error) {
	if v == 0 {
		v = def
	}
	if err := (checker.ServiceSpec{Timeout: v}).CheckTimeout(); err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}

func (t *Tools) checkOne(ctx context.Context, d checker.Descriptor) (checker.Report, error) {
	if err := d.Validate(); err != nil {
		return checker.Report{}, err
	}
	results, err := t.engine.Check(ctx, engine.Request{
		Services: []checker.Descriptor{d},
		Timeouts: engine.Timeouts{PerCheck: d.Timeout},
	})
	if err != nil {
		return checker.Report{}, err
	}
	return checker.NewReport(results[0]), nil
}

// CheckPort handles check_port.
func (t *Tools) CheckPort(ctx context.Context, _ *mcp.CallToolRequest, in PortInput) (*mcp.CallToolResult, checker.Report, error) {
	if in.Port < 1 || in.Port > 65535 {
		return nil, checker.Report{}, fmt.Errorf("port must be an integer between 1 and 65535, got %d", in.Port)
	}
	timeout, err := seconds(in.Timeout, defaultPortTimeout)
	if err != nil {
		return nil, checker.Report{}, err
	}

	d := checker.PortService(fmt.Sprintf("Port %d", in.Port), in.Host, in.Port)
	d.Timeout = timeout
	rep, err := t.checkOne(ctx, d)
	return nil, rep, err
}

// CheckHTTP handles check_http_service.
func (t *Tools) CheckHTTP(ctx context.Context, _ *mcp.CallToolRequest, in HTTPInput) (*mcp.CallToolResult, checker.Report, error) {
	if in.URL == "" {
		return nil, checker.Report{}, errors.New("url is required")
	}
	timeout, err := seconds(in.Timeout, defaultHTTPTimeout)
	if err != nil {
		return nil, checker.Report{}, err
	}

	d := checker.HTTPService(in.URL, in.URL)
	d.Timeout = timeout
	rep, err := t.checkOne(ctx, d)
	return nil, rep, err
}

// CheckEnvironment handles check_dev_environment.
func (t *Tools) CheckEnvironment(ctx context.Context, _ *mcp.CallToolRequest, in EnvironmentInput) (*mcp.CallToolResult, checker.BatchReport, error) {
	var presets []string
	if in.Preset != "" {
		presets = append(presets, in.Preset)
	}
	presets = append(presets, in.Presets...)

	services := make([]checker.Descriptor, len(in.CustomServices))
	for i, spec := range in.CustomServices {
		if err := spec.CheckTimeout(); err != nil {
			return nil, checker.BatchReport{}, fmt.Errorf("custom_services[%d]: %w", i, err)
		}
		services[i] = spec.Descriptor()
	}
	if len(presets) == 0 && len(services) == 0 {
		return nil, checker.BatchReport{}, ErrNoServices
	}

	results, err := t.engine.Check(ctx, engine.Request{Presets: presets, Services: services})
	if err != nil {
		return nil, checker.BatchReport{}, err
	}
	report := checker.NewBatchReport(results)
	t.logger.Info("check_dev_environment",
		zap.Strings("presets", presets),
		zap.Int("services", len(results)),
		zap.String("summary", report.Summary),
	)
	return nil, report, nil
}

// Presets handles get_service_presets.
func (t *Tools) Presets(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, PresetsOutput, error) {
	names := t.presets.List()
	out := PresetsOutput{
		AvailablePresets: append(append([]string{}, names...), preset.All),
		PresetDetails:    make(map[string][]PresetEntry, len(names)),
	}
	for _, name := range names {
		descriptors, err := t.presets.Resolve(name)
		if err != nil {
			return nil, PresetsOutput{}, err
		}
		entries := make([]PresetEntry, len(descriptors))
		for i, d := range descriptors {
			entries[i] = PresetEntry{Name: d.Name, Type: string(d.Kind), Details: details(d)}
		}
		out.PresetDetails[name] = entries
	}
	return nil, out, nil
}

func details(d checker.Descriptor) string {
	if d.Kind == checker.KindHTTP {
		return d.Target
	}
	_, port, err := d.Address()
	if err != nil {
		return d.Target
	}
	if hint := preset.Describe(port); hint != "" && hint != d.Name {
		return fmt.Sprintf("Port %d (%s)", port, hint)
	}
	return fmt.Sprintf("Port %d", port)
}

// NewServer registers the tools on a new MCP server.
func NewServer(t *Tools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "devprobe", Version: version}, nil)
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_port",
		Description: "Check if a specific port is open on localhost or another host",
		Annotations: readOnly,
	}, t.CheckPort)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_http_service",
		Description: "Check if an HTTP service is responding at a given URL. Any HTTP response counts as up.",
		Annotations: readOnly,
	}, t.CheckHTTP)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_dev_environment",
		Description: "Check multiple common development services at once using presets and custom services",
		Annotations: readOnly,
	}, t.CheckEnvironment)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_service_presets",
		Description: "Get information about available service presets",
		Annotations: readOnly,
	}, t.Presets)

	return server
}

// Serve runs the server over stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serving mcp: %w", err)
	}
	return nil
}
