package iap

import (
	"context"
	"fmt"

	"github.com/viant/jsonrpc/transport"
	"github.com/viant/jsonrpc/transport/client/http/sse"
	"github.com/viant/jsonrpc/transport/client/http/streamable"
	"github.com/viant/jsonrpc/transport/client/stdio"
)

// Options defines configuration for a purchase session; the tags allow
// population from CLI flags or configuration files.
type Options struct {
	Name      string           `yaml:"name" json:"name,omitempty" short:"n" long:"name" description:"session name"`
	Transport TransportOptions `yaml:"transport" json:"transport" short:"t" long:"transport" description:"channel transport options"`
}

// TransportOptions defines the channel transport to the native bridge.
type TransportOptions struct {
	Type      string   `yaml:"type" json:"type" short:"T" long:"transport-type" description:"channel transport type" choice:"stdio" choice:"sse" choice:"streamable"`
	Command   string   `yaml:"command,omitempty" json:"command,omitempty" short:"C" long:"command" description:"native bridge command"`
	Arguments []string `yaml:"arguments,omitempty" json:"arguments,omitempty" short:"A" long:"arguments" description:"native bridge command arguments"`
	URL       string   `yaml:"url,omitempty" json:"url,omitempty" short:"u" long:"url" description:"native bridge url"`
}

func (o *Options) Init() {
	if o.Name == "" {
		o.Name = "IapSession"
	}
}

// getTransport constructs a JSON-RPC transport based on Options.Transport,
// wiring the session handler for native to app traffic.
func (o *Options) getTransport(ctx context.Context, handler transport.Handler) (transport.Transport, error) {
	switch o.Transport.Type {
	case "stdio":
		if o.Transport.Command == "" {
			return nil, fmt.Errorf("command is required for stdio transport")
		}
		ret, err := stdio.New(o.Transport.Command,
			stdio.WithHandler(handler),
			stdio.WithArguments(o.Transport.Arguments...))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdio transport: %w", err)
		}
		return ret, nil
	case "sse":
		if o.Transport.URL == "" {
			return nil, fmt.Errorf("URL is required for sse transport")
		}
		ret, err := sse.New(ctx, o.Transport.URL, sse.WithHandler(handler))
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE transport: %w", err)
		}
		return ret, nil
	case "streamable":
		if o.Transport.URL == "" {
			return nil, fmt.Errorf("URL is required for streamable transport")
		}
		ret, err := streamable.New(ctx, o.Transport.URL, streamable.WithHandler(handler))
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable transport: %w", err)
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("no transport configured")
	}
}
