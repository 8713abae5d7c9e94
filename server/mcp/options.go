package mcp

import "context"

type Option func(*Options)

type Options struct {
	Name     string
	Version  string
	Recorder Recorder
	Context  context.Context
}

func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

func WithVersion(version string) Option {
	return func(o *Options) {
		o.Version = version
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(o *Options) {
		o.Recorder = recorder
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Name:     "my-mem-mcp",
		Version:  "1.0.0",
		Recorder: NewLogRecorder(),
		Context:  context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
