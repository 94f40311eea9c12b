// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bootstrap

import (
	"context"
	"fmt"

	"github.com/z5labs/harbor/config"
	"github.com/z5labs/harbor/connector"
	"github.com/z5labs/harbor/pkg/otelconfig"
)

// Config is read once at process start. Keys are flat names such as
// "http.maxThread", see [Defaults] for the values used when a key is
// not set.
type Config struct {
	Port string `config:"PORT"`

	HTTPMaxThreads        int    `config:"http.maxThread"`
	HTTPEnableSSL         bool   `config:"http.enableSSL"`
	HTTPProxyURL          string `config:"http.proxyUrl"`
	HTTPCompression       bool   `config:"http.compression"`
	HTTPCompressibleTypes string `config:"http.compressableMimeTypes"`

	AJPMaxThreads int    `config:"ajp.maxThread"`
	AJPProxyURL   string `config:"ajp.proxyUrl"`

	connector.TLSMaterial `config:",squash"`

	LogLevel        string `config:"log.level"`
	LogFormat       string `config:"log.format"`
	OTelExporter    string `config:"otel.exporter"`
	OTelServiceName string `config:"otel.serviceName"`
	OTelOTLPTarget  string `config:"otel.otlp.target"`
	MetricsEnabled  bool   `config:"metrics.enabled"`
	HealthEnabled   bool   `config:"health.enabled"`

	// Properties holds every key without a field above, including the
	// http.prop.* and ajp.prop.* connector properties.
	Properties map[string]any `config:",remain"`
}

// Defaults is meant to be the first, lowest precedence, config source.
func Defaults() config.Map {
	return config.Map{
		"http.maxThread":        200,
		"ajp.maxThread":         200,
		"ssl.allowEphemeralKey": true,
		"log.level":             "info",
		"log.format":            "json",
		"otel.serviceName":      "harbor",
	}
}

// properties returns the unmapped keys as strings, the form property
// injection works on.
func (c Config) properties() map[string]string {
	props := make(map[string]string, len(c.Properties))
	for k, v := range c.Properties {
		if v == nil {
			continue
		}
		props[k] = fmt.Sprint(v)
	}
	return props
}

// InitializeOTel installs the tracer provider selected by otel.exporter.
func (c Config) InitializeOTel(ctx context.Context) error {
	initer, err := otelconfig.ForExporter(
		c.OTelExporter,
		otelconfig.ServiceName(c.OTelServiceName),
		otelconfig.OTLPTarget(c.OTelOTLPTarget),
	)
	if err != nil {
		return err
	}
	_, err = otelconfig.Install(ctx, initer)
	return err
}
