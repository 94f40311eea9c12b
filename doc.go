// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package harbor runs an embedded web server: a primary HTTP/1.1
// connector and an AJP/1.3 connector in front of a single hosted
// application.
//
// [Run] reads the configuration sources, decodes them into a typed
// config, hands it to an [AppBuilder] and runs the resulting [App]:
//
//	err := harbor.Run(ctx, bootstrap.Builder(), config.FromEnv())
//
// The server itself is assembled by the bootstrap package from the
// connector, server, webapp and lifecycle packages, which can also be
// used directly.
package harbor
