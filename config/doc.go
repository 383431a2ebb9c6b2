// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config reads layered configuration into plain structs.
//
// Sources are applied in order, later ones overriding earlier ones:
//
//	m, err := config.Read(
//	    config.FromYaml(config.RenderTextTemplate(f, config.TemplateFunc("env", os.Getenv))),
//	    config.FromEnv(),
//	)
//
//	var cfg config.Listener
//	err = m.Unmarshal(&cfg)
//
// Keys are case-insensitive. Struct fields are matched through the
// "config" tag.
package config
