// Package config loads sessionkit settings from a TOML, YAML or JSON file,
// overlays SESSIONKIT_* environment variables and maps the result onto
// session and manager options.
//
// Loading order: file, then environment, then defaults for unset fields,
// then validation.
//
//	cfg, err := config.Load("sessionkit.toml")
//	if err != nil {
//	    return err
//	}
//	s, err := session.Open(ctx, cfg.SessionOptions()...)
package config
