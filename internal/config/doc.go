// Package config loads the RetroIDE configuration.
//
// Settings are layered, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. The configuration file, TOML or YAML by extension, with ${VAR}
//     references expanded from the environment
//  3. RETROIDE_* environment variables
//
// Load validates the result. Watch reloads the file when it changes so the
// application can apply the settings that take effect without a restart.
package config
