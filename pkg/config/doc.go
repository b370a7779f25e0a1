// Package config loads the configuration shared by the hub and node
// commands. Values are layered: built-in defaults, an optional YAML file,
// a .env file, LOOKOUT_* environment variables and finally command line
// flags applied by the caller. ValidateHub and ValidateNode check the
// result for the role being started.
package config
