/*
Package config loads the daemon's on-disk YAML configuration.

	directory: /var/lib/davsyncd
	bundleIdentifier: com.example.davsyncd
	maxConcurrentDownloads: 4
	listenAddress: 127.0.0.1:8787
	logLevel: info
	logJSON: false

A config file is optional: Default returns a Config usable as-is, and Load
only overrides fields the file actually sets. There is no schema validation
library involved - gopkg.in/yaml.v3 decodes directly into Config the same
way the teacher's own manifest-apply command decodes into its resource
struct.
*/
package config
